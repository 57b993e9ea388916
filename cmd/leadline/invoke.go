package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/premunia/leadline/internal/api"
)

var invokeStripPrefix string

var invokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Handle one JSON-encoded request from stdin and print the response",
	Long: `Invoke reads a request envelope such as
  {"method":"POST","path":"/leads","headers":{"Content-Type":"application/json"},"body":"{...}"}
from stdin, runs it through the router without opening a listener and
prints the response envelope to stdout.`,
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().StringVar(&invokeStripPrefix, "strip-prefix", "", "path prefix removed before routing, e.g. /.netlify/functions/api")
	rootCmd.AddCommand(invokeCmd)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var req api.Request
	if err := json.NewDecoder(cmd.InOrStdin()).Decode(&req); err != nil {
		return fmt.Errorf("decoding request envelope: %w", err)
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	a.start(ctx)

	var opts []api.InvokeOption
	if invokeStripPrefix != "" {
		opts = append(opts, api.WithStripPrefix(invokeStripPrefix))
	}
	resp, err := api.Invoke(ctx, a.handler, req, opts...)
	// Deliver any notification the request queued before exiting.
	a.stop()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
