package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/premunia/leadline/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "leadline",
	Short: "Leadline - landing page lead capture backend",
	Long:  "Leadline serves the landing page API: prospect lead capture, back-office lead management, site settings and staff accounts.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: defaults plus environment)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// readConfig loads the configuration after merging a .env file from the
// working directory into the environment. Variables already set win, and a
// missing .env is not an error.
func readConfig() (*config.Config, error) {
	_ = godotenv.Load()
	return config.Load(cfgFile)
}

// loadConfig loads and validates the configuration and installs the
// default logger from its log section.
func loadConfig() (*config.Config, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := setupLogger(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config) error {
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Log.Format == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}
