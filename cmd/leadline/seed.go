package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/premunia/leadline/internal/apperr"
	"github.com/premunia/leadline/internal/auth"
	"github.com/premunia/leadline/internal/user"
)

var (
	seedAdminEmail    string
	seedAdminPassword string
	promoteEmail      string
	promoteRole       string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert default site settings and optionally an admin account",
	RunE:  runSeed,
}

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Assign a role to an existing account",
	RunE:  runPromote,
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminEmail, "admin-email", "", "create (or promote) this account as admin")
	seedCmd.Flags().StringVar(&seedAdminPassword, "admin-password", "", "password for a newly created admin account")
	promoteCmd.Flags().StringVar(&promoteEmail, "email", "", "account email")
	promoteCmd.Flags().StringVar(&promoteRole, "role", auth.RoleAdmin, "role to assign (user or admin)")
	_ = promoteCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(promoteCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	inserted, err := a.settings.SeedDefaults(ctx)
	if err != nil {
		return fmt.Errorf("seeding settings: %w", err)
	}
	sort.Strings(inserted)
	if len(inserted) == 0 {
		slog.Info("default settings already present, nothing inserted")
	} else {
		slog.Info("seeded default settings", "keys", inserted)
	}

	if seedAdminEmail == "" {
		return nil
	}
	return ensureAdmin(ctx, a.users, seedAdminEmail, seedAdminPassword)
}

// ensureAdmin creates the account when a password is given and grants it
// the admin role. An existing account is only promoted.
func ensureAdmin(ctx context.Context, users *user.Service, email, password string) error {
	if password != "" {
		_, err := users.Signup(ctx, user.SignupInput{Email: email, Password: password})
		switch {
		case err == nil:
			slog.Info("created admin account", "email", user.NormalizeEmail(email))
		case apperr.KindOf(err) == apperr.KindConflict:
			slog.Info("account already exists, promoting", "email", user.NormalizeEmail(email))
		default:
			return fmt.Errorf("creating admin account: %w", err)
		}
	}

	u, err := users.SetRoleByEmail(ctx, email, auth.RoleAdmin)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return errors.New("no account with that email; pass --admin-password to create it")
		}
		return fmt.Errorf("promoting admin: %w", err)
	}
	fmt.Printf("Admin:  %s (%s)\n", u.Email, u.ID)
	return nil
}

func runPromote(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	u, err := a.users.SetRoleByEmail(ctx, promoteEmail, promoteRole)
	if err != nil {
		return fmt.Errorf("promote %s: %w", promoteEmail, err)
	}
	slog.Info("role assigned", "user_id", u.ID, "email", u.Email, "role", promoteRole)
	fmt.Printf("%s is now %s\n", u.Email, promoteRole)
	return nil
}
