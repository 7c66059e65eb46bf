package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Dan9191/bank-cards/internal/app"
	"github.com/Dan9191/bank-cards/internal/config"
)

// load builds the application from the environment. Opening a postgres store
// applies the embedded schema.
func load(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.New(cmd.Context(), cfg, app.NewLogger(cfg.LogLevel))
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

func seedAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the configured admin account if no user exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.SeedAdmin(cmd.Context())
		},
	}
}

func genKeyCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "gen-key",
		Short: "Print a random hex encoded key for ENCRYPTION_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := generateKey(rand.Reader, size)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	cmd.Flags().IntVarP(&size, "bytes", "b", 32, "Key size in bytes (16, 24 or 32)")
	return cmd
}

func generateKey(r io.Reader, size int) (string, error) {
	if size != 16 && size != 24 && size != 32 {
		return "", fmt.Errorf("invalid key size %d", size)
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(r, key); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(key), nil
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Run the card audit once and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Auditor.Run(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cards checked: %d\n", report.CardsChecked)
			fmt.Fprintf(out, "Expired: %d\n", len(report.Expired))
			fmt.Fprintf(out, "Failing integrity check: %d\n", len(report.Corrupted))
			return nil
		},
	}
}
