package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the status_events table for the configured backend",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd, os.Getenv)
	if err != nil {
		return err
	}

	// openStore applies the schema for either backend.
	st, err := openStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	if err := st.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.Backend)
	return err
}
