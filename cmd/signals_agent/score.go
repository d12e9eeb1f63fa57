package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jonathan/workforce-signals/internal/observability"
	"github.com/jonathan/workforce-signals/internal/server"
	"github.com/spf13/cobra"
)

var scoreJSON bool

var scoreCmd = &cobra.Command{
	Use:   "score <event-id>",
	Short: "Print a stored event with its computed confidence",
	Args:  cobra.ExactArgs(1),
	RunE:  runScore,
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "Print JSON instead of a summary box")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid event ID %q: %w", args[0], err)
	}

	cfg, err := resolveConfig(cmd, os.Getenv)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	event, err := st.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load event %s: %w", id, err)
	}

	if scoreJSON {
		return writeJSON(cmd.OutOrStdout(), server.NewEventResponse(event))
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintEvent(event)
	return nil
}
