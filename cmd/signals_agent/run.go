package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/workforce-signals/internal/observability"
	"github.com/jonathan/workforce-signals/internal/server"
	"github.com/spf13/cobra"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion pass over every configured source",
	Long: `Fetches each source in registry order, extracts workforce events, and reconciles them
against stored events. Prints a JSON summary when finished.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runIngestCmd,
}

func init() {
	rootCmd.AddCommand(runCommand)
}

func runIngestCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()

	cfg, err := resolveConfig(cmd, os.Getenv)
	if err != nil {
		return writeRunFailure(out, err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return writeRunFailure(out, err)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return writeRunFailure(out, err)
	}
	defer a.Close()

	if cfg.Verbose {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintSources(a.runner.Sources())
	}

	stats, err := a.runner.RunOnce(ctx)
	if err != nil {
		return writeRunFailure(out, err)
	}

	if cfg.Verbose {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintRunStats(stats)
	}
	return writeJSON(out, server.NewRunResponse(stats))
}

// writeRunFailure prints the failure summary and returns err so the exit status is non-zero.
func writeRunFailure(out io.Writer, err error) error {
	if werr := writeJSON(out, server.RunResponse{Success: false, Error: err.Error()}); werr != nil {
		return fmt.Errorf("%w (and failed to write summary: %v)", err, werr)
	}
	return err
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
