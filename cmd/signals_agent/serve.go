package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/workforce-signals/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr          string
	serveWithSchedule  bool
	serveRunsPerMinute float64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server exposing POST /ingest/run, GET /events, GET /events/{id},
GET /health and GET /metrics. With --with-schedule the server also runs ingestion on the
configured cron schedule.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (defaults to listen_addr or :8080)")
	serveCmd.Flags().BoolVar(&serveWithSchedule, "with-schedule", false, "Also run ingestion on the configured schedule")
	serveCmd.Flags().Float64Var(&serveRunsPerMinute, "runs-per-minute", 1, "Per-client cap on POST /ingest/run (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(cmd, os.Getenv)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.ListenAddr = serveAddr
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(server.Config{
		Addr:           cfg.ListenAddr,
		NormalizeNames: cfg.NormalizeCompanyNames,
		RunsPerMinute:  serveRunsPerMinute,
		Gatherer:       a.registry,
		Logger:         logger,
	}, a.runner, a.store)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gCtx)
	})
	if serveWithSchedule {
		g.Go(func() error {
			return runSchedule(gCtx, cfg.Schedule, a.runner, logger)
		})
	}
	return g.Wait()
}
