package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/jonathan/workforce-signals/internal/pipeline"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var scheduleSpec string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run ingestion periodically on a cron schedule",
	Long: `Runs one ingestion pass each time the cron expression fires (standard five-field syntax,
default "0 */6 * * *"). A tick that fires while a run is still active is skipped.`,
	RunE: runScheduleCmd,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "", "Cron expression (overrides 'schedule' in the config)")
	rootCmd.AddCommand(scheduleCmd)
}

func runScheduleCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(cmd, os.Getenv)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("cron") {
		cfg.Schedule = scheduleSpec
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

	return runSchedule(ctx, cfg.Schedule, a.runner, logger)
}

// onceRunner is the part of the pipeline the scheduler drives.
type onceRunner interface {
	RunOnce(ctx context.Context) (pipeline.Stats, error)
}

// runSchedule fires runner on spec until ctx is cancelled, then waits for the active run.
func runSchedule(ctx context.Context, spec string, runner onceRunner, logger *log.Logger) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		stats, err := runner.RunOnce(ctx)
		switch {
		case errors.Is(err, pipeline.ErrRunInProgress):
			logger.Warn("previous run still active, skipping tick")
		case err != nil:
			logger.Error("scheduled run failed", "err", err)
		default:
			logger.Info("scheduled run finished", "stats", stats.String())
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	logger.Info("scheduler started", "schedule", spec)
	c.Start()
	<-ctx.Done()

	logger.Info("stopping scheduler")
	<-c.Stop().Done()
	return nil
}
