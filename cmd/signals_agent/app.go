package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonathan/workforce-signals/internal/classifier"
	"github.com/jonathan/workforce-signals/internal/config"
	"github.com/jonathan/workforce-signals/internal/db"
	"github.com/jonathan/workforce-signals/internal/eventbus"
	"github.com/jonathan/workforce-signals/internal/extraction"
	"github.com/jonathan/workforce-signals/internal/fetch"
	"github.com/jonathan/workforce-signals/internal/llm"
	"github.com/jonathan/workforce-signals/internal/lock"
	"github.com/jonathan/workforce-signals/internal/logging"
	"github.com/jonathan/workforce-signals/internal/merge"
	"github.com/jonathan/workforce-signals/internal/pipeline"
	"github.com/jonathan/workforce-signals/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// resolveConfig loads the config file, then the environment, then explicit flags,
// and fills the rest from defaults.
func resolveConfig(cmd *cobra.Command, getenv func(string) string) (*config.Config, error) {
	var cfg config.Config
	if flagConfigPath != "" {
		loaded, err := config.LoadConfig(flagConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	cfg.ApplyEnv(getenv)

	// Only override if the flag was explicitly set
	flags := cmd.Flags()
	if flags.Changed("api-key") {
		cfg.APIKey = flagAPIKey
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = flagDBURL
		if cfg.Backend == "" {
			cfg.Backend = config.BackendPostgres
		}
	}
	if flags.Changed("backend") {
		cfg.Backend = flagBackend
	}
	if flags.Changed("sqlite-path") {
		cfg.SQLitePath = flagSQLitePath
	}
	if flags.Changed("sources") {
		cfg.SourcesFile = flagSources
	}
	if flags.Changed("use-browser") {
		cfg.UseBrowser = flagUseBrowser
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if flags.Changed("verbose") {
		cfg.Verbose = flagVerbose
	}

	merged := cfg.MergeWithDefaults(config.Defaults())
	if merged.Verbose {
		merged.LogLevel = "debug"
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

func newLogger(cfg *config.Config) (*log.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: logging.Format(cfg.LogFormat),
		Output: os.Stderr,
	})
}

// openStore connects the configured backend and makes sure its schema exists.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if err := cfg.RequireStorage(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.BackendPostgres:
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureSchema(ctx); err != nil {
			_ = database.Close()
			return nil, err
		}
		return database, nil
	default:
		return store.OpenSQLite(cfg.SQLitePath)
	}
}

// app holds everything a run needs, plus what must be closed afterwards.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	store    store.Store
	runner   *pipeline.Runner
	registry *prometheus.Registry
	closers  []func() error
}

// newApp wires the full ingestion stack. Missing classifier credentials,
// storage settings or an empty registry fail here, before any source is touched.
func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	if err := cfg.RequireClassifier(); err != nil {
		return nil, err
	}
	sources, err := cfg.ResolveSources()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	llmConfig := llm.DefaultConfig()
	if cfg.Model != "" {
		llmConfig = llmConfig.WithModel(llm.TierStandard, cfg.Model)
	}
	client, err := llm.NewClient(ctx, llmConfig, cfg.APIKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	callTimeout := cfg.CallTimeoutOr(config.DefaultCallTimeout)
	clf := classifier.NewLLM(client,
		classifier.WithRateLimit(cfg.RateLimit, max(1, int(cfg.RateLimit))),
		classifier.WithTimeout(callTimeout),
		classifier.WithLogger(logger),
	)

	locker, err := newLocker(ctx, cfg, callTimeout)
	if err != nil {
		a.Close()
		return nil, err
	}
	if r, ok := locker.(*lock.Redis); ok {
		a.closers = append(a.closers, r.Close)
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, publisher.Close)

	fetchOpts := fetch.DefaultOptions()
	fetchOpts.Timeout = callTimeout
	var render fetch.RenderFunc
	if cfg.UseBrowser {
		render = fetch.ChromeRenderer(callTimeout)
	}

	engine := merge.NewEngine(st, clf, merge.Options{
		Lookback:       cfg.Lookback(),
		CandidateLimit: cfg.CandidateLimit,
		MaxAttempts:    cfg.MergeAttempts,
		NormalizeNames: cfg.NormalizeCompanyNames,
		Locker:         locker,
		Logger:         logger,
	})

	// An explicit zero delay in the config means no delay.
	delay := cfg.CourtesyDelayOr(pipeline.DefaultCourtesyDelay)
	if delay == 0 {
		delay = -1
	}

	runner, err := pipeline.NewRunner(pipeline.Options{
		Sources:       sources,
		Fetcher:       fetch.NewHTTPFetcher(fetchOpts, render, logger),
		Extractor:     extraction.New(clf, logger),
		Reconciler:    engine,
		Publisher:     publisher,
		Metrics:       pipeline.NewMetrics(a.registry),
		CourtesyDelay: delay,
		Logger:        logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.runner = runner
	return a, nil
}

func newLocker(ctx context.Context, cfg *config.Config, callTimeout time.Duration) (lock.Locker, error) {
	if cfg.RedisURL == "" {
		return lock.NewLocal(), nil
	}
	return lock.NewRedisFromURL(ctx, cfg.RedisURL, lockLease(cfg, callTimeout))
}

// lockLease covers the slowest reconcile: every candidate compared on every attempt.
func lockLease(cfg *config.Config, callTimeout time.Duration) time.Duration {
	candidates := max(cfg.CandidateLimit, 1)
	attempts := max(cfg.MergeAttempts, 1)
	return time.Duration(candidates*attempts)*callTimeout + time.Minute
}

func newPublisher(cfg *config.Config) (eventbus.Publisher, error) {
	if cfg.NATSURL == "" {
		return eventbus.Nop{}, nil
	}
	return eventbus.ConnectNATS(cfg.NATSURL)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Warn("error during shutdown", "err", err)
	}
}
