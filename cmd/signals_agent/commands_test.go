package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonathan/workforce-signals/internal/config"
	"github.com/jonathan/workforce-signals/internal/logging"
	"github.com/jonathan/workforce-signals/internal/pipeline"
	"github.com/jonathan/workforce-signals/internal/server"
	"github.com/jonathan/workforce-signals/internal/store"
	"github.com/jonathan/workforce-signals/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default. The command tree is global,
// so values parsed by one test would otherwise leak into the next.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		require.NoError(t, f.Value.Set(f.DefValue))
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(reset)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func noEnv(string) string { return "" }

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func parse(t *testing.T, cmd *cobra.Command, args ...string) {
	t.Helper()
	resetFlags(t)
	require.NoError(t, cmd.ParseFlags(args))
}

func TestResolveConfig_Defaults(t *testing.T) {
	parse(t, migrateCmd)

	cfg, err := resolveConfig(migrateCmd, noEnv)
	require.NoError(t, err)
	assert.Equal(t, config.BackendSQLite, cfg.Backend)
	assert.Equal(t, config.DefaultSQLitePath, cfg.SQLitePath)
	assert.Equal(t, config.DefaultLookbackDays, cfg.LookbackDays)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestResolveConfig_FileThenEnvThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"sqlite_path": "from-file.db",
		"lookback_days": 30,
		"log_level": "warn"
	}`), 0o600))

	parse(t, migrateCmd, "--config", path, "--log-level", "error")

	cfg, err := resolveConfig(migrateCmd, envOf(map[string]string{config.EnvAPIKey: "env-key"}))
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.SQLitePath)
	assert.Equal(t, 30, cfg.LookbackDays)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestResolveConfig_DatabaseURLSelectsPostgres(t *testing.T) {
	parse(t, migrateCmd)

	cfg, err := resolveConfig(migrateCmd, envOf(map[string]string{config.EnvDatabaseURL: "postgres://localhost/x"}))
	require.NoError(t, err)
	assert.Equal(t, config.BackendPostgres, cfg.Backend)
	assert.Equal(t, "postgres://localhost/x", cfg.DatabaseURL)
}

func TestResolveConfig_BackendFlagWins(t *testing.T) {
	parse(t, migrateCmd, "--backend", "sqlite", "--db-url", "postgres://localhost/x")

	cfg, err := resolveConfig(migrateCmd, noEnv)
	require.NoError(t, err)
	assert.Equal(t, config.BackendSQLite, cfg.Backend)
}

func TestResolveConfig_VerboseForcesDebug(t *testing.T) {
	parse(t, migrateCmd, "-v", "--log-level", "warn")

	cfg, err := resolveConfig(migrateCmd, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestResolveConfig_Invalid(t *testing.T) {
	parse(t, migrateCmd, "--backend", "mysql")
	_, err := resolveConfig(migrateCmd, noEnv)
	assert.Error(t, err)

	parse(t, migrateCmd, "--config", filepath.Join(t.TempDir(), "missing.json"))
	_, err = resolveConfig(migrateCmd, noEnv)
	assert.Error(t, err)
}

func TestMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.db")

	out, err := execute(t, "migrate", "--backend", "sqlite", "--sqlite-path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "schema ready (sqlite)")

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSourcesCommand(t *testing.T) {
	out, err := execute(t, "sources", "--backend", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "SOURCE REGISTRY")
	for _, s := range config.DefaultSources() {
		assert.Contains(t, out, s.Name)
	}
}

func TestSourcesCommand_CustomRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`sources:
  - name: Local Wire
    fetch_target: https://wire.example.com/news
    reliability: 70
`), 0o600))

	out, err := execute(t, "sources", "--sources", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Local Wire")
	assert.Contains(t, out, " 70")
}

func seedEvent(t *testing.T, path string) *types.StatusEvent {
	t.Helper()
	st, err := store.OpenSQLite(path)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	e := &types.StatusEvent{
		CompanyName: "Acme Corp",
		CompanyKey:  "Acme Corp",
		StatusType:  types.StatusLayoff,
		Severity:    types.SeverityHigh,
		StartDate:   start,
		Description: "Acme Corp cuts 300 roles",
		Verified:    true,
		Sources: []types.ContributingSource{
			{Name: "Reuters", URL: "https://reuters.com/acme", Reliability: 95, AddedAt: start},
		},
	}
	require.NoError(t, st.Insert(context.Background(), e))
	return e
}

func TestScoreCommand_Box(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.db")
	e := seedEvent(t, path)

	out, err := execute(t, "score", e.ID.String(), "--backend", "sqlite", "--sqlite-path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Acme Corp")
	assert.Contains(t, out, "Confidence:  70 (medium)")
}

func TestScoreCommand_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.db")
	e := seedEvent(t, path)

	out, err := execute(t, "score", e.ID.String(), "--json", "--backend", "sqlite", "--sqlite-path", path)
	require.NoError(t, err)

	var resp struct {
		ID          string `json:"id"`
		CompanyName string `json:"company_name"`
		StartDate   string `json:"start_date"`
		Confidence  int    `json:"confidence"`
		Tier        string `json:"tier"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, e.ID.String(), resp.ID)
	assert.Equal(t, "Acme Corp", resp.CompanyName)
	assert.Equal(t, "2026-10-01", resp.StartDate)
	assert.Equal(t, 70, resp.Confidence)
	assert.Equal(t, "medium", resp.Tier)
}

func TestScoreCommand_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.db")

	_, err := execute(t, "score", "not-a-uuid", "--backend", "sqlite", "--sqlite-path", path)
	assert.Error(t, err)

	_, err = execute(t, "score", "7f1c1b9e-4a43-4b8e-9a59-2a1b1c3d4e5f", "--backend", "sqlite", "--sqlite-path", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunCommand_MissingAPIKeyPrintsFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.db")

	out, err := execute(t, "run", "--api-key=", "--backend", "sqlite", "--sqlite-path", path)
	require.Error(t, err)

	var resp server.RunResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "API key")
}

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) RunOnce(context.Context) (pipeline.Stats, error) {
	r.calls.Add(1)
	return pipeline.Stats{SourcesProcessed: 1}, r.err
}

func TestRunSchedule_FiresUntilCancelled(t *testing.T) {
	for _, runErr := range []error{nil, pipeline.ErrRunInProgress, errors.New("boom")} {
		runner := &countingRunner{err: runErr}
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- runSchedule(ctx, "@every 1s", runner, logging.Discard()) }()

		require.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler did not stop")
		}
	}
}

func TestRunSchedule_InvalidSpec(t *testing.T) {
	err := runSchedule(context.Background(), "every tuesday", &countingRunner{}, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestLockLease_CoversSlowestReconcile(t *testing.T) {
	cfg := config.Defaults()
	timeout := cfg.CallTimeoutOr(config.DefaultCallTimeout)

	lease := lockLease(&cfg, timeout)
	worst := time.Duration(cfg.CandidateLimit*cfg.MergeAttempts) * timeout
	assert.Greater(t, lease, worst)
	assert.Equal(t, 8*time.Minute+30*time.Second, lease)

	assert.Equal(t, time.Minute+time.Second, lockLease(&config.Config{}, time.Second))
}
