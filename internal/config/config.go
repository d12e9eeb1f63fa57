// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Storage backends
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Environment variables read by ApplyEnv
const (
	EnvAPIKey      = "GEMINI_API_KEY"
	EnvDatabaseURL = "DATABASE_URL"
	EnvRedisURL    = "REDIS_URL"
	EnvNATSURL     = "NATS_URL"
)

// Duration is a time.Duration that reads and writes as a Go duration string ("2s").
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts "1m30s" style strings or integer nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		d.Duration = parsed
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	d.Duration = time.Duration(n)
	return nil
}

// MarshalJSON writes the duration string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Config represents the application configuration loaded from a JSON file.
// All fields are optional; missing values use defaults or environment variables.
type Config struct {
	// Storage
	Backend     string `json:"backend,omitempty"`      // "sqlite" or "postgres"
	SQLitePath  string `json:"sqlite_path,omitempty"`  // SQLite database file
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	RedisURL    string `json:"redis_url,omitempty"`    // Enables the distributed key lock
	NATSURL     string `json:"nats_url,omitempty"`     // Enables outcome publishing

	// Sources
	SourcesFile string `json:"sources_file,omitempty"` // YAML source registry; built-in list when empty
	UseBrowser  bool   `json:"use_browser,omitempty"`  // Headless Chrome fallback for client-rendered pages

	// Classifier
	APIKey      string    `json:"api_key,omitempty"`      // Gemini API key
	Model       string    `json:"model,omitempty"`        // Overrides the extraction model
	RateLimit   float64   `json:"rate_limit,omitempty"`   // Model calls per second
	CallTimeout *Duration `json:"call_timeout,omitempty"` // Per fetch and per model call

	// Merge
	LookbackDays          int  `json:"lookback_days,omitempty"`
	CandidateLimit        int  `json:"candidate_limit,omitempty"`
	MergeAttempts         int  `json:"merge_attempts,omitempty"`
	NormalizeCompanyNames bool `json:"normalize_company_names,omitempty"`

	// Pipeline
	CourtesyDelay *Duration `json:"courtesy_delay,omitempty"` // Pause between sources
	Schedule      string    `json:"schedule,omitempty"`       // Cron expression for scheduled runs

	// Server
	ListenAddr string `json:"listen_addr,omitempty"`

	// Logging
	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty"`
	Verbose   bool   `json:"verbose,omitempty"`
}

// Default values
const (
	DefaultSQLitePath     = "workforce_signals.db"
	DefaultRateLimit      = 2.0
	DefaultLookbackDays   = 60
	DefaultCandidateLimit = 5
	DefaultMergeAttempts  = 3
	DefaultSchedule       = "0 */6 * * *"
	DefaultListenAddr     = ":8080"
	DefaultCallTimeout    = 30 * time.Second
	DefaultCourtesyDelay  = 2 * time.Second
)

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Backend:        BackendSQLite,
		SQLitePath:     DefaultSQLitePath,
		RateLimit:      DefaultRateLimit,
		CallTimeout:    &Duration{DefaultCallTimeout},
		LookbackDays:   DefaultLookbackDays,
		CandidateLimit: DefaultCandidateLimit,
		MergeAttempts:  DefaultMergeAttempts,
		CourtesyDelay:  &Duration{DefaultCourtesyDelay},
		Schedule:       DefaultSchedule,
		ListenAddr:     DefaultListenAddr,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv fills connection settings that are unset in the file from the
// environment. A DATABASE_URL with no explicit backend selects postgres.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if c.APIKey == "" {
		c.APIKey = getenv(EnvAPIKey)
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv(EnvDatabaseURL)
	}
	if c.RedisURL == "" {
		c.RedisURL = getenv(EnvRedisURL)
	}
	if c.NATSURL == "" {
		c.NATSURL = getenv(EnvNATSURL)
	}
	if c.Backend == "" && c.DatabaseURL != "" {
		c.Backend = BackendPostgres
	}
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Backend == "" {
		result.Backend = defaults.Backend
	}
	if result.SQLitePath == "" {
		result.SQLitePath = defaults.SQLitePath
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.SourcesFile == "" {
		result.SourcesFile = defaults.SourcesFile
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.Model == "" {
		result.Model = defaults.Model
	}
	if result.Schedule == "" {
		result.Schedule = defaults.Schedule
	}
	if result.ListenAddr == "" {
		result.ListenAddr = defaults.ListenAddr
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LogFormat == "" {
		result.LogFormat = defaults.LogFormat
	}

	if result.RateLimit == 0 {
		result.RateLimit = defaults.RateLimit
	}
	if result.LookbackDays == 0 {
		result.LookbackDays = defaults.LookbackDays
	}
	if result.CandidateLimit == 0 {
		result.CandidateLimit = defaults.CandidateLimit
	}
	if result.MergeAttempts == 0 {
		result.MergeAttempts = defaults.MergeAttempts
	}

	// Pointer durations: an explicit "0s" in the file is kept
	if result.CallTimeout == nil {
		result.CallTimeout = defaults.CallTimeout
	}
	if result.CourtesyDelay == nil {
		result.CourtesyDelay = defaults.CourtesyDelay
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge

	return result
}

// Validate checks that the configuration has valid values.
// Required secrets are checked separately by RequireClassifier and RequireStorage.
func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("config error: 'backend' must be %q or %q", BackendSQLite, BackendPostgres)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("config error: 'rate_limit' must be non-negative")
	}
	if c.LookbackDays < 0 {
		return fmt.Errorf("config error: 'lookback_days' must be non-negative")
	}
	if c.CandidateLimit < 0 {
		return fmt.Errorf("config error: 'candidate_limit' must be non-negative")
	}
	if c.MergeAttempts < 0 {
		return fmt.Errorf("config error: 'merge_attempts' must be non-negative")
	}
	if c.CallTimeout != nil && c.CallTimeout.Duration < 0 {
		return fmt.Errorf("config error: 'call_timeout' must be non-negative")
	}
	if c.CourtesyDelay != nil && c.CourtesyDelay.Duration < 0 {
		return fmt.Errorf("config error: 'courtesy_delay' must be non-negative")
	}

	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("config error: invalid 'schedule' %q: %w", c.Schedule, err)
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config error: 'log_format' must be text or json")
	}

	if c.SourcesFile != "" {
		if _, err := os.Stat(c.SourcesFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: sources file not found: %s", c.SourcesFile)
		}
	}

	return nil
}

// RequireClassifier reports a missing classifier credential.
func (c *Config) RequireClassifier() error {
	if c.APIKey == "" {
		return fmt.Errorf("config error: classifier API key is required (set %s or 'api_key')", EnvAPIKey)
	}
	return nil
}

// RequireStorage reports missing database settings for the selected backend.
func (c *Config) RequireStorage() error {
	switch c.Backend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config error: postgres backend requires %s or 'database_url'", EnvDatabaseURL)
		}
	case BackendSQLite, "":
		if c.SQLitePath == "" {
			return fmt.Errorf("config error: sqlite backend requires 'sqlite_path'")
		}
	}
	return nil
}

// Lookback returns the candidate window as a duration.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// CallTimeoutOr returns the configured call timeout, or fallback when unset.
func (c *Config) CallTimeoutOr(fallback time.Duration) time.Duration {
	if c.CallTimeout == nil || c.CallTimeout.Duration == 0 {
		return fallback
	}
	return c.CallTimeout.Duration
}

// CourtesyDelayOr returns the configured delay between sources, or fallback when unset.
func (c *Config) CourtesyDelayOr(fallback time.Duration) time.Duration {
	if c.CourtesyDelay == nil {
		return fallback
	}
	return c.CourtesyDelay.Duration
}
