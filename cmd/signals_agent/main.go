// Package main provides the entry point for the workforce signals aggregator.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "signals_agent",
	Short: "Workforce Signals Aggregator",
	Long: `Workforce Signals Aggregator collects layoff, hiring freeze, mass hiring and restructuring
reports from configured sources, merges duplicate reports of the same event, and keeps one
corroborated record per event with a computed confidence score.`,
	SilenceUsage: true,
}

var (
	flagConfigPath string
	flagVerbose    bool
	flagLogLevel   string
	flagLogFormat  string
	flagAPIKey     string
	flagBackend    string
	flagDBURL      string
	flagSQLitePath string
	flagSources    string
	flagUseBrowser bool
)

func init() {
	pf := rootCmd.PersistentFlags()

	// Config file flag (processed first)
	pf.StringVar(&flagConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Print detailed debug information")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format: text or json")

	// API key can be passed as a flag, or read from env var GEMINI_API_KEY
	pf.StringVar(&flagAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")

	pf.StringVar(&flagBackend, "backend", "", "Storage backend: sqlite or postgres")
	pf.StringVar(&flagDBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	pf.StringVar(&flagSQLitePath, "sqlite-path", "", "SQLite database file")
	pf.StringVar(&flagSources, "sources", "", "YAML source registry (defaults to the built-in registry)")
	pf.BoolVar(&flagUseBrowser, "use-browser", false, "Use headless browser for client-rendered pages (requires Chrome)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
