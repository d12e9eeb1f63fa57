package main

import (
	"os"

	"github.com/jonathan/workforce-signals/internal/observability"
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the source registry a run would use",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd, os.Getenv)
	if err != nil {
		return err
	}
	sources, err := cfg.ResolveSources()
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintSources(sources)
	return nil
}
