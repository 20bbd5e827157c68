// Package cmd defines the CLI commands for the release-crawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/booktrail/release-crawler/internal/config"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release-crawler",
		Short: "Tracks upcoming book releases from author feeds and websites.",
		Long: `release-crawler watches favorited authors for book announcements.
It pulls syndication feeds, scrapes author websites (with an optional
headless-browser fallback for script-heavy pages), and records discovered
releases so readers hear about new books early.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults to environment variables)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScrapeCmd())

	return cmd
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
