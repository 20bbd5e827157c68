package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/booktrail/release-crawler/internal/app"
	"github.com/booktrail/release-crawler/internal/release"
)

func newScrapeCmd() *cobra.Command {
	var favorites bool

	cmd := &cobra.Command{
		Use:   "scrape [author-id...]",
		Short: "Runs a one-shot scrape and prints the outcome",
		Long: `Scrapes the given author IDs (or, with --favorites, every favorited
author that is due) across their configured sources and prints the batch
outcome as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrapeCommand(cmd, args, favorites)
		},
	}
	cmd.Flags().BoolVar(&favorites, "favorites", false, "scrape all favorited authors instead of explicit IDs")
	return cmd
}

func runScrapeCommand(cmd *cobra.Command, args []string, favorites bool) error {
	if !favorites && len(args) == 0 {
		return fmt.Errorf("provide author IDs or --favorites")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var outcome release.BatchOutcome
	if favorites {
		outcome, err = a.Orchestrator.ScrapeFavoriteAuthors(cmd.Context())
		if err != nil {
			return fmt.Errorf("scrape favorites: %w", err)
		}
	} else {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid author id %q", arg)
			}
			ids = append(ids, id)
		}
		outcome = a.Orchestrator.ScrapeSpecificAuthors(cmd.Context(), ids)
	}

	out, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	cmd.Println(string(out))
	return nil
}
