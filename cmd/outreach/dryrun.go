package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ebop14/outreach-bot/pkg/csvio"
	"github.com/Ebop14/outreach-bot/pkg/dryrun"
	"github.com/Ebop14/outreach-bot/pkg/logging"
	"github.com/Ebop14/outreach-bot/pkg/models"
)

func newDryRunCmd() *cobra.Command {
	var (
		configPath string
		rowIndex   int
	)

	cmd := &cobra.Command{
		Use:   "dry-run <contacts.csv>",
		Short: "Try every prompt variant for one contact without touching the output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			log, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			input, err := csvio.Load(args[0])
			if err != nil {
				return fmt.Errorf("load contacts: %w", err)
			}
			if rowIndex < 0 || rowIndex >= len(input.Rows) {
				return fmt.Errorf("row %d out of range: file has %d contacts", rowIndex, len(input.Rows))
			}
			contact := input.Rows[rowIndex].Contact
			if err := contact.Validate(); err != nil {
				return err
			}

			comps, err := buildComponents(cfg, log)
			if err != nil {
				return err
			}
			defer comps.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			content, err := fetchContent(ctx, comps, contact)
			if err != nil {
				log.Warn("scrape failed, exploring with empty content", zap.Error(err))
				content = models.SiteContent{SiteKey: contact.SiteKey()}
			}

			engine := dryrun.New(comps.client, comps.evaluator, dryrun.Options{
				OutputDir: cfg.DryRun.OutputDir,
			}, log)

			fmt.Printf("Exploring %d variants for %s (%s)...\n\n", len(models.Variants()), contact.FullName(), contact.SiteKey())
			report := engine.Explore(ctx, contact, content.Summary)

			if err := dryrun.Render(os.Stdout, report); err != nil {
				return err
			}
			path, err := engine.WriteArtifact(report)
			if err != nil {
				return err
			}
			fmt.Printf("\nReport saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().IntVar(&rowIndex, "row", 0, "contact row to explore (0-based, not counting the header)")
	return cmd
}

func fetchContent(ctx context.Context, comps *components, contact models.Contact) (models.SiteContent, error) {
	if comps.store != nil {
		content, _, err := comps.store.GetOrFetch(ctx, contact.SiteKey(), func(ctx context.Context) (models.SiteContent, error) {
			return comps.scraper.Scrape(ctx, contact.Website)
		})
		return content, err
	}
	return comps.scraper.Scrape(ctx, contact.Website)
}
