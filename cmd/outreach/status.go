package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	cachesqlite "github.com/Ebop14/outreach-bot/pkg/cache/sqlite"
	"github.com/Ebop14/outreach-bot/pkg/models"
	"github.com/Ebop14/outreach-bot/pkg/progress"
	"github.com/Ebop14/outreach-bot/pkg/runlog"
	"github.com/Ebop14/outreach-bot/pkg/usage"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status [contacts.csv]",
		Short: "Show the last run, cache health, and any resume point for a CSV",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()

			outcomes, err := runlog.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init run log: %w", err)
			}
			defer func() { _ = outcomes.Close() }()

			last, err := outcomes.LastRun(ctx)
			if err != nil {
				return err
			}
			if last == nil {
				fmt.Println("No runs recorded.")
			} else {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "Last run:\t%s\n", last.RunID)
				fmt.Fprintf(w, "Input:\t%s\n", last.InputPath)
				fmt.Fprintf(w, "Output:\t%s\n", last.OutputPath)
				fmt.Fprintf(w, "Processed:\t%d/%d\n", last.Processed, last.Total)
				fmt.Fprintf(w, "Accepted:\t%d\n", last.Accepted)
				fmt.Fprintf(w, "Fallback:\t%d\n", last.Fallback)
				fmt.Fprintf(w, "Failed:\t%d\n", last.Failed)
				fmt.Fprintf(w, "Finished:\t%s\n", last.FinishedAt.Format("2006-01-02T15:04:05"))
				if err := w.Flush(); err != nil {
					return err
				}
			}

			counts, err := outcomes.Counts(ctx)
			if err != nil {
				return err
			}
			if len(counts) > 0 {
				fmt.Printf("\nAll-time outcomes: %d accepted, %d fallback, %d failed\n",
					counts[models.OutcomeAccepted], counts[models.OutcomeFallback], counts[models.OutcomeFailed])
			}

			if len(args) == 1 {
				if err := printResumePoint(ctx, cfg.DBPath, args[0]); err != nil {
					return err
				}
			}

			if cfg.Cache.Enabled {
				store, err := cachesqlite.New(cfg.DBPath, cfg.Cache.TTL, nil)
				if err != nil {
					return fmt.Errorf("init content cache: %w", err)
				}
				defer func() { _ = store.Close() }()

				stats, err := store.Stats()
				if err != nil {
					return err
				}
				fmt.Printf("\nCache entries: %d (%d expired)\n", stats.Entries, stats.Expired)
				fmt.Printf("Cache hits:    %d\n", stats.Hits)
				fmt.Printf("Cache misses:  %d\n", stats.Misses)
				fmt.Printf("Hit rate:      %.0f%%\n", stats.HitRate()*100)
			}

			return printUsage(ctx, cfg.DBPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func printUsage(ctx context.Context, dbPath string) error {
	recorder, err := usage.New(dbPath)
	if err != nil {
		return fmt.Errorf("init usage recorder: %w", err)
	}
	defer func() { _ = recorder.Close() }()

	summaries, err := recorder.Summary(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("\nNo AI usage recorded.")
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tTIER\tREQUESTS\tPROMPT\tCOMPLETION\tTOTAL")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
			s.Model, s.Tier, s.RequestCount, s.TotalPrompt, s.TotalCompletion, s.TotalTokens)
	}
	return w.Flush()
}

func printResumePoint(ctx context.Context, dbPath, inputPath string) error {
	fingerprint, err := progress.Fingerprint(inputPath)
	if err != nil {
		return fmt.Errorf("fingerprint input: %w", err)
	}
	tracker, err := progress.New(dbPath)
	if err != nil {
		return fmt.Errorf("init progress tracker: %w", err)
	}
	defer func() { _ = tracker.Close() }()

	cp, err := tracker.Get(ctx, fingerprint)
	if err != nil {
		return err
	}
	printCheckpoint(inputPath, cp)
	return nil
}

func printCheckpoint(inputPath string, cp *models.Checkpoint) {
	if cp == nil {
		fmt.Printf("\nNo checkpoint for %s; the next run starts fresh.\n", inputPath)
		return
	}
	fmt.Printf("\nCheckpoint for %s:\n", inputPath)
	fmt.Printf("  Completed through row %d of %d\n", cp.LastRowIndex+1, cp.TotalRows)
	fmt.Printf("  Output: %s\n", cp.OutputPath)
	fmt.Printf("  Updated: %s\n", cp.UpdatedAt.Format("2006-01-02T15:04:05"))
}
