package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ebop14/outreach-bot/pkg/csvio"
	"github.com/Ebop14/outreach-bot/pkg/logging"
	"github.com/Ebop14/outreach-bot/pkg/models"
	"github.com/Ebop14/outreach-bot/pkg/pipeline"
	"github.com/Ebop14/outreach-bot/pkg/progress"
	"github.com/Ebop14/outreach-bot/pkg/runlog"
)

func newRunCmd() *cobra.Command {
	var (
		configPath  string
		outputPath  string
		limit       int
		noResume    bool
		workers     int
		variantKey  string
		maxAttempts int
		skipEval    bool
	)

	cmd := &cobra.Command{
		Use:   "run <contacts.csv>",
		Short: "Process a contact CSV into personalized outreach emails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath := args[0]

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Run.Workers = workers
			}
			if maxAttempts > 0 {
				cfg.Generate.MaxAttempts = maxAttempts
			}

			initial := models.VariantDirectReference
			if variantKey != "" {
				initial, err = models.VariantFromKey(variantKey)
				if err != nil {
					return err
				}
			}

			log, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			input, err := csvio.Load(inputPath)
			if err != nil {
				return fmt.Errorf("load contacts: %w", err)
			}
			rows := input.Rows
			if limit > 0 && limit < len(rows) {
				rows = rows[:limit]
			}
			if len(rows) == 0 {
				fmt.Println("No contacts to process.")
				return nil
			}

			fingerprint, err := progress.Fingerprint(inputPath)
			if err != nil {
				return fmt.Errorf("fingerprint input: %w", err)
			}

			tracker, err := progress.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init progress tracker: %w", err)
			}
			defer func() { _ = tracker.Close() }()

			outcomes, err := runlog.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init run log: %w", err)
			}
			defer func() { _ = outcomes.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if outputPath == "" {
				outputPath = deriveOutputPath(inputPath)
			}

			cp := models.Checkpoint{
				InputFingerprint: fingerprint,
				LastRowIndex:     -1,
				TotalRows:        len(rows),
				OutputPath:       outputPath,
			}
			resume := false
			if noResume {
				if err := tracker.Clear(ctx, fingerprint); err != nil {
					return fmt.Errorf("clear checkpoint: %w", err)
				}
			} else {
				stored, err := tracker.Get(ctx, fingerprint)
				if err != nil {
					return fmt.Errorf("read checkpoint: %w", err)
				}
				if stored != nil && stored.LastRowIndex >= 0 {
					if stored.LastRowIndex >= len(rows)-1 {
						fmt.Printf("Nothing to do: all %d contacts already processed into %s.\n", len(rows), stored.OutputPath)
						fmt.Println("Use --no-resume to start over.")
						return nil
					}
					resume = true
					cp.LastRowIndex = stored.LastRowIndex
					cp.OutputPath = stored.OutputPath
					outputPath = stored.OutputPath
					rows = rows[stored.LastRowIndex+1:]
					log.Info("resuming from checkpoint",
						zap.Int("last_row", stored.LastRowIndex),
						zap.Int("remaining", len(rows)),
						zap.String("output", outputPath))
				}
			}

			comps, err := buildComponents(cfg, log)
			if err != nil {
				return err
			}
			defer comps.Close()

			writer, err := csvio.NewWriter(outputPath, input.Header, resume)
			if err != nil {
				return fmt.Errorf("open output: %w", err)
			}
			defer func() { _ = writer.Close() }()

			p := pipeline.New(comps.cache(), comps.scraper, comps.analyzer, comps.client, comps.evaluator, pipeline.Options{
				MaxAttempts:    cfg.Generate.MaxAttempts,
				InitialVariant: initial,
				SkipEvaluation: skipEval,
			}, log)
			runner := pipeline.NewRunner(p, tracker, outcomes, pipeline.RunnerOptions{
				Workers:   cfg.Run.Workers,
				InputPath: inputPath,
			}, log)

			sum, err := runner.Run(ctx, rows, writer, cp)
			printSummary(sum)
			if errors.Is(err, context.Canceled) {
				fmt.Println("\nInterrupted. Re-run the same command to resume.")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output CSV path (default <input>_with_emails.csv)")
	cmd.Flags().IntVar(&limit, "limit", 0, "process at most N contacts")
	cmd.Flags().BoolVar(&noResume, "no-resume", false, "ignore any existing checkpoint and start fresh")
	cmd.Flags().IntVar(&workers, "workers", 0, "override configured worker count")
	cmd.Flags().StringVar(&variantKey, "variant", "", "initial prompt variant (e.g. problem_focused)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "override configured AI attempt limit")
	cmd.Flags().BoolVar(&skipEval, "skip-evaluation", false, "accept the first AI attempt without quality gating")
	return cmd
}

// deriveOutputPath turns contacts.csv into contacts_with_emails.csv.
func deriveOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	if ext == "" {
		ext = ".csv"
	}
	return strings.TrimSuffix(inputPath, ext) + "_with_emails" + ext
}

func printSummary(sum models.RunSummary) {
	fmt.Printf("\nProcessed: %d/%d\n", sum.Processed, sum.Total)
	fmt.Printf("Accepted:  %d\n", sum.Accepted)
	fmt.Printf("Fallback:  %d\n", sum.Fallback)
	fmt.Printf("Failed:    %d\n", sum.Failed)
	fmt.Printf("Output:    %s\n", sum.OutputPath)
}
