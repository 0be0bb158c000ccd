// Package dryrun explores every prompt variant for a single contact, so an
// operator can compare strategies before committing to a full run. It never
// writes to the main output and never advances the progress tracker.
package dryrun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ebop14/outreach-bot/pkg/generate"
	"github.com/Ebop14/outreach-bot/pkg/models"
)

// Generator produces one opener for a prompt variant.
type Generator interface {
	GenerateOpener(ctx context.Context, tier generate.Tier, variant models.Variant, contact models.Contact, summary string) (models.GenerationAttempt, error)
}

// Evaluator scores an opener.
type Evaluator interface {
	Evaluate(ctx context.Context, text string) models.EvaluationResult
}

// Result is the outcome of one variant: either a scored opener or the reason
// generation failed. Exactly one of Text or Error is meaningful.
type Result struct {
	Variant    string                   `json:"variant"`
	Text       string                   `json:"text,omitempty"`
	Model      string                   `json:"model,omitempty"`
	LatencyMs  int64                    `json:"latency_ms,omitempty"`
	Evaluation *models.EvaluationResult `json:"evaluation,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// Report aggregates all variant results for one contact, in catalog order.
type Report struct {
	RunID     string         `json:"run_id"`
	Contact   models.Contact `json:"contact"`
	SiteKey   string         `json:"site_key"`
	Summary   string         `json:"summary,omitempty"`
	Results   []Result       `json:"results"`
	StartedAt time.Time      `json:"started_at"`
	ElapsedMs int64          `json:"elapsed_ms"`
}

// Options configures the engine.
type Options struct {
	// OutputDir receives report artifacts. Defaults to the working directory.
	OutputDir string
}

// Engine fans one contact out across the whole variant catalog on the fast
// model tier. Each variant gets a single attempt; failures are reported, not
// retried.
type Engine struct {
	generator Generator
	evaluator Evaluator
	opts      Options
	log       *zap.Logger
}

func New(generator Generator, evaluator Evaluator, opts Options, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{generator: generator, evaluator: evaluator, opts: opts, log: log}
}

// Explore runs every catalog variant concurrently and returns one result per
// variant in catalog order, regardless of completion order.
func (e *Engine) Explore(ctx context.Context, contact models.Contact, summary string) Report {
	start := time.Now()
	variants := models.Variants()
	results := make([]Result, len(variants))

	var wg sync.WaitGroup
	for i, variant := range variants {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.explore(ctx, variant, contact, summary)
		}()
	}
	wg.Wait()

	report := Report{
		RunID:     uuid.NewString(),
		Contact:   contact,
		SiteKey:   contact.SiteKey(),
		Summary:   summary,
		Results:   results,
		StartedAt: start.UTC(),
		ElapsedMs: time.Since(start).Milliseconds(),
	}
	e.log.Info("dry run finished",
		zap.String("run_id", report.RunID),
		zap.String("site", report.SiteKey),
		zap.Int("variants", len(results)),
		zap.Int64("elapsed_ms", report.ElapsedMs))
	return report
}

func (e *Engine) explore(ctx context.Context, variant models.Variant, contact models.Contact, summary string) Result {
	res := Result{Variant: variant.Key()}
	attempt, err := e.generator.GenerateOpener(ctx, generate.TierFast, variant, contact, summary)
	if err != nil {
		e.log.Warn("variant failed", zap.String("variant", variant.Key()), zap.Error(err))
		res.Error = err.Error()
		return res
	}
	res.Text = attempt.Text
	res.Model = attempt.Model
	res.LatencyMs = attempt.LatencyMs
	eval := e.evaluator.Evaluate(ctx, attempt.Text)
	res.Evaluation = &eval
	return res
}

// WriteArtifact saves the report as an indented JSON file named after the
// site and start time, and returns the path.
func (e *Engine) WriteArtifact(report Report) (string, error) {
	dir := e.opts.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	name := fmt.Sprintf("dry_run_%s_%s.json", sanitizeName(report.SiteKey), report.StartedAt.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Render writes the report as an aligned table for terminal review.
func Render(w io.Writer, report Report) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "VARIANT\tSCORE\tOK\tISSUES\tOPENER\n")
	for _, r := range report.Results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\t-\t-\t-\tFAILED: %s\n", r.Variant, r.Error)
			continue
		}
		score, ok, issues := "-", "-", "-"
		if r.Evaluation != nil {
			score = fmt.Sprintf("%d", r.Evaluation.Score)
			ok = fmt.Sprintf("%v", r.Evaluation.Acceptable)
			issues = fmt.Sprintf("%d", r.Evaluation.TotalIssues())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Variant, score, ok, issues, truncate(r.Text, 72))
	}
	return tw.Flush()
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
