package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ebop14/outreach-bot/pkg/csvio"
	"github.com/Ebop14/outreach-bot/pkg/models"
	"github.com/Ebop14/outreach-bot/pkg/progress"
	"github.com/Ebop14/outreach-bot/pkg/runlog"
)

// OutputWriter persists one augmented output row. *csvio.Writer satisfies it.
type OutputWriter interface {
	WriteOutcome(raw []string, outcome models.Outcome) error
}

// RunnerOptions configures a pool run.
type RunnerOptions struct {
	// Workers bounds contact-level parallelism. Defaults to 4.
	Workers int
	// RunID identifies the run in logs and outcome records. Generated when
	// empty.
	RunID string
	// InputPath is recorded in the run summary.
	InputPath string
}

func (o RunnerOptions) withDefaults() RunnerOptions {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	return o
}

// Runner feeds rows to a bounded worker pool and serializes all persistence
// through a single collector, so the checkpoint boundary stays contiguous.
type Runner struct {
	pipeline *Pipeline
	tracker  progress.Tracker
	outcomes runlog.Log
	opts     RunnerOptions
	log      *zap.Logger
}

func NewRunner(p *Pipeline, tracker progress.Tracker, outcomes runlog.Log, opts RunnerOptions, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		pipeline: p,
		tracker:  tracker,
		outcomes: outcomes,
		opts:     opts.withDefaults(),
		log:      log,
	}
}

type rowResult struct {
	row     csvio.Row
	outcome models.Outcome
}

// Run processes rows in input-order admission with completion-order writes.
// cp seeds the run identity and the completed boundary: LastRowIndex is the
// highest already-done row (-1 for a fresh run). Cancelling ctx stops
// admission immediately; in-flight contacts still reach a terminal outcome
// and are persisted, which is why all persistence below runs on an
// uncancelled context.
func (rn *Runner) Run(ctx context.Context, rows []csvio.Row, out OutputWriter, cp models.Checkpoint) (models.RunSummary, error) {
	runID := rn.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := rn.log.With(zap.String("run_id", runID))

	sum := models.RunSummary{
		RunID:      runID,
		InputPath:  rn.opts.InputPath,
		OutputPath: cp.OutputPath,
		Total:      cp.TotalRows,
		StartedAt:  time.Now().UTC(),
	}
	persistCtx := context.WithoutCancel(ctx)

	tasks := make(chan csvio.Row)
	results := make(chan rowResult)

	var wg sync.WaitGroup
	for range rn.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range tasks {
				outcome := rn.pipeline.Process(context.WithoutCancel(ctx), row.Contact)
				results <- rowResult{row: row, outcome: outcome}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, row := range rows {
			select {
			case <-ctx.Done():
				log.Info("cancellation requested, draining in-flight contacts")
				return
			case tasks <- row:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	boundary := cp.LastRowIndex
	completed := make(map[int]bool)

	for res := range results {
		idx := res.row.Contact.RowIndex
		sum.Processed++

		if err := out.WriteOutcome(res.row.Raw, res.outcome); err != nil {
			log.Error("output write failed, row will be reprocessed on resume",
				zap.Int("row", idx), zap.Error(err))
			sum.Failed++
			continue
		}

		switch res.outcome.Kind {
		case models.OutcomeAccepted:
			sum.Accepted++
		case models.OutcomeFallback:
			sum.Fallback++
		case models.OutcomeFailed:
			sum.Failed++
		}

		if err := rn.outcomes.RecordOutcome(persistCtx, outcomeRecord(runID, res.row.Contact, res.outcome)); err != nil {
			log.Warn("outcome record failed", zap.Int("row", idx), zap.Error(err))
		}

		completed[idx] = true
		advanced := false
		for completed[boundary+1] {
			delete(completed, boundary+1)
			boundary++
			advanced = true
		}
		if advanced {
			if err := rn.tracker.Save(persistCtx, models.Checkpoint{
				InputFingerprint: cp.InputFingerprint,
				LastRowIndex:     boundary,
				TotalRows:        cp.TotalRows,
				OutputPath:       cp.OutputPath,
			}); err != nil {
				log.Warn("checkpoint save failed", zap.Int("boundary", boundary), zap.Error(err))
			}
		}
	}

	sum.FinishedAt = time.Now().UTC()

	if ctx.Err() == nil && boundary == cp.TotalRows-1 {
		if err := rn.tracker.Clear(persistCtx, cp.InputFingerprint); err != nil {
			log.Warn("checkpoint clear failed", zap.Error(err))
		}
	}

	if err := rn.outcomes.RecordRun(persistCtx, sum); err != nil {
		log.Warn("run summary record failed", zap.Error(err))
	}

	log.Info("run finished",
		zap.Int("processed", sum.Processed),
		zap.Int("accepted", sum.Accepted),
		zap.Int("fallback", sum.Fallback),
		zap.Int("failed", sum.Failed))

	return sum, ctx.Err()
}

func outcomeRecord(runID string, contact models.Contact, o models.Outcome) models.OutcomeRecord {
	rec := models.OutcomeRecord{
		RunID:       runID,
		RowIndex:    o.RowIndex,
		Email:       contact.Email,
		Company:     contact.Company,
		SiteKey:     contact.SiteKey(),
		Kind:        o.Kind,
		Subject:     o.Subject,
		Body:        o.Body,
		AIGenerated: o.AIGenerated(),
		FailReason:  o.FailReason,
	}
	if o.Attempt != nil && o.Attempt.Variant != 0 {
		rec.Variant = o.Attempt.Variant.Key()
	}
	if o.Evaluation != nil {
		rec.Score = o.Evaluation.Score
	}
	return rec
}
