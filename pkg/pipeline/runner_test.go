package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Ebop14/outreach-bot/pkg/analyze"
	"github.com/Ebop14/outreach-bot/pkg/csvio"
	"github.com/Ebop14/outreach-bot/pkg/generate"
	"github.com/Ebop14/outreach-bot/pkg/models"
	"github.com/Ebop14/outreach-bot/pkg/progress"
	"github.com/Ebop14/outreach-bot/pkg/runlog"
)

func newTestStores(t *testing.T) (progress.Tracker, runlog.Log) {
	t.Helper()
	dir := t.TempDir()
	tracker, err := progress.New(filepath.Join(dir, "progress.db"))
	if err != nil {
		t.Fatalf("failed to open tracker: %v", err)
	}
	t.Cleanup(func() { tracker.Close() })
	outcomes, err := runlog.New(filepath.Join(dir, "outcomes.db"))
	if err != nil {
		t.Fatalf("failed to open run log: %v", err)
	}
	t.Cleanup(func() { outcomes.Close() })
	return tracker, outcomes
}

func testRows(n int) []csvio.Row {
	rows := make([]csvio.Row, n)
	for i := range n {
		email := fmt.Sprintf("p%d@acme.com", i)
		rows[i] = csvio.Row{
			Contact: models.Contact{
				Email:     email,
				FirstName: "Jane",
				LastName:  "Doe",
				Company:   "Acme",
				Website:   "https://acme.com",
				RowIndex:  i,
			},
			Raw: []string{email, "Jane", "Doe", "Acme", "https://acme.com"},
		}
	}
	return rows
}

// delayGenerator succeeds on the first attempt, sleeping per row to force
// out-of-order completion.
type delayGenerator struct {
	delays map[int]time.Duration
}

func (g *delayGenerator) GenerateOpener(_ context.Context, _ generate.Tier, variant models.Variant, contact models.Contact, _ string) (models.GenerationAttempt, error) {
	if d := g.delays[contact.RowIndex]; d > 0 {
		time.Sleep(d)
	}
	return models.GenerationAttempt{
		Variant: variant,
		Text:    "Your queue post stood out.",
		Source:  models.SourceAI,
	}, nil
}

// memWriter collects written outcomes and can fail selected rows.
type memWriter struct {
	mu       sync.Mutex
	written  []models.Outcome
	failRows map[int]bool
	onWrite  func(outcome models.Outcome)
}

func (w *memWriter) WriteOutcome(_ []string, outcome models.Outcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failRows[outcome.RowIndex] {
		return errors.New("disk full")
	}
	w.written = append(w.written, outcome)
	if w.onWrite != nil {
		w.onWrite(outcome)
	}
	return nil
}

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}

// spyTracker records every saved boundary on top of a real tracker.
type spyTracker struct {
	progress.Tracker
	mu    sync.Mutex
	saves []int
}

func (s *spyTracker) Save(ctx context.Context, cp models.Checkpoint) error {
	s.mu.Lock()
	s.saves = append(s.saves, cp.LastRowIndex)
	s.mu.Unlock()
	return s.Tracker.Save(ctx, cp)
}

func newTestRunner(t *testing.T, gen Generator, tracker progress.Tracker, outcomes runlog.Log, opts RunnerOptions) *Runner {
	t.Helper()
	scraper := &fakeScraper{content: usableContent()}
	p := New(passCache{}, scraper, analyze.New(analyze.Options{}), gen, markerEvaluator{}, Options{}, zap.NewNop())
	return NewRunner(p, tracker, outcomes, opts, zap.NewNop())
}

func TestRunnerProcessesAllRows(t *testing.T) {
	tracker, outcomes := newTestStores(t)
	rn := newTestRunner(t, &delayGenerator{}, tracker, outcomes, RunnerOptions{
		Workers:   2,
		RunID:     "run-all",
		InputPath: "contacts.csv",
	})
	writer := &memWriter{}
	cp := models.Checkpoint{InputFingerprint: "fp", LastRowIndex: -1, TotalRows: 3, OutputPath: "out.csv"}

	sum, err := rn.Run(context.Background(), testRows(3), writer, cp)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sum.Processed != 3 || sum.Accepted != 3 || sum.Fallback != 0 || sum.Failed != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if sum.RunID != "run-all" || sum.InputPath != "contacts.csv" || sum.OutputPath != "out.csv" || sum.Total != 3 {
		t.Errorf("summary identity fields wrong: %+v", sum)
	}
	if writer.count() != 3 {
		t.Errorf("expected 3 written rows, got %d", writer.count())
	}

	ctx := context.Background()
	got, err := tracker.Get(ctx, "fp")
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if got != nil {
		t.Errorf("checkpoint should be cleared after a full run, got %+v", got)
	}

	recs, err := outcomes.Outcomes(ctx, "run-all")
	if err != nil {
		t.Fatalf("query outcomes: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 outcome records, got %d", len(recs))
	}
	for i, rec := range recs {
		if rec.RowIndex != i {
			t.Errorf("record %d: expected row order, got row %d", i, rec.RowIndex)
		}
		if rec.Kind != models.OutcomeAccepted || !rec.AIGenerated {
			t.Errorf("record %d: unexpected outcome %+v", i, rec)
		}
	}

	last, err := outcomes.LastRun(ctx)
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if last == nil || last.RunID != "run-all" || last.Processed != 3 {
		t.Errorf("unexpected last run: %+v", last)
	}
}

func TestRunnerBoundaryWaitsForSlowestPrefix(t *testing.T) {
	tracker, outcomes := newTestStores(t)
	spy := &spyTracker{Tracker: tracker}
	gen := &delayGenerator{delays: map[int]time.Duration{0: 150 * time.Millisecond}}
	rn := newTestRunner(t, gen, spy, outcomes, RunnerOptions{Workers: 3, RunID: "run-slow"})
	writer := &memWriter{}
	cp := models.Checkpoint{InputFingerprint: "fp", LastRowIndex: -1, TotalRows: 3, OutputPath: "out.csv"}

	if _, err := rn.Run(context.Background(), testRows(3), writer, cp); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// Rows 1 and 2 finish long before row 0, but the boundary cannot move
	// until row 0 lands, so the only save is the jump straight to 2.
	if len(spy.saves) != 1 || spy.saves[0] != 2 {
		t.Errorf("expected a single save at boundary 2, got %v", spy.saves)
	}
	got, err := tracker.Get(context.Background(), "fp")
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if got != nil {
		t.Errorf("checkpoint should be cleared, got %+v", got)
	}
}

func TestRunnerResumeFinishesRemainder(t *testing.T) {
	tracker, outcomes := newTestStores(t)
	rn := newTestRunner(t, &delayGenerator{}, tracker, outcomes, RunnerOptions{Workers: 1, RunID: "run-resume"})
	writer := &memWriter{}
	cp := models.Checkpoint{InputFingerprint: "fp", LastRowIndex: 0, TotalRows: 3, OutputPath: "out.csv"}

	sum, err := rn.Run(context.Background(), testRows(3)[1:], writer, cp)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sum.Processed != 2 || sum.Total != 3 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	got, err := tracker.Get(context.Background(), "fp")
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if got != nil {
		t.Errorf("finishing the remainder should clear the checkpoint, got %+v", got)
	}
}

func TestRunnerWriteFailureStallsBoundary(t *testing.T) {
	tracker, outcomes := newTestStores(t)
	spy := &spyTracker{Tracker: tracker}
	rn := newTestRunner(t, &delayGenerator{}, spy, outcomes, RunnerOptions{Workers: 1, RunID: "run-stall"})
	writer := &memWriter{failRows: map[int]bool{1: true}}
	cp := models.Checkpoint{InputFingerprint: "fp", LastRowIndex: -1, TotalRows: 3, OutputPath: "out.csv"}

	sum, err := rn.Run(context.Background(), testRows(3), writer, cp)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sum.Processed != 3 || sum.Accepted != 2 || sum.Failed != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if len(spy.saves) != 1 || spy.saves[0] != 0 {
		t.Errorf("boundary must stall at row 0, got saves %v", spy.saves)
	}
	got, err := tracker.Get(context.Background(), "fp")
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if got == nil {
		t.Fatal("checkpoint must survive an incomplete run")
	}
	if got.LastRowIndex != 0 {
		t.Errorf("expected boundary 0, got %d", got.LastRowIndex)
	}
}

func TestRunnerCancellationDrainsInFlight(t *testing.T) {
	tracker, outcomes := newTestStores(t)
	gen := &delayGenerator{delays: map[int]time.Duration{
		0: 20 * time.Millisecond,
		1: 20 * time.Millisecond,
		2: 20 * time.Millisecond,
		3: 20 * time.Millisecond,
	}}
	rn := newTestRunner(t, gen, tracker, outcomes, RunnerOptions{Workers: 1, RunID: "run-cancel"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	writer := &memWriter{}
	writer.onWrite = func(outcome models.Outcome) {
		if outcome.RowIndex == 0 {
			cancel()
		}
	}
	cp := models.Checkpoint{InputFingerprint: "fp", LastRowIndex: -1, TotalRows: 4, OutputPath: "out.csv"}

	sum, err := rn.Run(ctx, testRows(4), writer, cp)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// Row 0 always lands; row 1 may have been admitted before the cancel
	// took effect, in which case it is drained and persisted too.
	if sum.Processed < 1 || sum.Processed > 2 {
		t.Fatalf("expected 1 or 2 processed rows, got %d", sum.Processed)
	}
	if writer.count() != sum.Processed {
		t.Errorf("every processed row must be written: %d written, %d processed", writer.count(), sum.Processed)
	}

	got, err := tracker.Get(context.Background(), "fp")
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if got == nil {
		t.Fatal("cancelled run must leave a checkpoint for resume")
	}
	if got.LastRowIndex != sum.Processed-1 {
		t.Errorf("expected boundary %d, got %d", sum.Processed-1, got.LastRowIndex)
	}

	last, err := outcomes.LastRun(context.Background())
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if last == nil || last.RunID != "run-cancel" {
		t.Errorf("cancelled run should still record a summary, got %+v", last)
	}
}

func TestOutcomeRecordFields(t *testing.T) {
	contact := testContact

	accepted := models.Outcome{
		RowIndex: 4,
		Kind:     models.OutcomeAccepted,
		Attempt: &models.GenerationAttempt{
			Variant: models.VariantProblemFocused,
			Text:    "opener",
			Source:  models.SourceAI,
		},
		Evaluation: &models.EvaluationResult{Score: 88, Acceptable: true},
		Subject:    "subject",
		Body:       "body",
	}
	rec := outcomeRecord("run-x", contact, accepted)
	if rec.RunID != "run-x" || rec.RowIndex != 4 || rec.Email != contact.Email {
		t.Errorf("identity fields wrong: %+v", rec)
	}
	if rec.SiteKey != "acme.com" {
		t.Errorf("expected site key acme.com, got %q", rec.SiteKey)
	}
	if rec.Variant != "problem_focused" || rec.Score != 88 || !rec.AIGenerated {
		t.Errorf("generation fields wrong: %+v", rec)
	}

	fallback := models.Outcome{
		RowIndex: 5,
		Kind:     models.OutcomeFallback,
		Attempt:  &models.GenerationAttempt{Text: "template opener", Source: models.SourceTemplate},
		Subject:  "subject",
		Body:     "body",
	}
	rec = outcomeRecord("run-x", contact, fallback)
	if rec.Variant != "" || rec.Score != 0 || rec.AIGenerated {
		t.Errorf("template record should carry no variant or score: %+v", rec)
	}

	failed := models.Outcome{RowIndex: 6, Kind: models.OutcomeFailed, FailReason: "missing required field: website"}
	rec = outcomeRecord("run-x", contact, failed)
	if rec.Kind != models.OutcomeFailed || rec.FailReason == "" {
		t.Errorf("failed record wrong: %+v", rec)
	}
}
