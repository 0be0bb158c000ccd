package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/Ebop14/outreach-bot/pkg/analyze"
	"github.com/Ebop14/outreach-bot/pkg/generate"
	"github.com/Ebop14/outreach-bot/pkg/models"
)

const rejectedMarker = "synergy"

var testContact = models.Contact{
	Email:     "jane@acme.com",
	FirstName: "Jane",
	LastName:  "Doe",
	Company:   "Acme",
	Website:   "https://acme.com",
	RowIndex:  0,
}

func usableContent() models.SiteContent {
	return models.SiteContent{
		SiteKey: "acme.com",
		BlogURL: "https://acme.com/blog",
		Articles: []models.Article{
			{Title: "Scaling ingestion", URL: "https://acme.com/blog/scaling", WordCount: 400},
		},
		Summary:          "Title: Scaling ingestion\n" + strings.Repeat("Queue depth grows under load. ", 4),
		BoilerplateRatio: 0.2,
	}
}

// passCache calls the fetch function directly, no storage.
type passCache struct{}

func (passCache) GetOrFetch(ctx context.Context, _ string, fetch func(context.Context) (models.SiteContent, error)) (models.SiteContent, bool, error) {
	content, err := fetch(ctx)
	if err != nil {
		return models.SiteContent{}, false, err
	}
	return content, false, nil
}

// hitCache serves fixed content as a cache hit, never fetching.
type hitCache struct {
	content models.SiteContent
}

func (c hitCache) GetOrFetch(context.Context, string, func(context.Context) (models.SiteContent, error)) (models.SiteContent, bool, error) {
	return c.content, true, nil
}

type fakeScraper struct {
	content models.SiteContent
	err     error
	calls   atomic.Int64
}

func (s *fakeScraper) Scrape(context.Context, string) (models.SiteContent, error) {
	s.calls.Add(1)
	if s.err != nil {
		return models.SiteContent{}, s.err
	}
	return s.content, nil
}

// fakeGenerator replays scripted opener texts and records the variant order.
type fakeGenerator struct {
	mu       sync.Mutex
	texts    []string
	err      error
	variants []models.Variant
}

func (g *fakeGenerator) GenerateOpener(_ context.Context, _ generate.Tier, variant models.Variant, _ models.Contact, _ string) (models.GenerationAttempt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.variants = append(g.variants, variant)
	if g.err != nil {
		return models.GenerationAttempt{}, g.err
	}
	idx := len(g.variants) - 1
	if idx >= len(g.texts) {
		idx = len(g.texts) - 1
	}
	return models.GenerationAttempt{
		Variant: variant,
		Text:    g.texts[idx],
		Source:  models.SourceAI,
		Model:   "grok-3-latest",
	}, nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.variants)
}

// markerEvaluator rejects any text containing the rejected marker.
type markerEvaluator struct{}

func (markerEvaluator) Evaluate(_ context.Context, text string) models.EvaluationResult {
	if strings.Contains(text, rejectedMarker) {
		return models.EvaluationResult{
			Score:        40,
			Acceptable:   false,
			AIIndicators: []string{"AI phrase detected: 'synergy'"},
		}
	}
	return models.EvaluationResult{Score: 95, Acceptable: true}
}

func newTestPipeline(t *testing.T, cache ContentCache, scraper Scraper, gen Generator, opts Options) *Pipeline {
	t.Helper()
	return New(cache, scraper, analyze.New(analyze.Options{}), gen, markerEvaluator{}, opts, zap.NewNop())
}

func TestProcessAcceptsFirstAttempt(t *testing.T) {
	scraper := &fakeScraper{content: usableContent()}
	gen := &fakeGenerator{texts: []string{"Your queue post stood out."}}
	p := newTestPipeline(t, passCache{}, scraper, gen, Options{})

	out := p.Process(context.Background(), testContact)

	if out.Kind != models.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s (%s)", out.Kind, out.FailReason)
	}
	if !out.AIGenerated() {
		t.Error("expected AI-generated outcome")
	}
	if gen.calls() != 1 {
		t.Errorf("expected 1 generation call, got %d", gen.calls())
	}
	if out.Attempt.Variant != models.VariantDirectReference {
		t.Errorf("expected direct reference first, got %s", out.Attempt.Variant)
	}
	if out.Evaluation == nil || out.Evaluation.Score != 95 {
		t.Errorf("unexpected evaluation: %+v", out.Evaluation)
	}
	if !strings.HasPrefix(out.Body, "Hi Jane,\n\nYour queue post stood out.") {
		t.Errorf("unexpected body: %q", out.Body)
	}
	if out.Subject == "" {
		t.Error("expected subject")
	}
}

func TestProcessRetriesVariantsInOrder(t *testing.T) {
	scraper := &fakeScraper{content: usableContent()}
	gen := &fakeGenerator{texts: []string{
		"We bring synergy to queues.",
		"More synergy for your stack.",
		"Your queue post stood out.",
	}}
	p := newTestPipeline(t, passCache{}, scraper, gen, Options{})

	out := p.Process(context.Background(), testContact)

	if out.Kind != models.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", out.Kind)
	}
	want := []models.Variant{models.VariantDirectReference, models.VariantProblemFocused, models.VariantComplimentInsight}
	if len(gen.variants) != len(want) {
		t.Fatalf("expected %d attempts, got %d", len(want), len(gen.variants))
	}
	for i, v := range want {
		if gen.variants[i] != v {
			t.Errorf("attempt %d: expected %s, got %s", i, v, gen.variants[i])
		}
	}
	if out.Attempt.Text != "Your queue post stood out." {
		t.Errorf("unexpected accepted text: %q", out.Attempt.Text)
	}
}

func TestProcessExhaustedFallsBack(t *testing.T) {
	scraper := &fakeScraper{content: usableContent()}
	gen := &fakeGenerator{texts: []string{"Nothing but synergy here."}}
	p := newTestPipeline(t, passCache{}, scraper, gen, Options{})

	out := p.Process(context.Background(), testContact)

	if out.Kind != models.OutcomeFallback {
		t.Fatalf("expected fallback, got %s", out.Kind)
	}
	if gen.calls() != 3 {
		t.Errorf("expected exactly 3 AI attempts, got %d", gen.calls())
	}
	seen := map[models.Variant]bool{}
	for _, v := range gen.variants {
		if seen[v] {
			t.Errorf("variant %s attempted twice", v)
		}
		seen[v] = true
	}
	if out.AIGenerated() {
		t.Error("fallback should not be AI-generated")
	}
	if out.Evaluation != nil {
		t.Error("template output should carry no evaluation")
	}
	if !strings.Contains(out.Attempt.Text, "Acme") {
		t.Errorf("template opener should mention the company: %q", out.Attempt.Text)
	}
}

func TestProcessLowQualitySkipsAI(t *testing.T) {
	scraper := &fakeScraper{content: models.SiteContent{SiteKey: "acme.com"}}
	gen := &fakeGenerator{texts: []string{"unused"}}
	p := newTestPipeline(t, passCache{}, scraper, gen, Options{})

	out := p.Process(context.Background(), testContact)

	if out.Kind != models.OutcomeFallback {
		t.Fatalf("expected fallback, got %s", out.Kind)
	}
	if gen.calls() != 0 {
		t.Errorf("low-quality content must never reach the AI client, got %d calls", gen.calls())
	}
	if out.AIGenerated() {
		t.Error("expected template outcome")
	}
}

func TestProcessScrapeFailureUsesTemplate(t *testing.T) {
	scraper := &fakeScraper{err: errors.New("connection refused")}
	gen := &fakeGenerator{texts: []string{"unused"}}
	p := newTestPipeline(t, passCache{}, scraper, gen, Options{})

	out := p.Process(context.Background(), testContact)

	if out.Kind != models.OutcomeFallback {
		t.Fatalf("expected fallback, got %s", out.Kind)
	}
	if gen.calls() != 0 {
		t.Errorf("expected no AI attempts, got %d", gen.calls())
	}
	if out.Subject == "" || out.Body == "" {
		t.Error("template outcome should still produce a full email")
	}
}

func TestProcessPermanentErrorFallsBackImmediately(t *testing.T) {
	scraper := &fakeScraper{content: usableContent()}
	gen := &fakeGenerator{err: &generate.PermanentError{Err: errors.New("model not found")}}
	p := newTestPipeline(t, passCache{}, scraper, gen, Options{})

	out := p.Process(context.Background(), testContact)

	if out.Kind != models.OutcomeFallback {
		t.Fatalf("expected fallback, got %s", out.Kind)
	}
	if gen.calls() != 1 {
		t.Errorf("permanent errors should not burn retries, got %d calls", gen.calls())
	}
}

func TestProcessMissingFieldsFails(t *testing.T) {
	scraper := &fakeScraper{content: usableContent()}
	gen := &fakeGenerator{texts: []string{"unused"}}
	p := newTestPipeline(t, passCache{}, scraper, gen, Options{})

	contact := testContact
	contact.Website = ""
	out := p.Process(context.Background(), contact)

	if out.Kind != models.OutcomeFailed {
		t.Fatalf("expected failed, got %s", out.Kind)
	}
	if !strings.Contains(out.FailReason, "website") {
		t.Errorf("reason should name the missing field: %q", out.FailReason)
	}
	if scraper.calls.Load() != 0 || gen.calls() != 0 {
		t.Error("invalid contacts should not reach any stage")
	}
}

func TestProcessSkipEvaluation(t *testing.T) {
	scraper := &fakeScraper{content: usableContent()}
	gen := &fakeGenerator{texts: []string{"Nothing but synergy here."}}
	p := newTestPipeline(t, passCache{}, scraper, gen, Options{SkipEvaluation: true})

	out := p.Process(context.Background(), testContact)

	if out.Kind != models.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", out.Kind)
	}
	if gen.calls() != 1 {
		t.Errorf("expected a single attempt, got %d", gen.calls())
	}
	if out.Evaluation != nil {
		t.Error("skip-evaluation outcomes carry no evaluation")
	}
}

func TestProcessInitialVariantRotation(t *testing.T) {
	scraper := &fakeScraper{content: usableContent()}
	gen := &fakeGenerator{texts: []string{"synergy first", "Your queue post stood out."}}
	p := newTestPipeline(t, passCache{}, scraper, gen, Options{InitialVariant: models.VariantMinimalist})

	out := p.Process(context.Background(), testContact)

	if out.Kind != models.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", out.Kind)
	}
	want := []models.Variant{models.VariantMinimalist, models.VariantDirectReference}
	for i, v := range want {
		if gen.variants[i] != v {
			t.Errorf("attempt %d: expected %s, got %s", i, v, gen.variants[i])
		}
	}
}

func TestProcessMaxAttempts(t *testing.T) {
	scraper := &fakeScraper{content: usableContent()}
	gen := &fakeGenerator{texts: []string{"Nothing but synergy here."}}
	p := newTestPipeline(t, passCache{}, scraper, gen, Options{MaxAttempts: 1})

	out := p.Process(context.Background(), testContact)

	if out.Kind != models.OutcomeFallback {
		t.Fatalf("expected fallback, got %s", out.Kind)
	}
	if gen.calls() != 1 {
		t.Errorf("expected 1 attempt, got %d", gen.calls())
	}
}

func TestProcessCacheHitSkipsScrape(t *testing.T) {
	scraper := &fakeScraper{err: errors.New("should not be called")}
	gen := &fakeGenerator{texts: []string{"Your queue post stood out."}}
	p := newTestPipeline(t, hitCache{content: usableContent()}, scraper, gen, Options{})

	out := p.Process(context.Background(), testContact)

	if out.Kind != models.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", out.Kind)
	}
	if scraper.calls.Load() != 0 {
		t.Error("cache hit should skip the scraper")
	}
}
