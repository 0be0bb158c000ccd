// Package pipeline drives contacts through scrape, analysis, generation,
// and evaluation to a terminal outcome. A bounded worker pool (Runner)
// processes many contacts while keeping checkpoint resume semantics simple.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/Ebop14/outreach-bot/pkg/analyze"
	"github.com/Ebop14/outreach-bot/pkg/generate"
	"github.com/Ebop14/outreach-bot/pkg/models"
	"github.com/Ebop14/outreach-bot/pkg/prompts"
)

// State identifies where a contact sits in the per-contact machine.
type State int

const (
	StateScraping State = iota
	StateAnalyzing
	StateGenerating
	StateEvaluating
	StateRetrying
	StateFallingBack
	StateAccepted
)

var stateNames = map[State]string{
	StateScraping:    "scraping",
	StateAnalyzing:   "analyzing",
	StateGenerating:  "generating",
	StateEvaluating:  "evaluating",
	StateRetrying:    "retrying",
	StateFallingBack: "falling_back",
	StateAccepted:    "accepted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ContentCache hands out site content, deduplicating concurrent fetches for
// the same site key.
type ContentCache interface {
	GetOrFetch(ctx context.Context, siteKey string, fetch func(context.Context) (models.SiteContent, error)) (models.SiteContent, bool, error)
}

// Scraper fetches and summarizes a prospect's site.
type Scraper interface {
	Scrape(ctx context.Context, website string) (models.SiteContent, error)
}

// Generator produces one opener attempt for a prompt variant.
type Generator interface {
	GenerateOpener(ctx context.Context, tier generate.Tier, variant models.Variant, contact models.Contact, summary string) (models.GenerationAttempt, error)
}

// Evaluator scores opener text.
type Evaluator interface {
	Evaluate(ctx context.Context, text string) models.EvaluationResult
}

// Options configures per-contact processing.
type Options struct {
	// MaxAttempts bounds AI generation attempts before template fallback.
	// Defaults to 3.
	MaxAttempts int
	// InitialVariant is the first prompt variant tried; retries advance
	// through the catalog from there. Defaults to direct reference.
	InitialVariant models.Variant
	// SkipEvaluation accepts the first AI attempt without quality gating.
	SkipEvaluation bool
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.InitialVariant == 0 {
		o.InitialVariant = models.VariantDirectReference
	}
	return o
}

// Pipeline sequences one contact to a terminal outcome.
type Pipeline struct {
	cache     ContentCache
	scraper   Scraper
	analyzer  *analyze.Analyzer
	generator Generator
	evaluator Evaluator
	opts      Options
	log       *zap.Logger
}

func New(cache ContentCache, scraper Scraper, analyzer *analyze.Analyzer, generator Generator, evaluator Evaluator, opts Options, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cache:     cache,
		scraper:   scraper,
		analyzer:  analyzer,
		generator: generator,
		evaluator: evaluator,
		opts:      opts.withDefaults(),
		log:       log,
	}
}

// run is the mutable per-contact state the machine advances.
type run struct {
	contact     models.Contact
	state       State
	content     models.SiteContent
	variants    []models.Variant
	attempts    int
	useTemplate bool
	attempt     models.GenerationAttempt
	eval        *models.EvaluationResult
}

// Process drives a contact through the state machine. It always returns a
// terminal outcome; only missing required fields produce a failed one, since
// the template path cannot otherwise fail.
func (p *Pipeline) Process(ctx context.Context, contact models.Contact) models.Outcome {
	log := p.log.With(zap.Int("row", contact.RowIndex), zap.String("email", contact.Email))

	if err := contact.Validate(); err != nil {
		log.Warn("contact rejected", zap.Error(err))
		return models.Outcome{RowIndex: contact.RowIndex, Kind: models.OutcomeFailed, FailReason: err.Error()}
	}

	r := &run{
		contact:  contact,
		state:    StateScraping,
		variants: prompts.Sequence(p.opts.InitialVariant),
	}

	for r.state != StateAccepted {
		switch r.state {
		case StateScraping:
			p.scrapeStage(ctx, r, log)
		case StateAnalyzing:
			p.analyzeStage(r, log)
		case StateGenerating:
			p.generateStage(ctx, r, log)
		case StateEvaluating:
			p.evaluateStage(ctx, r, log)
		case StateRetrying:
			r.state = StateGenerating
		case StateFallingBack:
			r.useTemplate = true
			r.state = StateGenerating
		}
	}

	return p.finish(r, log)
}

// scrapeStage fills run content. Scrape failure is never terminal: the
// analyzer classifies empty content low quality and the template path takes
// over. A nil cache degrades to a direct fetch.
func (p *Pipeline) scrapeStage(ctx context.Context, r *run, log *zap.Logger) {
	siteKey := r.contact.SiteKey()

	var (
		content models.SiteContent
		cached  bool
		err     error
	)
	if p.cache != nil {
		content, cached, err = p.cache.GetOrFetch(ctx, siteKey, func(ctx context.Context) (models.SiteContent, error) {
			return p.scraper.Scrape(ctx, r.contact.Website)
		})
	} else {
		content, err = p.scraper.Scrape(ctx, r.contact.Website)
	}
	if err != nil {
		log.Warn("scrape failed, continuing with empty content", zap.String("site", siteKey), zap.Error(err))
		content = models.SiteContent{SiteKey: siteKey}
	} else if cached {
		log.Debug("content served from cache", zap.String("site", siteKey))
	}

	r.content = content
	r.state = StateAnalyzing
}

// analyzeStage gates the AI path. Unusable content skips generation cost
// entirely and goes straight to the template.
func (p *Pipeline) analyzeStage(r *run, log *zap.Logger) {
	if p.analyzer.Usable(r.content) {
		r.state = StateGenerating
		return
	}

	_, reason := p.analyzer.Classify(r.content)
	if reason == "" {
		reason = "summary too short"
	}
	log.Info("content not usable, template path",
		zap.String("site", r.content.SiteKey), zap.String("reason", reason))
	r.state = StateFallingBack
}

func (p *Pipeline) generateStage(ctx context.Context, r *run, log *zap.Logger) {
	if r.useTemplate {
		r.attempt = generate.TemplateAttempt(r.contact, r.contact.RowIndex)
		r.eval = nil
		r.state = StateAccepted
		return
	}

	if r.attempts >= p.opts.MaxAttempts || r.attempts >= len(r.variants) {
		r.state = StateFallingBack
		return
	}
	variant := r.variants[r.attempts]
	r.attempts++

	attempt, err := p.generator.GenerateOpener(ctx, generate.TierStandard, variant, r.contact, r.content.Summary)
	if err != nil {
		log.Warn("generation failed, falling back to template",
			zap.String("variant", variant.Key()), zap.Error(err))
		r.state = StateFallingBack
		return
	}
	r.attempt = attempt
	log.Debug("opener generated",
		zap.String("variant", variant.Key()),
		zap.Int("attempt", r.attempts),
		zap.Int64("latency_ms", attempt.LatencyMs))

	if p.opts.SkipEvaluation {
		r.eval = nil
		r.state = StateAccepted
		return
	}
	r.state = StateEvaluating
}

func (p *Pipeline) evaluateStage(ctx context.Context, r *run, log *zap.Logger) {
	eval := p.evaluator.Evaluate(ctx, r.attempt.Text)
	r.eval = &eval

	if eval.Acceptable {
		log.Info("opener accepted",
			zap.String("variant", r.attempt.Variant.Key()),
			zap.Int("score", eval.Score),
			zap.Int("attempts", r.attempts))
		r.state = StateAccepted
		return
	}

	if r.attempts < p.opts.MaxAttempts && r.attempts < len(r.variants) {
		log.Info("opener rejected, retrying with next variant",
			zap.Int("score", eval.Score),
			zap.Int("issues", eval.TotalIssues()),
			zap.Int("attempt", r.attempts))
		r.state = StateRetrying
		return
	}

	log.Info("attempts exhausted, falling back to template",
		zap.Int("score", eval.Score), zap.Int("attempts", r.attempts))
	r.state = StateFallingBack
}

func (p *Pipeline) finish(r *run, log *zap.Logger) models.Outcome {
	subject, body := generate.AssembleEmail(r.contact, r.attempt.Text, r.contact.RowIndex)

	kind := models.OutcomeFallback
	if r.attempt.Source == models.SourceAI {
		kind = models.OutcomeAccepted
	}
	attempt := r.attempt

	log.Debug("contact finished", zap.String("outcome", string(kind)))
	return models.Outcome{
		RowIndex:   r.contact.RowIndex,
		Kind:       kind,
		Attempt:    &attempt,
		Evaluation: r.eval,
		Subject:    subject,
		Body:       body,
	}
}
