package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Ebop14/outreach-bot/pkg/analyze"
	cachesqlite "github.com/Ebop14/outreach-bot/pkg/cache/sqlite"
	"github.com/Ebop14/outreach-bot/pkg/config"
	"github.com/Ebop14/outreach-bot/pkg/evaluate"
	"github.com/Ebop14/outreach-bot/pkg/generate"
	"github.com/Ebop14/outreach-bot/pkg/pipeline"
	"github.com/Ebop14/outreach-bot/pkg/scrape"
	"github.com/Ebop14/outreach-bot/pkg/usage"
)

// components are the collaborators shared by run and dry-run.
type components struct {
	store     *cachesqlite.Store // nil when the cache is disabled
	recorder  *usage.SQLiteRecorder
	scraper   *scrape.Scraper
	analyzer  *analyze.Analyzer
	client    *generate.Client
	evaluator *evaluate.Evaluator
}

func buildComponents(cfg *config.Config, log *zap.Logger) (*components, error) {
	var store *cachesqlite.Store
	if cfg.Cache.Enabled {
		s, err := cachesqlite.New(cfg.DBPath, cfg.Cache.TTL, log)
		if err != nil {
			return nil, fmt.Errorf("init content cache: %w", err)
		}
		store = s
	}

	recorder, err := usage.New(cfg.DBPath)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("init usage recorder: %w", err)
	}

	fetcher := scrape.NewFetcher(scrape.Options{
		Timeout:     cfg.Scrape.Timeout,
		RPS:         cfg.Scrape.RPS,
		DomainDelay: cfg.Scrape.DomainDelay,
	}, log)
	scraper := scrape.NewScraper(fetcher, scrape.ScraperOptions{
		MaxArticles:     cfg.Scrape.MaxArticles,
		MaxContentChars: cfg.Scrape.MaxContentChars,
	}, log)
	analyzer := analyze.New(analyze.Options{MinArticleWords: cfg.Scrape.MinArticleWords})

	client, err := generate.NewClient(generate.ClientOptions{
		BaseURL:     cfg.Provider.URL,
		APIKey:      cfg.Provider.APIKey,
		Model:       cfg.Provider.Model,
		ModelFast:   cfg.Provider.ModelFast,
		MaxTokens:   cfg.Generate.MaxTokens,
		MaxRetries:  cfg.Generate.TransportRetries,
		Concurrency: int64(cfg.Generate.Concurrency),
		Recorder:    recorder,
	}, log)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		_ = recorder.Close()
		return nil, fmt.Errorf("init ai client: %w", err)
	}

	var completer evaluate.Completer
	if cfg.Evaluate.AISecondOpinion {
		completer = client
	}
	evaluator := evaluate.New(evaluate.Options{
		Threshold: cfg.Evaluate.Threshold,
		Completer: completer,
	}, log)

	return &components{
		store:     store,
		recorder:  recorder,
		scraper:   scraper,
		analyzer:  analyzer,
		client:    client,
		evaluator: evaluator,
	}, nil
}

func (c *components) Close() {
	if c.store != nil {
		_ = c.store.Close()
	}
	_ = c.recorder.Close()
}

// cache returns the content cache for the pipeline, or a nil interface when
// disabled. Returning c.store directly would hand the pipeline a typed nil.
func (c *components) cache() pipeline.ContentCache {
	if c.store == nil {
		return nil
	}
	return c.store
}
