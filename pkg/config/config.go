package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all outreach-bot configuration.
type Config struct {
	DBPath   string         `yaml:"db_path"`
	Provider ProviderConfig `yaml:"provider"`
	Cache    CacheConfig    `yaml:"cache"`
	Scrape   ScrapeConfig   `yaml:"scrape"`
	Generate GenerateConfig `yaml:"generate"`
	Evaluate EvaluateConfig `yaml:"evaluate"`
	Run      RunConfig      `yaml:"run"`
	DryRun   DryRunConfig   `yaml:"dry_run"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ProviderConfig defines the upstream AI provider. The endpoint speaks the
// OpenAI chat-completions wire format. Model is the standard tier; ModelFast
// is the cheaper tier used by dry runs.
type ProviderConfig struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	ModelFast string `yaml:"model_fast"`
}

// CacheConfig controls the scraped-content cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// ScrapeConfig controls fetching and content extraction.
type ScrapeConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	RPS             float64       `yaml:"rps"`
	DomainDelay     time.Duration `yaml:"domain_delay"`
	MaxContentChars int           `yaml:"max_content_chars"`
	MinArticleWords int           `yaml:"min_article_words"`
	MaxArticles     int           `yaml:"max_articles"`
}

// GenerateConfig controls opener generation.
type GenerateConfig struct {
	MaxTokens        int `yaml:"max_tokens"`
	MaxAttempts      int `yaml:"max_attempts"`
	TransportRetries int `yaml:"transport_retries"`
	Concurrency      int `yaml:"concurrency"`
}

// EvaluateConfig controls quality evaluation.
type EvaluateConfig struct {
	Threshold       int  `yaml:"threshold"`
	AISecondOpinion bool `yaml:"ai_second_opinion"`
}

// RunConfig controls the pipeline worker pool.
type RunConfig struct {
	Workers int `yaml:"workers"`
}

// DryRunConfig controls dry-run artifact output.
type DryRunConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath: "outreach.db",
		Provider: ProviderConfig{
			Name:      "xai",
			URL:       "https://api.x.ai/v1",
			Model:     "grok-3-latest",
			ModelFast: "grok-3-fast-latest",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     7 * 24 * time.Hour,
		},
		Scrape: ScrapeConfig{
			Timeout:         30 * time.Second,
			RPS:             2,
			DomainDelay:     2 * time.Second,
			MaxContentChars: 2000,
			MinArticleWords: 100,
			MaxArticles:     3,
		},
		Generate: GenerateConfig{
			MaxTokens:        256,
			MaxAttempts:      3,
			TransportRetries: 3,
			Concurrency:      4,
		},
		Evaluate: EvaluateConfig{
			Threshold: 70,
		},
		Run: RunConfig{
			Workers: 4,
		},
		DryRun: DryRunConfig{
			OutputDir: "dry_runs",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Provider.URL == "" {
		return fmt.Errorf("provider.url is required")
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	if c.Evaluate.Threshold < 0 || c.Evaluate.Threshold > 100 {
		return fmt.Errorf("evaluate.threshold must be 0-100, got %d", c.Evaluate.Threshold)
	}
	if c.Generate.MaxAttempts < 1 {
		return fmt.Errorf("generate.max_attempts must be at least 1, got %d", c.Generate.MaxAttempts)
	}
	if c.Run.Workers < 1 {
		return fmt.Errorf("run.workers must be at least 1, got %d", c.Run.Workers)
	}
	if c.Scrape.MaxArticles < 1 {
		return fmt.Errorf("scrape.max_articles must be at least 1, got %d", c.Scrape.MaxArticles)
	}
	return nil
}
