package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Ebop14/outreach-bot/pkg/models"
	"github.com/Ebop14/outreach-bot/pkg/prompts"
)

// Tier selects the model quality. Dry runs use the fast tier.
type Tier string

const (
	TierStandard Tier = "standard"
	TierFast     Tier = "fast"
)

// UsageRecorder receives per-call token accounting. Recording is
// best-effort; failures are logged, never surfaced to callers.
type UsageRecorder interface {
	Record(ctx context.Context, rec models.UsageRecord) error
}

// ClientOptions holds AI client configuration.
type ClientOptions struct {
	BaseURL   string
	APIKey    string
	Model     string
	ModelFast string
	MaxTokens int

	// MaxRetries bounds transport-level retries within one generation call.
	MaxRetries int
	// Concurrency caps in-flight completions across all workers.
	Concurrency int64
	Timeout     time.Duration

	// Recorder, when set, receives token accounting for every completion.
	Recorder UsageRecorder

	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 256
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 8 * time.Second
	}
	if o.ModelFast == "" {
		o.ModelFast = o.Model
	}
	return o
}

// Client calls an OpenAI-compatible chat completions endpoint to produce
// opener text.
type Client struct {
	opts       ClientOptions
	httpClient *http.Client
	sem        *semaphore.Weighted
	log        *zap.Logger
}

// NewClient creates a Client. The API key and base URL are required.
func NewClient(opts ClientOptions, log *zap.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("provider base URL is required")
	}
	if opts.APIKey == "" {
		return nil, errors.New("provider API key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("provider model is required")
	}
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		sem:        semaphore.NewWeighted(opts.Concurrency),
		log:        log,
	}, nil
}

// ModelFor returns the model name for a tier.
func (c *Client) ModelFor(tier Tier) string {
	if tier == TierFast {
		return c.opts.ModelFast
	}
	return c.opts.Model
}

// GenerateOpener produces one opener for the variant. The returned attempt
// carries the cleaned text; evaluation happens elsewhere.
func (c *Client) GenerateOpener(ctx context.Context, tier Tier, variant models.Variant, contact models.Contact, summary string) (models.GenerationAttempt, error) {
	system, user, err := prompts.Render(variant, contact, summary)
	if err != nil {
		return models.GenerationAttempt{}, &PermanentError{Err: err}
	}

	start := time.Now()
	text, err := c.Complete(ctx, tier, system, user)
	if err != nil {
		return models.GenerationAttempt{}, err
	}

	opener := CleanOpener(text)
	if opener == "" {
		return models.GenerationAttempt{}, &PermanentError{Err: errors.New("empty opener after cleanup")}
	}

	return models.GenerationAttempt{
		Variant:   variant,
		Text:      opener,
		Source:    models.SourceAI,
		Model:     c.ModelFor(tier),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Complete sends one system+user exchange and returns the completion text.
// Transient failures are retried with jittered exponential backoff; the
// concurrency cap holds across retries.
func (c *Client) Complete(ctx context.Context, tier Tier, system, user string) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	req := ChatCompletionRequest{
		Model: c.ModelFor(tier),
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: &c.opts.MaxTokens,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", &PermanentError{Err: fmt.Errorf("encode request: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return "", err
			}
			c.log.Debug("generation retry",
				zap.String("model", req.Model), zap.Int("attempt", attempt), zap.Error(lastErr))
		}

		text, err := c.doRequest(ctx, tier, req.Model, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// doRequest performs a single upstream call and classifies any failure.
func (c *Client) doRequest(ctx context.Context, tier Tier, model string, body []byte) (string, error) {
	url := strings.TrimRight(c.opts.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &PermanentError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("upstream request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		msg := upstreamMessage(respBody)
		err := fmt.Errorf("upstream status %d: %s", resp.StatusCode, msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return "", &TransientError{Err: err}
		}
		return "", &PermanentError{Err: err}
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", &PermanentError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(chatResp.Choices) == 0 {
		return "", &PermanentError{Err: errors.New("no choices in response")}
	}

	if chatResp.Usage != nil {
		c.log.Debug("completion usage",
			zap.String("model", chatResp.Model),
			zap.Int("prompt_tokens", chatResp.Usage.PromptTokens),
			zap.Int("completion_tokens", chatResp.Usage.CompletionTokens))
		c.recordUsage(ctx, tier, model, chatResp, time.Since(start))
	}

	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", &PermanentError{Err: errors.New("empty completion")}
	}
	return text, nil
}

func (c *Client) recordUsage(ctx context.Context, tier Tier, model string, resp ChatCompletionResponse, elapsed time.Duration) {
	if c.opts.Recorder == nil {
		return
	}
	if resp.Model != "" {
		model = resp.Model
	}
	rec := models.UsageRecord{
		Model:            model,
		Tier:             string(tier),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		LatencyMs:        elapsed.Milliseconds(),
	}
	if err := c.opts.Recorder.Record(ctx, rec); err != nil {
		c.log.Warn("usage record failed", zap.Error(err))
	}
}

func upstreamMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	sleep := c.opts.BackoffInitial
	for i := 1; i < attempt && sleep < c.opts.BackoffMax; i++ {
		sleep *= 2
	}
	if sleep > c.opts.BackoffMax {
		sleep = c.opts.BackoffMax
	}
	// Apply +/- 20% jitter.
	sleep = time.Duration(float64(sleep) * (1 + (rand.Float64()*2-1)*0.2))

	t := time.NewTimer(sleep)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
