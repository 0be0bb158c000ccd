package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseBodyBytes limits the size of fetched page responses.
const maxResponseBodyBytes = 10 * 1024 * 1024 // 10 MB

// Options holds fetcher configuration.
type Options struct {
	Timeout     time.Duration
	RPS         float64
	DomainDelay time.Duration
	UserAgent   string
	MaxRetries  int

	// BackoffInitial is the initial sleep before retrying a transient failure.
	BackoffInitial time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.RPS <= 0 {
		o.RPS = 2
	}
	if o.UserAgent == "" {
		o.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = time.Second
	}
	return o
}

// Page is one fetched document. URL is the final URL after redirects.
type Page struct {
	URL  string
	Body []byte
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= http.StatusInternalServerError
}

// Fetcher performs polite HTTP fetches: a global request rate limit plus a
// minimum delay between requests to the same host.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
	log     *zap.Logger

	mu        sync.Mutex
	nextFetch map[string]time.Time
}

// NewFetcher creates a Fetcher with the given options.
func NewFetcher(opts Options, log *zap.Logger) *Fetcher {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(opts.RPS), 1),
		opts:      opts,
		log:       log,
		nextFetch: make(map[string]time.Time),
	}
}

// NormalizeURL ensures the URL has a scheme, defaulting to https.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if !strings.Contains(raw, "://") {
		return "https://" + raw
	}
	return raw
}

// Fetch retrieves one page, retrying transient failures with exponential
// backoff. Rate-limit and server-error statuses wait longer between attempts.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	pageURL := NormalizeURL(rawURL)
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	var lastErr error
	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := f.backoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if err := f.waitDomain(ctx, parsed.Host); err != nil {
			return nil, err
		}

		page, err := f.fetchOnce(ctx, pageURL)
		if err == nil {
			return page, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.log.Debug("fetch retry", zap.String("url", pageURL), zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	ctype := resp.Header.Get("Content-Type")
	if ctype != "" && !strings.Contains(ctype, "text/html") && !strings.Contains(ctype, "text/plain") {
		return nil, fmt.Errorf("fetch %s: unsupported content type %q", pageURL, ctype)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Page{URL: resp.Request.URL.String(), Body: body}, nil
}

// waitDomain reserves the next fetch slot for a host and sleeps until it.
func (f *Fetcher) waitDomain(ctx context.Context, host string) error {
	if f.opts.DomainDelay <= 0 || host == "" {
		return nil
	}

	f.mu.Lock()
	now := time.Now()
	next := f.nextFetch[host]
	if next.Before(now) {
		next = now
	}
	f.nextFetch[host] = next.Add(f.opts.DomainDelay)
	f.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fetcher) backoff(ctx context.Context, attempt int, lastErr error) error {
	sleep := f.opts.BackoffInitial
	for i := 1; i < attempt; i++ {
		sleep *= 2
	}
	// Rate-limited and overloaded hosts get double the wait.
	var statusErr *StatusError
	if errors.As(lastErr, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode == http.StatusServiceUnavailable {
			sleep *= 2
		}
	}
	t := time.NewTimer(sleep)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

