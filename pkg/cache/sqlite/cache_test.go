package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Ebop14/outreach-bot/pkg/models"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	s, err := New(dbPath, ttl, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testContent(siteKey string) models.SiteContent {
	return models.SiteContent{
		SiteKey: siteKey,
		BlogURL: "https://" + siteKey + "/blog",
		Articles: []models.Article{
			{Title: "Shipping faster", URL: "https://" + siteKey + "/blog/shipping", Text: "We ship weekly.", WordCount: 120},
		},
		Summary: "Title: Shipping faster\nWe ship weekly.",
	}
}

func TestPutAndGet(t *testing.T) {
	s := newTestStore(t, time.Hour)

	if err := s.Put(testContent("acme.io")); err != nil {
		t.Fatal(err)
	}

	got, ok := s.Get("acme.io")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.BlogURL != "https://acme.io/blog" {
		t.Errorf("unexpected blog url: %s", got.BlogURL)
	}
	if len(got.Articles) != 1 || got.Articles[0].WordCount != 120 {
		t.Errorf("articles did not round-trip: %+v", got.Articles)
	}

	if _, ok := s.Get("other.io"); ok {
		t.Error("expected cache miss for unknown site key")
	}
}

func TestTTLExpiration(t *testing.T) {
	s := newTestStore(t, time.Millisecond)

	if err := s.Put(testContent("acme.io")); err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, ok := s.Get("acme.io"); ok {
		t.Error("expected cache miss after TTL expiration")
	}
}

func TestGetOrFetchUsesCache(t *testing.T) {
	s := newTestStore(t, time.Hour)
	if err := s.Put(testContent("acme.io")); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int64
	content, cached, err := s.GetOrFetch(context.Background(), "acme.io", func(context.Context) (models.SiteContent, error) {
		calls.Add(1)
		return models.SiteContent{}, errors.New("should not fetch")
	})
	if err != nil {
		t.Fatal(err)
	}
	if !cached {
		t.Error("expected cached result")
	}
	if calls.Load() != 0 {
		t.Errorf("fetch called %d times for a cached key", calls.Load())
	}
	if content.SiteKey != "acme.io" {
		t.Errorf("unexpected site key: %s", content.SiteKey)
	}
}

func TestGetOrFetchStoresResult(t *testing.T) {
	s := newTestStore(t, time.Hour)

	content, cached, err := s.GetOrFetch(context.Background(), "acme.io", func(context.Context) (models.SiteContent, error) {
		return testContent("acme.io"), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if cached {
		t.Error("first fetch should not report cached")
	}
	if content.Summary == "" {
		t.Error("expected fetched content")
	}

	if _, ok := s.Get("acme.io"); !ok {
		t.Error("fetched content should be cached")
	}
}

func TestGetOrFetchSingleFlight(t *testing.T) {
	s := newTestStore(t, time.Hour)

	var calls atomic.Int64
	fetch := func(context.Context) (models.SiteContent, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return testContent("acme.io"), nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.GetOrFetch(context.Background(), "acme.io", fetch); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected 1 shared fetch, got %d", calls.Load())
	}
}

func TestGetOrFetchRechecksAfterFailure(t *testing.T) {
	s := newTestStore(t, time.Hour)

	// A fetch that fails after another writer landed the entry: the cached
	// copy should win over the error.
	content, cached, err := s.GetOrFetch(context.Background(), "acme.io", func(context.Context) (models.SiteContent, error) {
		if err := s.Put(testContent("acme.io")); err != nil {
			t.Fatal(err)
		}
		return models.SiteContent{}, errors.New("fetch blew up")
	})
	if err != nil {
		t.Fatalf("expected cached recovery, got %v", err)
	}
	if !cached {
		t.Error("expected cached result after failed fetch")
	}
	if content.BlogURL == "" {
		t.Error("expected the concurrently written content")
	}
}

func TestGetOrFetchPropagatesFailure(t *testing.T) {
	s := newTestStore(t, time.Hour)

	fetchErr := errors.New("site unreachable")
	_, _, err := s.GetOrFetch(context.Background(), "down.io", func(context.Context) (models.SiteContent, error) {
		return models.SiteContent{}, fetchErr
	})
	if !errors.Is(err, fetchErr) {
		t.Errorf("expected fetch error, got %v", err)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t, time.Hour)

	_ = s.Put(testContent("acme.io"))
	s.Get("acme.io") // hit
	s.Get("other.io") // miss

	stats, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
	if got := stats.HitRate(); got != 0.5 {
		t.Errorf("expected 0.5 hit rate, got %f", got)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t, time.Hour)

	_ = s.Put(testContent("a.io"))
	_ = s.Put(testContent("b.io"))

	n, err := s.Clear(false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 removed entries, got %d", n)
	}

	stats, _ := s.Stats()
	if stats.Entries != 0 {
		t.Errorf("expected 0 entries after clear, got %d", stats.Entries)
	}
}

func TestClearExpiredOnly(t *testing.T) {
	s := newTestStore(t, time.Millisecond)

	_ = s.Put(testContent("old.io"))
	time.Sleep(10 * time.Millisecond)

	fresh := testContent("fresh.io")
	fresh.FetchedAt = time.Now().UTC().Add(time.Hour)
	_ = s.Put(fresh)

	n, err := s.Clear(true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 removed entry, got %d", n)
	}

	stats, _ := s.Stats()
	if stats.Entries != 1 {
		t.Errorf("expected only the fresh entry to survive, got %d", stats.Entries)
	}
}
