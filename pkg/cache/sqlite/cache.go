package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"github.com/Ebop14/outreach-bot/pkg/models"
)

// Store is a scraped-content cache backed by SQLite. Entries are keyed by
// normalized site key so contacts sharing a company website reuse one scrape.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	log    *zap.Logger
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

const createContentTable = `
CREATE TABLE IF NOT EXISTS content_cache (
	site_key TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	payload TEXT NOT NULL,
	fetched_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);
`

// New creates a Store with the given database path and entry TTL.
func New(dbPath string, ttl time.Duration, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createContentTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, ttl: ttl, log: log}, nil
}

// ContentHash computes a SHA-256 hash of the serialized payload.
func ContentHash(payload []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(payload))
}

// Get retrieves cached content for a site key. Returns false if absent or
// expired. Expired rows are left in place; Clear removes them.
func (s *Store) Get(siteKey string) (models.SiteContent, bool) {
	var payload []byte
	var expiresAt time.Time

	err := s.db.QueryRow(
		`SELECT payload, expires_at FROM content_cache WHERE site_key = ?`,
		siteKey,
	).Scan(&payload, &expiresAt)

	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("cache read failed, treating as miss",
				zap.String("site_key", siteKey), zap.Error(err))
		}
		s.misses.Add(1)
		return models.SiteContent{}, false
	}

	if !time.Now().Before(expiresAt) {
		s.misses.Add(1)
		return models.SiteContent{}, false
	}

	var content models.SiteContent
	if err := json.Unmarshal(payload, &content); err != nil {
		s.log.Warn("cache payload corrupt, treating as miss",
			zap.String("site_key", siteKey), zap.Error(err))
		s.misses.Add(1)
		return models.SiteContent{}, false
	}

	s.hits.Add(1)
	return content, true
}

// Put stores scraped content under its site key, replacing any prior entry.
func (s *Store) Put(content models.SiteContent) error {
	if content.FetchedAt.IsZero() {
		content.FetchedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO content_cache (site_key, content_hash, payload, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		content.SiteKey, ContentHash(payload), payload,
		content.FetchedAt, content.FetchedAt.Add(s.ttl),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// GetOrFetch returns cached content for the site key, or runs fetch and
// caches the result. Concurrent callers for the same key share one fetch.
// If the fetch fails, the cache is re-checked before the error is returned:
// another caller's fetch may have landed in the meantime. Cache write
// failures degrade to returning the fetched content uncached.
func (s *Store) GetOrFetch(ctx context.Context, siteKey string, fetch func(context.Context) (models.SiteContent, error)) (models.SiteContent, bool, error) {
	type flight struct {
		content models.SiteContent
		cached  bool
	}

	v, err, _ := s.group.Do(siteKey, func() (interface{}, error) {
		if content, ok := s.Get(siteKey); ok {
			return flight{content: content, cached: true}, nil
		}

		content, err := fetch(ctx)
		if err != nil {
			if content, ok := s.Get(siteKey); ok {
				return flight{content: content, cached: true}, nil
			}
			return nil, err
		}

		content.SiteKey = siteKey
		if putErr := s.Put(content); putErr != nil {
			s.log.Warn("cache write failed, continuing uncached",
				zap.String("site_key", siteKey), zap.Error(putErr))
		}
		return flight{content: content}, nil
	})
	if err != nil {
		return models.SiteContent{}, false, err
	}

	f := v.(flight)
	return f.content, f.cached, nil
}

// Stats returns cache effectiveness counters.
func (s *Store) Stats() (models.CacheStats, error) {
	var entries, expired int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM content_cache`).Scan(&entries); err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM content_cache WHERE expires_at <= ?`, time.Now().UTC(),
	).Scan(&expired)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: entries,
		Expired: expired,
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}, nil
}

// Clear removes cache entries and returns how many rows were removed. If
// expiredOnly is true, only expired entries are removed.
func (s *Store) Clear(expiredOnly bool) (int64, error) {
	var res sql.Result
	var err error
	if expiredOnly {
		res, err = s.db.Exec(`DELETE FROM content_cache WHERE expires_at <= ?`, time.Now().UTC())
	} else {
		res, err = s.db.Exec(`DELETE FROM content_cache`)
	}
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return n, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
