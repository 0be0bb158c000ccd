// Package usage records per-call token accounting for the AI provider, so
// the spend behind a run is visible after the fact.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Ebop14/outreach-bot/pkg/models"
)

// Recorder records and queries AI token usage.
type Recorder interface {
	// Record stores one completion call's accounting.
	Record(ctx context.Context, rec models.UsageRecord) error
	// Query returns records since a given time, newest first.
	Query(ctx context.Context, since time.Time) ([]models.UsageRecord, error)
	// Total returns total tokens used since a given time.
	Total(ctx context.Context, since time.Time) (int64, error)
	// Summary returns aggregated usage grouped by model and tier.
	Summary(ctx context.Context) ([]models.UsageSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteRecorder implements Recorder with a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

const createUsageTable = `
CREATE TABLE IF NOT EXISTS generation_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	model TEXT NOT NULL,
	tier TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_model_time ON generation_usage(model, created_at);
`

// New creates a SQLiteRecorder and runs auto-migration.
func New(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}

	if _, err := db.Exec(createUsageTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage db: %w", err)
	}

	return &SQLiteRecorder{db: db}, nil
}

// Record stores one completion call's accounting.
func (r *SQLiteRecorder) Record(ctx context.Context, rec models.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO generation_usage (model, tier, prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Model, rec.Tier, rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.LatencyMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Query returns records since a given time, newest first.
func (r *SQLiteRecorder) Query(ctx context.Context, since time.Time) ([]models.UsageRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, model, tier, prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at
		 FROM generation_usage WHERE created_at >= ? ORDER BY created_at DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var rec models.UsageRecord
		if err := rows.Scan(&rec.ID, &rec.Model, &rec.Tier, &rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens, &rec.LatencyMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Total returns total tokens used since a given time.
func (r *SQLiteRecorder) Total(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM generation_usage WHERE created_at >= ?`,
		since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total usage: %w", err)
	}
	return total, nil
}

// Summary returns aggregated usage grouped by model and tier.
func (r *SQLiteRecorder) Summary(ctx context.Context) ([]models.UsageSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT model, tier, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens)
		 FROM generation_usage GROUP BY model, tier ORDER BY model, tier`,
	)
	if err != nil {
		return nil, fmt.Errorf("usage summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.Model, &s.Tier, &s.RequestCount, &s.TotalPrompt, &s.TotalCompletion, &s.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
