// Package runlog records terminal per-contact outcomes and run summaries.
// The status command reads it; the main output CSV stays the authoritative
// deliverable.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Ebop14/outreach-bot/pkg/models"
)

// Log records and queries pipeline outcomes.
type Log interface {
	// RecordOutcome stores one terminal outcome.
	RecordOutcome(ctx context.Context, rec models.OutcomeRecord) error
	// RecordRun upserts a run summary.
	RecordRun(ctx context.Context, sum models.RunSummary) error
	// LastRun returns the most recently finished run, or nil when none exists.
	LastRun(ctx context.Context) (*models.RunSummary, error)
	// Outcomes returns all outcomes for a run in row order.
	Outcomes(ctx context.Context, runID string) ([]models.OutcomeRecord, error)
	// Counts returns cumulative outcome totals grouped by kind.
	Counts(ctx context.Context) (map[models.OutcomeKind]int64, error)
	// Close releases resources.
	Close() error
}

// SQLiteLog implements Log with a SQLite database.
type SQLiteLog struct {
	db *sql.DB
}

const createOutcomesTable = `
CREATE TABLE IF NOT EXISTS outcomes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	row_index INTEGER NOT NULL,
	email TEXT NOT NULL,
	company TEXT NOT NULL,
	site_key TEXT NOT NULL,
	kind TEXT NOT NULL,
	variant TEXT NOT NULL DEFAULT '',
	score INTEGER NOT NULL DEFAULT 0,
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	ai_generated INTEGER NOT NULL DEFAULT 0,
	fail_reason TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id, row_index);
`

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	input_path TEXT NOT NULL,
	output_path TEXT NOT NULL,
	total INTEGER NOT NULL,
	processed INTEGER NOT NULL,
	accepted INTEGER NOT NULL,
	fallback INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);
`

// New creates a SQLiteLog and runs auto-migration.
func New(dbPath string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open runlog db: %w", err)
	}

	if _, err := db.Exec(createOutcomesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate outcomes table: %w", err)
	}
	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate runs table: %w", err)
	}

	return &SQLiteLog{db: db}, nil
}

// RecordOutcome stores one terminal outcome.
func (l *SQLiteLog) RecordOutcome(ctx context.Context, rec models.OutcomeRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, row_index, email, company, site_key, kind, variant, score, subject, body, ai_generated, fail_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.RowIndex, rec.Email, rec.Company, rec.SiteKey, string(rec.Kind),
		rec.Variant, rec.Score, rec.Subject, rec.Body, rec.AIGenerated, rec.FailReason, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// RecordRun upserts a run summary.
func (l *SQLiteLog) RecordRun(ctx context.Context, sum models.RunSummary) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, input_path, output_path, total, processed, accepted, fallback, failed, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.InputPath, sum.OutputPath, sum.Total, sum.Processed,
		sum.Accepted, sum.Fallback, sum.Failed, sum.StartedAt, sum.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// LastRun returns the most recently finished run, or nil when none exists.
func (l *SQLiteLog) LastRun(ctx context.Context) (*models.RunSummary, error) {
	var sum models.RunSummary
	err := l.db.QueryRowContext(ctx,
		`SELECT run_id, input_path, output_path, total, processed, accepted, fallback, failed, started_at, finished_at
		 FROM runs ORDER BY finished_at DESC LIMIT 1`,
	).Scan(&sum.RunID, &sum.InputPath, &sum.OutputPath, &sum.Total, &sum.Processed,
		&sum.Accepted, &sum.Fallback, &sum.Failed, &sum.StartedAt, &sum.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	return &sum, nil
}

// Outcomes returns all outcomes for a run in row order.
func (l *SQLiteLog) Outcomes(ctx context.Context, runID string) ([]models.OutcomeRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, run_id, row_index, email, company, site_key, kind, variant, score, subject, body, ai_generated, fail_reason, created_at
		 FROM outcomes WHERE run_id = ? ORDER BY row_index ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var records []models.OutcomeRecord
	for rows.Next() {
		var r models.OutcomeRecord
		if err := rows.Scan(&r.ID, &r.RunID, &r.RowIndex, &r.Email, &r.Company, &r.SiteKey, &r.Kind,
			&r.Variant, &r.Score, &r.Subject, &r.Body, &r.AIGenerated, &r.FailReason, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Counts returns cumulative outcome totals grouped by kind.
func (l *SQLiteLog) Counts(ctx context.Context) (map[models.OutcomeKind]int64, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM outcomes GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.OutcomeKind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[models.OutcomeKind(kind)] = n
	}
	return counts, rows.Err()
}

// Close releases the database connection.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}
