// Package progress persists run checkpoints so an interrupted run can
// resume without reprocessing completed rows.
package progress

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Ebop14/outreach-bot/pkg/models"
)

// Tracker records and queries run checkpoints, keyed by the input file's
// content fingerprint. A changed input file never matches a stored
// checkpoint and therefore starts fresh.
type Tracker interface {
	// Get returns the checkpoint for a fingerprint, or nil when none exists.
	Get(ctx context.Context, fingerprint string) (*models.Checkpoint, error)
	// Save upserts a checkpoint.
	Save(ctx context.Context, cp models.Checkpoint) error
	// Clear removes the checkpoint for a fingerprint.
	Clear(ctx context.Context, fingerprint string) error
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createCheckpointsTable = `
CREATE TABLE IF NOT EXISTS checkpoints (
	input_fingerprint TEXT PRIMARY KEY,
	last_row_index INTEGER NOT NULL,
	total_rows INTEGER NOT NULL,
	output_path TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open progress db: %w", err)
	}

	if _, err := db.Exec(createCheckpointsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate checkpoints table: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Get returns the checkpoint for a fingerprint, or nil when none exists.
func (t *SQLiteTracker) Get(ctx context.Context, fingerprint string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := t.db.QueryRowContext(ctx,
		`SELECT input_fingerprint, last_row_index, total_rows, output_path, updated_at
		 FROM checkpoints WHERE input_fingerprint = ?`,
		fingerprint,
	).Scan(&cp.InputFingerprint, &cp.LastRowIndex, &cp.TotalRows, &cp.OutputPath, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return &cp, nil
}

// Save upserts a checkpoint.
func (t *SQLiteTracker) Save(ctx context.Context, cp models.Checkpoint) error {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO checkpoints (input_fingerprint, last_row_index, total_rows, output_path, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		cp.InputFingerprint, cp.LastRowIndex, cp.TotalRows, cp.OutputPath, cp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint for a fingerprint.
func (t *SQLiteTracker) Clear(ctx context.Context, fingerprint string) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE input_fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}

// Fingerprint returns the hex SHA-256 of a file's contents.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fingerprint input: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
