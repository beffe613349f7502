// Package store persists download tasks, scheduled jobs and runtime settings
// in a SQLite database. It holds no business logic beyond refusing status
// regressions on task records.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a task or job id has no record.
	ErrNotFound = errors.New("record not found")
	// ErrStatusRegression is returned when a task save would move its
	// status backwards or out of a terminal state.
	ErrStatusRegression = errors.New("task status transition not allowed")
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id               TEXT PRIMARY KEY,
	source_item_id   TEXT NOT NULL,
	owner_id         TEXT NOT NULL,
	owner_name       TEXT NOT NULL DEFAULT '',
	title            TEXT NOT NULL DEFAULT '',
	url              TEXT NOT NULL DEFAULT '',
	quality          TEXT NOT NULL DEFAULT 'source',
	status           TEXT NOT NULL,
	progress         REAL NOT NULL DEFAULT 0,
	bytes_downloaded INTEGER NOT NULL DEFAULT 0,
	bytes_total      INTEGER NOT NULL DEFAULT 0,
	output_path      TEXT NOT NULL DEFAULT '',
	error_message    TEXT NOT NULL DEFAULT '',
	created_at       INTEGER NOT NULL,
	completed_at     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_tasks_item_status ON tasks (source_item_id, status);

CREATE TABLE IF NOT EXISTS jobs (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	owner_name      TEXT NOT NULL DEFAULT '',
	cron_expression TEXT NOT NULL,
	quality         TEXT NOT NULL DEFAULT 'source',
	enabled         INTEGER NOT NULL DEFAULT 1,
	last_run_at     INTEGER,
	next_run_at     INTEGER
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is a SQLite-backed record store. All methods are safe for
// concurrent use; writes are serialized through a single connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n)
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
