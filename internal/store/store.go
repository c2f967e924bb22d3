// Package store provides a SQLite-backed ledger of ingestion runs. Every
// `docrag ingest` records when it started, what it read, what it produced
// and how it ended, so operators can tell which generation of the
// collection is live and why a rebuild failed.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrNoRuns is returned by Latest when the ledger is empty.
var ErrNoRuns = errors.New("store: no ingestion runs recorded")

// Status is the outcome of an ingestion run.
type Status string

const (
	// StatusRunning marks a run that has begun and not finished.
	StatusRunning Status = "running"
	// StatusSucceeded marks a run that rebuilt the collection.
	StatusSucceeded Status = "succeeded"
	// StatusEmpty marks a run that found nothing to index.
	StatusEmpty Status = "empty"
	// StatusFailed marks a run that ended with an error.
	StatusFailed Status = "failed"
)

// Run is one ingestion attempt.
type Run struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
	DocumentsDir string    `json:"documents_dir"`
	Collection   string    `json:"collection"`
	Documents    int       `json:"documents"`
	Skipped      int       `json:"skipped"`
	Chunks       int       `json:"chunks"`
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
}

// RunStore persists ingestion runs. Implementations must be safe for
// concurrent use.
type RunStore interface {
	// Begin records a new running run and returns it with its id set.
	Begin(ctx context.Context, documentsDir, collection string) (Run, error)
	// Finish updates a run's counters, status, error and finish time.
	Finish(ctx context.Context, run Run) error
	// Recent returns up to n runs, newest first.
	Recent(ctx context.Context, n int) ([]Run, error)
	// Latest returns the newest run, or ErrNoRuns.
	Latest(ctx context.Context) (Run, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a RunStore backed by a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection: a single writer avoids SQLITE_BUSY, and keeps
	// ":memory:" databases alive for the lifetime of the store.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS ingestion_runs (
    id            TEXT    PRIMARY KEY,
    started_at    INTEGER NOT NULL,  -- Unix milliseconds
    finished_at   INTEGER,           -- Unix milliseconds, NULL while running
    documents_dir TEXT    NOT NULL,
    collection    TEXT    NOT NULL,
    documents     INTEGER NOT NULL DEFAULT 0,
    skipped       INTEGER NOT NULL DEFAULT 0,
    chunks        INTEGER NOT NULL DEFAULT 0,
    status        TEXT    NOT NULL CHECK(status IN ('running','succeeded','empty','failed')),
    error         TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_ingestion_runs_started
    ON ingestion_runs (started_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Begin implements RunStore.
func (s *SQLiteStore) Begin(ctx context.Context, documentsDir, collection string) (Run, error) {
	run := Run{
		ID:           uuid.NewString(),
		StartedAt:    s.now().UTC(),
		DocumentsDir: documentsDir,
		Collection:   collection,
		Status:       StatusRunning,
	}
	const q = `INSERT INTO ingestion_runs (id, started_at, documents_dir, collection, status) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, run.ID, run.StartedAt.UnixMilli(), documentsDir, collection, string(run.Status)); err != nil {
		return Run{}, fmt.Errorf("store: begin: %w", err)
	}
	return run, nil
}

// Finish implements RunStore. A zero FinishedAt is stamped with the current time.
func (s *SQLiteStore) Finish(ctx context.Context, run Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.now().UTC()
	}
	const q = `
UPDATE ingestion_runs
SET    finished_at = ?, documents = ?, skipped = ?, chunks = ?, status = ?, error = ?
WHERE  id = ?`
	res, err := s.db.ExecContext(ctx, q,
		run.FinishedAt.UnixMilli(), run.Documents, run.Skipped, run.Chunks, string(run.Status), run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("store: finish: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: finish: unknown run %q", run.ID)
	}
	return nil
}

// Recent implements RunStore.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Run, error) {
	const q = `
SELECT id, started_at, finished_at, documents_dir, collection, documents, skipped, chunks, status, error
FROM   ingestion_runs
ORDER  BY started_at DESC, rowid DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return runs, nil
}

// Latest implements RunStore.
func (s *SQLiteStore) Latest(ctx context.Context) (Run, error) {
	runs, err := s.Recent(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrNoRuns
	}
	return runs[0], nil
}

// Ping verifies the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run      Run
		started  int64
		finished sql.NullInt64
		status   string
	)
	if err := sc.Scan(&run.ID, &started, &finished, &run.DocumentsDir, &run.Collection,
		&run.Documents, &run.Skipped, &run.Chunks, &status, &run.Error); err != nil {
		return Run{}, err
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		run.FinishedAt = time.UnixMilli(finished.Int64).UTC()
	}
	run.Status = Status(status)
	return run, nil
}
