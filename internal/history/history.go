// Package history persists completed build runs in a local SQLite
// database so past outcomes survive restarts.
package history

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"kforge/internal/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS build_runs (
	id TEXT PRIMARY KEY,
	kernel_version TEXT NOT NULL,
	command TEXT NOT NULL,
	exit_code INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_build_runs_finished ON build_runs(finished_at DESC);
`

// Outcomes recorded for a run.
const (
	OutcomeSuccess    = "success"
	OutcomeFailed     = "failed"
	OutcomeStopped    = "stopped"
	OutcomeSpawnError = "spawn-error"
)

// Run is one completed build invocation.
type Run struct {
	ID            string
	KernelVersion string
	Command       string
	ExitCode      int
	Outcome       string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Store is a handle on the build history database.
type Store struct {
	db *sql.DB
}

// Open connects to the history database in dataDir, creating the schema
// when missing.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "history.db")
	return open("file:" + dbPath)
}

// OpenInMemory backs the store with a throwaway in-memory database.
func OpenInMemory() (*Store, error) {
	return open(":memory:")
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	log.Debug(log.CatDB, "history database ready", "dsn", dsn)
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun inserts a completed run and returns it with its generated id.
func (s *Store) RecordRun(run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO build_runs
			(id, kernel_version, command, exit_code, outcome, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.KernelVersion, run.Command, run.ExitCode, run.Outcome,
		run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return Run{}, fmt.Errorf("recording build run: %w", err)
	}
	log.Info(log.CatDB, "build run recorded",
		"id", run.ID, "version", run.KernelVersion, "outcome", run.Outcome)
	return run, nil
}

// ListRuns returns up to limit runs, newest first. A non-positive limit
// returns everything.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, kernel_version, command, exit_code, outcome, started_at, finished_at
		FROM build_runs
		ORDER BY finished_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing build runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.KernelVersion, &r.Command, &r.ExitCode,
			&r.Outcome, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning build run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing build runs: %w", err)
	}
	return runs, nil
}

// OutcomeForExit maps a terminal exit to its recorded outcome. A stop
// request surfaces as a negative exit code.
func OutcomeForExit(code int, stopped bool) string {
	switch {
	case stopped:
		return OutcomeStopped
	case code == 0:
		return OutcomeSuccess
	default:
		return OutcomeFailed
	}
}
