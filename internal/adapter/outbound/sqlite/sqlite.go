// Package sqlite provides the durable store: tasks, task results, eval
// definitions, runs with their scores, and the workflow journal, all in
// one SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// schema is applied at open. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id           TEXT PRIMARY KEY,
		eval_name    TEXT NOT NULL,
		config       TEXT NOT NULL,
		status       TEXT NOT NULL,
		created_at   TIMESTAMP NOT NULL,
		started_at   TIMESTAMP,
		completed_at TIMESTAMP,
		error        TEXT NOT NULL DEFAULT '',
		result_ref   TEXT NOT NULL DEFAULT '',
		meta         TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_name_status_created
		ON tasks(eval_name, status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status_created
		ON tasks(status, created_at)`,
	`CREATE TABLE IF NOT EXISTS task_results (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id                TEXT NOT NULL UNIQUE REFERENCES tasks(id),
		run_id                 TEXT,
		result                 TEXT NOT NULL,
		execution_time_seconds REAL NOT NULL,
		meta                   TEXT,
		created_at             TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_results_task ON task_results(task_id)`,
	`CREATE TABLE IF NOT EXISTS evals (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL UNIQUE,
		description    TEXT NOT NULL DEFAULT '',
		dataset_config TEXT,
		scorers_config TEXT,
		created_at     TIMESTAMP NOT NULL,
		updated_at     TIMESTAMP NOT NULL,
		meta           TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		eval_id    TEXT NOT NULL,
		run_id     TEXT NOT NULL UNIQUE,
		dataset_id TEXT NOT NULL,
		model      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		meta       TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_eval ON runs(eval_id)`,
	`CREATE TABLE IF NOT EXISTS scores (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id         TEXT NOT NULL REFERENCES runs(run_id),
		name           TEXT NOT NULL,
		value          REAL,
		is_bool        INTEGER NOT NULL DEFAULT 0,
		eval_id        TEXT NOT NULL DEFAULT '',
		comment        TEXT NOT NULL DEFAULT '',
		meta           TEXT,
		trace_id       TEXT NOT NULL DEFAULT '',
		observation_id TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scores_run ON scores(run_id)`,
	`CREATE TABLE IF NOT EXISTS workflow_journal (
		workflow_id TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		kind        TEXT NOT NULL,
		payload     TEXT NOT NULL,
		created_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (workflow_id, seq)
	)`,
}

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. A nil logger defaults to slog.Default.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The driver serialises writes; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	logger.Debug("database opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
