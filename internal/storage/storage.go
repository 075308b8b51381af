// Package storage provides the embedded single-writer SQL store backing
// agents, tasks, workflows, analytics, and tokens.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadyExists is returned by inserts that collide on a unique key.
var ErrAlreadyExists = errors.New("storage: already exists")

// Store wraps a single SQLite database file. database/sql pools reads
// internally; writes are serialized through mu so the storage component
// stays a single writer per process as §3 requires.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// Open opens (creating if necessary) the SQLite file at path and applies
// the schema migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: slog.Default().With("component", "storage")}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenDB wraps an already-open *sql.DB, used by tests with go-sqlmock.
func OpenDB(db *sql.DB) *Store {
	return &Store{db: db, logger: slog.Default().With("component", "storage")}
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	prompt_path TEXT NOT NULL,
	engine TEXT,
	model TEXT,
	reasoning_effort TEXT,
	category TEXT,
	capabilities TEXT,
	sandbox TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workflows (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	state TEXT NOT NULL,
	steps TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	step_index INTEGER NOT NULL,
	agent_id TEXT NOT NULL,
	input TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TEXT,
	ended_at TEXT,
	output_hash TEXT,
	failure_history TEXT
);

CREATE TABLE IF NOT EXISTS tokens (
	key TEXT PRIMARY KEY,
	secret TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS policy_analytics (
	id TEXT PRIMARY KEY,
	tool_name TEXT NOT NULL,
	action TEXT NOT NULL,
	matched_rule TEXT,
	recorded_at TEXT NOT NULL
);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// WithTx runs fn inside a single-writer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// DB exposes the underlying handle for component-specific query helpers
// (agents.go, workflows.go) in this package.
func (s *Store) DB() *sql.DB {
	return s.db
}
