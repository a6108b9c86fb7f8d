// Package store wraps the embedded database with the single-writer
// discipline the rest of the daemon depends on: reads go straight to the
// pool, every write funnels through one serialized transaction at a time.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Store wraps *sql.DB, exposing only context-aware methods so every query
// carries the caller's deadline, and a single write mutex so entity
// services never race each other inside SQLite's own locking.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// New wraps an already-migrated *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// QueryContext runs a read query. Reads are never serialized against each
// other or against in-flight writes (WAL mode keeps readers unblocked).
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a read query expected to return at most one row.
func (s *Store) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// WriteTx runs fn inside a single write transaction. Callers are
// serialized against each other by writeMu; fn's transaction is rolled
// back if fn returns an error and committed otherwise.
func (s *Store) WriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Raw returns the underlying *sql.DB. It is used for schema setup and
// migrations, and for read-only queries that take a plain *sql.DB: the
// schema version on /health, the search-index check, and the Stream hub's
// replay boundary.
func (s *Store) Raw() *sql.DB {
	return s.db
}

// Checkpoint runs a best-effort WAL checkpoint, used during graceful
// shutdown before the connection is closed.
func (s *Store) Checkpoint() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
