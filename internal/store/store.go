// Package store is the relational store for submind: agents, thoughts, tasks,
// questions, answers, research campaigns, likes, agent leases and thought
// embeddings. It is the single source of truth for run-loop state.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"submind/internal/logging"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries holds the entity operations. The same methods run directly against
// the database or inside a transaction (see Store.WithTx).
type Queries struct {
	q querier
}

// Store owns the database handle.
type Store struct {
	*Queries
	db         *sql.DB
	dbPath     string
	vecEnabled bool
}

// Open opens (or creates) the store at path. ":memory:" gives a private
// in-memory database.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single connection: serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			logging.StoreWarn("Pragma failed (%s): %v", p, err)
		}
	}

	s := &Store{
		Queries: &Queries{q: db},
		db:      db,
		dbPath:  path,
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.vecEnabled = detectVecExtension(db)
	logging.Store("Store opened: path=%s vec=%v", path, s.vecEnabled)
	return s, nil
}

// initialize creates tables, applies migrations, then creates indexes.
func (s *Store) initialize() error {
	for _, stmt := range schemaTables {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	if err := RunMigrations(s.db, s.dbPath); err != nil {
		return err
	}
	for _, stmt := range schemaIndexes {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// detectVecExtension reports whether sqlite-vec is loaded into the driver.
func detectVecExtension(db *sql.DB) bool {
	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		logging.StoreDebug("sqlite-vec not available, using in-process cosine scan: %v", err)
		return false
	}
	logging.StoreDebug("sqlite-vec %s detected", version)
	return true
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.dbPath
}

// VecEnabled reports whether vector search runs inside sqlite-vec.
func (s *Store) VecEnabled() bool {
	return s.vecEnabled
}

// WithTx runs fn inside one transaction. fn must only use the Queries it is
// given; the store handle has a single connection and would block.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Queries{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.StoreError("Rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Stats returns row counts per table.
func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)
	for _, table := range statTables {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats[table] = n
	}
	return stats, nil
}

// nullID maps the zero id to NULL.
func nullID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

// boolInt maps bools onto sqlite integers.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
