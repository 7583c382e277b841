// Package store opens the edgescan SQLite database and applies
// per-component schema migrations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Migration is one forward-only schema step. Versions start at 1 and
// increase by one within a component.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Migrator is what repositories need to install their schema.
type Migrator interface {
	DB() *sql.DB
	Migrate(ctx context.Context, component string, migrations []Migration) error
}

var _ Migrator = (*SQLiteStore)(nil)

// SQLiteStore is a single-writer SQLite database in WAL mode.
type SQLiteStore struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	tracks bool
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// New opens the database at path, creating it and its directory if
// needed. ":memory:" opens a private in-memory database.
func New(path string) (*SQLiteStore, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection: writes serialize and :memory: stays a single database.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %q: %s: %w", path, p, err)
		}
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Path returns the path the store was opened with.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Tx runs fn in a transaction on the store's database.
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return WithTx(ctx, s.db, fn)
}

// WithTx commits when fn returns nil and rolls back otherwise.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

// Checkpoint folds the WAL back into the main database file so the file
// can be copied on its own.
func (s *SQLiteStore) Checkpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// Migrate applies the component's migrations newer than its recorded
// version, each in its own transaction.
func (s *SQLiteStore) Migrate(ctx context.Context, component string, migrations []Migration) error {
	for i, m := range migrations {
		if m.Version != i+1 {
			return fmt.Errorf("migrations %s: version %d at position %d", component, m.Version, i+1)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureTracking(ctx); err != nil {
		return err
	}
	current, err := s.version(ctx, component)
	if err != nil {
		return err
	}
	for _, m := range migrations[min(current, len(migrations)):] {
		err := s.Tx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (component, version, description) VALUES (?, ?, ?)`,
				component, m.Version, m.Description)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s/%d (%s): %w", component, m.Version, m.Description, err)
		}
	}
	return nil
}

// Version reports the highest applied migration for component, 0 if none.
func (s *SQLiteStore) Version(ctx context.Context, component string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureTracking(ctx); err != nil {
		return 0, err
	}
	return s.version(ctx, component)
}

func (s *SQLiteStore) version(ctx context.Context, component string) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations WHERE component = ?`, component,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version for %s: %w", component, err)
	}
	return v, nil
}

// ensureTracking must be called with mu held.
func (s *SQLiteStore) ensureTracking(ctx context.Context) error {
	if s.tracks {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			component   TEXT     NOT NULL,
			version     INTEGER  NOT NULL,
			description TEXT     NOT NULL,
			applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (component, version)
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	s.tracks = true
	return nil
}
