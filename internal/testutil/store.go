// Package testutil provides shared test helpers for edgescan packages:
// device fixtures, a recording event bus, a manual clock and stores.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/HerbHall/edgescan/internal/store"
)

// NewStore opens an in-memory database closed at test cleanup.
func NewStore(t testing.TB) *store.SQLiteStore {
	t.Helper()
	return openStore(t, ":memory:")
}

// NewFileStore opens a database file in a per-test directory, for tests
// that reopen the database or inspect it on disk.
func NewFileStore(t testing.TB) *store.SQLiteStore {
	t.Helper()
	return openStore(t, filepath.Join(t.TempDir(), "edgescan.db"))
}

func openStore(t testing.TB, path string) *store.SQLiteStore {
	t.Helper()
	db, err := store.New(path)
	if err != nil {
		t.Fatalf("open test store %s: %v", path, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
