package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func execMigration(version int, stmt string) Migration {
	return Migration{
		Version:     version,
		Description: stmt,
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(stmt)
			return err
		},
	}
}

var deviceMigrations = []Migration{
	execMigration(1, `CREATE TABLE devices (key TEXT PRIMARY KEY)`),
	execMigration(2, `ALTER TABLE devices ADD COLUMN monitored INTEGER NOT NULL DEFAULT 0`),
}

func TestMigrate_Incremental(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx, "registry", deviceMigrations[:1]))
	v, err := s.Version(ctx, "registry")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// Re-running applies only the new ALTER; a repeated CREATE would fail.
	require.NoError(t, s.Migrate(ctx, "registry", deviceMigrations))
	require.NoError(t, s.Migrate(ctx, "registry", deviceMigrations))
	v, err = s.Version(ctx, "registry")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = s.DB().ExecContext(ctx, `INSERT INTO devices (key, monitored) VALUES ('aa', 1)`)
	require.NoError(t, err)

	other, err := s.Version(ctx, "settings")
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestMigrate_RejectsGaps(t *testing.T) {
	s := newTestStore(t)
	err := s.Migrate(context.Background(), "registry", []Migration{
		execMigration(1, `CREATE TABLE a (x TEXT)`),
		execMigration(3, `CREATE TABLE b (x TEXT)`),
	})
	assert.ErrorContains(t, err, "version 3")
}

func TestMigrate_FailedStepNotRecorded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Migrate(ctx, "history", []Migration{execMigration(1, `CREATE TABLE broken (`)})
	require.Error(t, err)
	v, err := s.Version(ctx, "history")
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestTx_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx, "registry", deviceMigrations))

	boom := errors.New("boom")
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO devices (key) VALUES ('aa')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&count))
	assert.Zero(t, count)
}

func TestNew_CreatesDirectoryAndCheckpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "edgescan.db")
	s, err := New(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Migrate(context.Background(), "registry", deviceMigrations))
	assert.NoError(t, s.Checkpoint(context.Background()))
}
