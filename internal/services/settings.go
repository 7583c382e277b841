package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/edgescan/internal/store"
)

// Setting is an operator preference changed at runtime through the API.
// Values set here take precedence over the configuration file.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SettingsRepository stores operator preferences by key.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (*Setting, error)
	List(ctx context.Context) ([]Setting, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

var _ SettingsRepository = (*SQLiteSettingsRepository)(nil)

// SQLiteSettingsRepository keeps settings in the preferences table.
type SQLiteSettingsRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteSettingsRepository migrates the preferences table and returns a
// repository over it.
func NewSQLiteSettingsRepository(ctx context.Context, s store.Migrator) (*SQLiteSettingsRepository, error) {
	if err := s.Migrate(ctx, "settings", settingsMigrations); err != nil {
		return nil, fmt.Errorf("settings migrations: %w", err)
	}
	return &SQLiteSettingsRepository{db: s.DB(), now: time.Now}, nil
}

// Get returns ErrNotFound when key has never been set.
func (r *SQLiteSettingsRepository) Get(ctx context.Context, key string) (*Setting, error) {
	s, err := scanSetting(r.db.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM preferences WHERE key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %q: %w", key, err)
	}
	return s, nil
}

// List returns every setting ordered by key.
func (r *SQLiteSettingsRepository) List(ctx context.Context) ([]Setting, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value, updated_at FROM preferences ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	out := []Setting{}
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SQLiteSettingsRepository) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("setting key is required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, r.now().UTC())
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// Delete returns ErrNotFound when key is absent.
func (r *SQLiteSettingsRepository) Delete(ctx context.Context, key string) error {
	return execOne(ctx, r.db, fmt.Sprintf("delete setting %q", key),
		`DELETE FROM preferences WHERE key = ?`, key)
}

func scanSetting(row rowScanner) (*Setting, error) {
	var s Setting
	if err := row.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// StringSetting returns the value under key, or fallback when it is unset
// or blank.
func StringSetting(ctx context.Context, repo SettingsRepository, key, fallback string) (string, error) {
	s, err := repo.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return fallback, nil
	case err != nil:
		return "", err
	case s.Value == "":
		return fallback, nil
	}
	return s.Value, nil
}

// loadJSON decodes the value under key into v. A missing key leaves v
// untouched.
func loadJSON(ctx context.Context, repo SettingsRepository, key string, v any) error {
	s, err := repo.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s.Value), v); err != nil {
		return fmt.Errorf("decode setting %q: %w", key, err)
	}
	return nil
}

func saveJSON(ctx context.Context, repo SettingsRepository, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode setting %q: %w", key, err)
	}
	return repo.Set(ctx, key, string(data))
}

var settingsMigrations = []store.Migration{
	{
		Version:     1,
		Description: "create preferences table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE preferences (
					key        TEXT PRIMARY KEY,
					value      TEXT NOT NULL,
					updated_at DATETIME NOT NULL
				)`)
			return err
		},
	},
}
