// Package services holds the SQLite repositories behind the device
// registry, scan history and operator settings.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors returned by repositories.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Page size bounds for list queries.
const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// ListOptions pages a list query. SortOrder is "asc" or "desc" (default).
type ListOptions struct {
	Limit     int
	Offset    int
	SortOrder string
}

// ListResult is one page of items plus the unpaged total.
type ListResult[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func normalizeListOptions(opts ListOptions) ListOptions {
	opts.Limit = min(max(opts.Limit, 0), MaxListLimit)
	if opts.Limit == 0 {
		opts.Limit = DefaultListLimit
	}
	opts.Offset = max(opts.Offset, 0)
	if opts.SortOrder != "asc" {
		opts.SortOrder = "desc"
	}
	return opts
}

func (o ListOptions) orderClause() string {
	if o.SortOrder == "asc" {
		return "ASC"
	}
	return "DESC"
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// execOne runs a statement that must touch a row, returning ErrNotFound
// when it touched none.
func execOne(ctx context.Context, ex execer, op, query string, args ...any) error {
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
