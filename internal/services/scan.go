package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/edgescan/internal/store"
	"github.com/HerbHall/edgescan/pkg/models"
)

// ScanRepository provides access to scan history records.
type ScanRepository interface {
	// Get returns a single scan by ID.
	Get(ctx context.Context, id string) (*models.ScanResult, error)

	// List returns a paginated list of scans ordered by start time.
	List(ctx context.Context, opts ListOptions) (*ListResult[models.ScanResult], error)

	// Create inserts a new scan record. If scan.ID is empty, a UUID is generated.
	Create(ctx context.Context, scan *models.ScanResult) error

	// Complete records the final status, counts and warnings of a scan.
	Complete(ctx context.Context, scan *models.ScanResult) error
}

// Compile-time interface guard.
var _ ScanRepository = (*SQLiteScanRepository)(nil)

// SQLiteScanRepository implements ScanRepository using SQLite.
type SQLiteScanRepository struct {
	db *sql.DB
}

// NewSQLiteScanRepository creates a ScanRepository and runs the
// scan_history migrations.
func NewSQLiteScanRepository(ctx context.Context, s store.Migrator) (*SQLiteScanRepository, error) {
	if err := s.Migrate(ctx, "scans", scanMigrations); err != nil {
		return nil, fmt.Errorf("scan history migrations: %w", err)
	}
	return &SQLiteScanRepository{db: s.DB()}, nil
}

const scanColumns = `id, subnets, trigger, started_at, ended_at, status, total, online, warnings`

func (r *SQLiteScanRepository) Get(ctx context.Context, id string) (*models.ScanResult, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scan_history WHERE id = ?`, id)
	scan, err := scanScanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get scan %q: %w", id, err)
	}
	return scan, nil
}

func (r *SQLiteScanRepository) List(ctx context.Context, opts ListOptions) (*ListResult[models.ScanResult], error) {
	opts = normalizeListOptions(opts)

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scan_history`,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("count scans: %w", err)
	}

	//nolint:gosec // orderClause only yields ASC or DESC
	query := fmt.Sprintf(
		`SELECT %s FROM scan_history ORDER BY started_at %s LIMIT ? OFFSET ?`, scanColumns, opts.orderClause())

	rows, err := r.db.QueryContext(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	scans := []models.ScanResult{}
	for rows.Next() {
		scan, err := scanScanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		scans = append(scans, *scan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}

	return &ListResult[models.ScanResult]{Items: scans, Total: total}, nil
}

func (r *SQLiteScanRepository) Create(ctx context.Context, scan *models.ScanResult) error {
	if scan.ID == "" {
		scan.ID = uuid.New().String()
	}
	if scan.StartedAt == "" {
		scan.StartedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if scan.Status == "" {
		scan.Status = models.ScanStatusRunning
	}

	subnetsJSON, err := json.Marshal(scan.Subnets)
	if err != nil {
		return fmt.Errorf("encode subnets: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scan_history (id, subnets, trigger, started_at, status)
		VALUES (?, ?, ?, ?, ?)`,
		scan.ID, string(subnetsJSON), scan.Trigger, scan.StartedAt, scan.Status,
	)
	if err != nil {
		return fmt.Errorf("create scan: %w", err)
	}
	return nil
}

func (r *SQLiteScanRepository) Complete(ctx context.Context, scan *models.ScanResult) error {
	if scan.EndedAt == "" {
		scan.EndedAt = time.Now().UTC().Format(time.RFC3339)
	}
	warningsJSON, err := json.Marshal(scan.Warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}

	return execOne(ctx, r.db, "complete scan", `
		UPDATE scan_history SET status = ?, ended_at = ?, total = ?, online = ?, warnings = ?
		WHERE id = ?`,
		scan.Status, scan.EndedAt, scan.Total, scan.Online, string(warningsJSON), scan.ID,
	)
}

func scanScanRow(row rowScanner) (*models.ScanResult, error) {
	var scan models.ScanResult
	var subnetsJSON, warningsJSON string
	var endedAt sql.NullString
	if err := row.Scan(&scan.ID, &subnetsJSON, &scan.Trigger, &scan.StartedAt, &endedAt,
		&scan.Status, &scan.Total, &scan.Online, &warningsJSON); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		scan.EndedAt = endedAt.String
	}
	_ = json.Unmarshal([]byte(subnetsJSON), &scan.Subnets)
	_ = json.Unmarshal([]byte(warningsJSON), &scan.Warnings)
	return &scan, nil
}

// scanMigrations defines the database schema for scan_history.
var scanMigrations = []store.Migration{
	{
		Version:     1,
		Description: "create scan_history table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE scan_history (
					id         TEXT PRIMARY KEY,
					subnets    TEXT NOT NULL DEFAULT '[]',
					trigger    TEXT NOT NULL DEFAULT '',
					started_at TEXT NOT NULL,
					ended_at   TEXT,
					status     TEXT NOT NULL,
					total      INTEGER NOT NULL DEFAULT 0,
					online     INTEGER NOT NULL DEFAULT 0,
					warnings   TEXT NOT NULL DEFAULT 'null'
				)`)
			return err
		},
	},
}
