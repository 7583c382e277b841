package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HerbHall/edgescan/internal/store"
	"github.com/HerbHall/edgescan/pkg/models"
)

// DeviceRepository persists the device registry.
type DeviceRepository interface {
	// Get returns a single device by identity key.
	Get(ctx context.Context, key string) (*models.Device, error)

	// All returns every stored device ordered by key.
	All(ctx context.Context) ([]models.Device, error)

	// Upsert inserts or replaces a device under its identity key.
	Upsert(ctx context.Context, device *models.Device) error

	// ReplaceAll makes the stored set equal to devices in one transaction.
	ReplaceAll(ctx context.Context, devices []models.Device) error
}

// Compile-time interface guard.
var _ DeviceRepository = (*SQLiteDeviceRepository)(nil)

// SQLiteDeviceRepository implements DeviceRepository using SQLite.
type SQLiteDeviceRepository struct {
	db *sql.DB
}

// NewSQLiteDeviceRepository creates a DeviceRepository and runs the
// registry_devices migrations.
func NewSQLiteDeviceRepository(ctx context.Context, s store.Migrator) (*SQLiteDeviceRepository, error) {
	if err := s.Migrate(ctx, "registry", deviceMigrations); err != nil {
		return nil, fmt.Errorf("registry migrations: %w", err)
	}
	return &SQLiteDeviceRepository{db: s.DB()}, nil
}

// deviceColumns is the shared column list for device queries.
const deviceColumns = `key, ip, mac, manufacturer, hostname, device_type,
	open_ports, monitored, name, location, first_seen, last_seen`

const upsertDeviceSQL = `
	INSERT INTO registry_devices (` + deviceColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (key) DO UPDATE SET
		ip = excluded.ip, mac = excluded.mac, manufacturer = excluded.manufacturer,
		hostname = excluded.hostname, device_type = excluded.device_type,
		open_ports = excluded.open_ports, monitored = excluded.monitored,
		name = excluded.name, location = excluded.location,
		first_seen = excluded.first_seen, last_seen = excluded.last_seen`

func (r *SQLiteDeviceRepository) Get(ctx context.Context, key string) (*models.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM registry_devices WHERE key = ?`, key)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device %q: %w", key, err)
	}
	return d, nil
}

func (r *SQLiteDeviceRepository) All(ctx context.Context) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM registry_devices ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device row: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}

func (r *SQLiteDeviceRepository) Upsert(ctx context.Context, device *models.Device) error {
	if err := upsertDevice(ctx, r.db, device); err != nil {
		return fmt.Errorf("upsert device %q: %w", device.Key(), err)
	}
	return nil
}

func (r *SQLiteDeviceRepository) ReplaceAll(ctx context.Context, devices []models.Device) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM registry_devices`); err != nil {
			return fmt.Errorf("clear devices: %w", err)
		}
		for i := range devices {
			if err := upsertDevice(ctx, tx, &devices[i]); err != nil {
				return fmt.Errorf("write device %q: %w", devices[i].Key(), err)
			}
		}
		return nil
	})
}

func upsertDevice(ctx context.Context, ex execer, d *models.Device) error {
	portsJSON, err := json.Marshal(d.OpenPorts)
	if err != nil {
		return err
	}
	if d.OpenPorts == nil {
		portsJSON = []byte("[]")
	}
	_, err = ex.ExecContext(ctx, upsertDeviceSQL,
		d.Key(), d.IP, d.MAC, d.Manufacturer, d.Hostname, string(d.DeviceType),
		string(portsJSON), d.Monitored, d.Name, d.Location, d.FirstSeen.UTC(), d.LastSeen.UTC(),
	)
	return err
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var d models.Device
	var key, dt, portsJSON string
	err := row.Scan(
		&key, &d.IP, &d.MAC, &d.Manufacturer, &d.Hostname, &dt,
		&portsJSON, &d.Monitored, &d.Name, &d.Location, &d.FirstSeen, &d.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	d.DeviceType = models.DeviceType(dt)
	if err := json.Unmarshal([]byte(portsJSON), &d.OpenPorts); err != nil {
		return nil, fmt.Errorf("decode open_ports for %q: %w", key, err)
	}
	return &d, nil
}

// deviceMigrations defines the database schema for registry_devices.
var deviceMigrations = []store.Migration{
	{
		Version:     1,
		Description: "create registry_devices table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE registry_devices (
					key          TEXT PRIMARY KEY,
					ip           TEXT NOT NULL,
					mac          TEXT NOT NULL DEFAULT '',
					manufacturer TEXT NOT NULL DEFAULT '',
					hostname     TEXT NOT NULL DEFAULT '',
					device_type  TEXT NOT NULL DEFAULT 'unknown',
					open_ports   TEXT NOT NULL DEFAULT '[]',
					monitored    INTEGER NOT NULL DEFAULT 0,
					name         TEXT NOT NULL DEFAULT '',
					location     TEXT NOT NULL DEFAULT '',
					first_seen   DATETIME NOT NULL,
					last_seen    DATETIME NOT NULL
				)`)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`CREATE INDEX idx_registry_devices_ip ON registry_devices(ip)`)
			return err
		},
	},
}
