package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// timestampFormat is fixed-width so stored timestamps sort lexically.
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

// WatchedDevice is a persisted watch-list entry.
type WatchedDevice struct {
	Name            string    `json:"name"`
	ExtraAttributes []string  `json:"extra_attributes,omitempty"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Repository defines the persistence operations for the watch list and
// memorised settings. This abstraction allows for different implementations
// (SQLite, in-memory fakes) and enables unit testing without a database.
type Repository interface {
	// List retrieves all watched devices ordered by creation time.
	List(ctx context.Context) ([]WatchedDevice, error)

	// Get retrieves one watched device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Get(ctx context.Context, name string) (*WatchedDevice, error)

	// Upsert inserts a device or updates its extra attributes and enabled flag.
	Upsert(ctx context.Context, d *WatchedDevice) error

	// Delete removes a watched device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, name string) error

	// GetSetting returns a memorised setting.
	// Returns ErrSettingNotFound if the key was never stored.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting memorises a setting.
	SetSetting(ctx context.Context, key, value string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List retrieves all watched devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]WatchedDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, extra_attributes, enabled, created_at, updated_at
		FROM watched_devices
		ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("querying watched devices: %w", err)
	}
	defer rows.Close()

	var devices []WatchedDevice
	for rows.Next() {
		d, err := scanWatchedDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating watched devices: %w", err)
	}
	return devices, nil
}

// Get retrieves one watched device by name.
func (r *SQLiteRepository) Get(ctx context.Context, name string) (*WatchedDevice, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT name, extra_attributes, enabled, created_at, updated_at
		FROM watched_devices
		WHERE name = ?`, name)

	d, err := scanWatchedDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return d, nil
}

// Upsert inserts or updates a watched device.
func (r *SQLiteRepository) Upsert(ctx context.Context, d *WatchedDevice) error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}

	extras := d.ExtraAttributes
	if extras == nil {
		extras = []string{}
	}
	extrasJSON, err := json.Marshal(extras)
	if err != nil {
		return fmt.Errorf("marshalling extra attributes: %w", err)
	}

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO watched_devices (name, extra_attributes, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			extra_attributes = excluded.extra_attributes,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		d.Name,
		string(extrasJSON),
		boolToInt(d.Enabled),
		d.CreatedAt.Format(timestampFormat),
		d.UpdatedAt.Format(timestampFormat),
	)
	if err != nil {
		return fmt.Errorf("upserting watched device: %w", err)
	}
	return nil
}

// Delete removes a watched device.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM watched_devices WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting watched device: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// GetSetting returns a memorised setting.
func (r *SQLiteRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("querying setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting memorises a setting.
func (r *SQLiteRepository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(timestampFormat),
	)
	if err != nil {
		return fmt.Errorf("storing setting %q: %w", key, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanWatchedDevice(row rowScanner) (*WatchedDevice, error) {
	var (
		d          WatchedDevice
		extrasJSON string
		enabled    int
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(&d.Name, &extrasJSON, &enabled, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning watched device: %w", err)
	}

	if err := json.Unmarshal([]byte(extrasJSON), &d.ExtraAttributes); err != nil {
		return nil, fmt.Errorf("unmarshalling extra attributes of %s: %w", d.Name, err)
	}
	d.Enabled = enabled != 0
	d.CreatedAt, _ = time.Parse(timestampFormat, createdAt) //nolint:errcheck // Format is controlled
	d.UpdatedAt, _ = time.Parse(timestampFormat, updatedAt) //nolint:errcheck // Format is controlled
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
