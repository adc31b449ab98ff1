package device

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL device repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectDevice = `
	SELECT id, user_id, kind, token, platform, name, created_at, updated_at, last_seen_at
	FROM devices
`

func scanDevice(row pgx.Row) (*Device, error) {
	var device Device
	err := row.Scan(
		&device.ID,
		&device.UserID,
		&device.Kind,
		&device.Token,
		&device.Platform,
		&device.Name,
		&device.CreatedAt,
		&device.UpdatedAt,
		&device.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return &device, nil
}

// Get retrieves a device by user ID and device ID.
func (r *PostgresRepository) Get(ctx context.Context, userID, deviceID string) (*Device, error) {
	return scanDevice(r.pool.QueryRow(ctx, selectDevice+`WHERE id = $1 AND user_id = $2`, deviceID, userID))
}

// GetByToken retrieves a device by kind and token.
func (r *PostgresRepository) GetByToken(ctx context.Context, kind Kind, token string) (*Device, error) {
	return scanDevice(r.pool.QueryRow(ctx, selectDevice+`WHERE kind = $1 AND token = $2`, kind, token))
}

// ListByUser retrieves the devices of a user, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*Device, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := selectDevice + `
		WHERE user_id = $1 AND ($2 = '' OR kind = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, userID, string(opts.Kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	return devices, rows.Err()
}

// Upsert creates or updates a device based on its kind and token.
func (r *PostgresRepository) Upsert(ctx context.Context, device *Device) (bool, error) {
	query := `
		INSERT INTO devices (id, user_id, kind, token, platform, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (kind, token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform,
			name = EXCLUDED.name,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, last_seen_at, (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		device.ID,
		device.UserID,
		device.Kind,
		device.Token,
		device.Platform,
		device.Name,
		device.CreatedAt,
		device.UpdatedAt,
	).Scan(&device.ID, &device.CreatedAt, &device.LastSeenAt, &inserted)
	if err != nil {
		return false, err
	}

	return inserted, nil
}

// Touch records that the device was seen.
func (r *PostgresRepository) Touch(ctx context.Context, deviceID string, at time.Time) error {
	result, err := r.pool.Exec(ctx, `UPDATE devices SET last_seen_at = $2 WHERE id = $1`, deviceID, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Delete deletes a device.
func (r *PostgresRepository) Delete(ctx context.Context, userID, deviceID string) error {
	query := `DELETE FROM devices WHERE id = $1 AND user_id = $2`

	result, err := r.pool.Exec(ctx, query, deviceID, userID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
