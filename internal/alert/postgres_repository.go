package alert

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lifelink/lifelink/internal/monitor"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL alert repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const alertColumns = `
	id, user_id, status, heart_rate, oxygen, movement, lat, lng, address,
	recipients_ok, recipients_failed, failure_reason, created_at, dispatched_at, cancelled_at
`

func scanAlert(row pgx.Row) (*Alert, error) {
	var (
		a        Alert
		lat, lng *float64
		address  string
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.Status,
		&a.Vitals.HeartRate, &a.Vitals.Oxygen, &a.Vitals.Movement,
		&lat, &lng, &address,
		&a.RecipientsOK, &a.RecipientsFailed, &a.FailureReason,
		&a.CreatedAt, &a.DispatchedAt, &a.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	if lat != nil && lng != nil {
		a.Location = &monitor.Location{Lat: *lat, Lng: *lng, Address: address}
	}
	return &a, nil
}

// Create stores an alert.
func (r *PostgresRepository) Create(ctx context.Context, a *Alert) error {
	var (
		lat, lng *float64
		address  string
	)
	if a.Location != nil {
		lat, lng, address = &a.Location.Lat, &a.Location.Lng, a.Location.Address
	}

	query := `INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.UserID, a.Status,
		a.Vitals.HeartRate, a.Vitals.Oxygen, a.Vitals.Movement,
		lat, lng, address,
		a.RecipientsOK, a.RecipientsFailed, a.FailureReason,
		a.CreatedAt, a.DispatchedAt, a.CancelledAt,
	)
	return err
}

// Get returns an alert by ID.
func (r *PostgresRepository) Get(ctx context.Context, alertID string) (*Alert, error) {
	return scanAlert(r.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, alertID))
}

// List returns the user's alerts, newest first.
func (r *PostgresRepository) List(ctx context.Context, userID string, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Cancel moves a pending alert to cancelled.
func (r *PostgresRepository) Cancel(ctx context.Context, userID, alertID string, at time.Time) (*Alert, error) {
	a, err := scanAlert(r.pool.QueryRow(ctx, `
		UPDATE alerts SET status = $4, cancelled_at = $3
		WHERE id = $1 AND user_id = $2 AND status = $5
		RETURNING `+alertColumns,
		alertID, userID, at, StatusCancelled, StatusPending))
	if !errors.Is(err, ErrAlertNotFound) {
		return a, err
	}

	// Distinguish a missing alert from one that already left pending.
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1 AND user_id = $2)`,
		alertID, userID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlertNotCancellable
	}
	return nil, ErrAlertNotFound
}

// Complete records a dispatch outcome.
func (r *PostgresRepository) Complete(ctx context.Context, alertID string, status Status, out Outcome, at time.Time) error {
	var dispatchedAt *time.Time
	if status == StatusDispatched {
		dispatchedAt = &at
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE alerts SET
			status = $2,
			recipients_ok = $3,
			recipients_failed = $4,
			failure_reason = $5,
			dispatched_at = $6
		WHERE id = $1 AND status = $7`,
		alertID, status, out.Successful, out.Failed, out.Reason, dispatchedAt, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, alertID); err != nil {
			return err
		}
		return ErrAlertNotPending
	}
	return nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
