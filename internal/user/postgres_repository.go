package user

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL user repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrUsernameTaken
	}
	return err
}

// GetProfile retrieves a profile by user ID.
func (r *PostgresRepository) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	query := `
		SELECT
			user_id, full_name, COALESCE(username, ''),
			address1, address2, address3, country, postal_code,
			medical_history, medications, special_notes,
			is_admin, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`

	var p Profile
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.FullName,
		&p.Username,
		&p.Address1,
		&p.Address2,
		&p.Address3,
		&p.Country,
		&p.PostalCode,
		&p.MedicalHistory,
		&p.Medications,
		&p.SpecialNotes,
		&p.IsAdmin,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &p, nil
}

// CreateProfile creates the profile of a new user.
func (r *PostgresRepository) CreateProfile(ctx context.Context, p *Profile) error {
	query := `
		INSERT INTO profiles (
			user_id, full_name, username,
			address1, address2, address3, country, postal_code,
			medical_history, medications, special_notes,
			is_admin, created_at, updated_at
		) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.pool.Exec(ctx, query,
		p.UserID, p.FullName, p.Username,
		p.Address1, p.Address2, p.Address3, p.Country, p.PostalCode,
		p.MedicalHistory, p.Medications, p.SpecialNotes,
		p.IsAdmin, p.CreatedAt, p.UpdatedAt,
	)
	return mapUniqueViolation(err)
}

// UpdateProfile updates an existing profile. is_admin is not touched.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, p *Profile) error {
	query := `
		UPDATE profiles SET
			full_name = $2,
			username = NULLIF($3, ''),
			address1 = $4,
			address2 = $5,
			address3 = $6,
			country = $7,
			postal_code = $8,
			medical_history = $9,
			medications = $10,
			special_notes = $11,
			updated_at = $12
		WHERE user_id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		p.UserID, p.FullName, p.Username,
		p.Address1, p.Address2, p.Address3, p.Country, p.PostalCode,
		p.MedicalHistory, p.Medications, p.SpecialNotes,
		p.UpdatedAt,
	)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetAdmin grants or revokes admin rights.
func (r *PostgresRepository) SetAdmin(ctx context.Context, userID string, admin bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE profiles SET is_admin = $2, updated_at = $3 WHERE user_id = $1`,
		userID, admin, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetSettings retrieves the user's settings.
func (r *PostgresRepository) GetSettings(ctx context.Context, userID string) (*Settings, error) {
	query := `
		SELECT
			user_id, notifications_enabled, location_tracking_enabled, dark_mode_enabled,
			emergency_alerts_enabled, data_sharing, simulation_enabled, updated_at
		FROM user_settings
		WHERE user_id = $1
	`

	var s Settings
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&s.UserID,
		&s.NotificationsEnabled,
		&s.LocationTrackingEnabled,
		&s.DarkModeEnabled,
		&s.EmergencyAlertsEnabled,
		&s.DataSharing,
		&s.SimulationEnabled,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &s, nil
}

// UpsertSettings creates or replaces the user's settings.
func (r *PostgresRepository) UpsertSettings(ctx context.Context, s *Settings) error {
	query := `
		INSERT INTO user_settings (
			user_id, notifications_enabled, location_tracking_enabled, dark_mode_enabled,
			emergency_alerts_enabled, data_sharing, simulation_enabled, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			notifications_enabled = EXCLUDED.notifications_enabled,
			location_tracking_enabled = EXCLUDED.location_tracking_enabled,
			dark_mode_enabled = EXCLUDED.dark_mode_enabled,
			emergency_alerts_enabled = EXCLUDED.emergency_alerts_enabled,
			data_sharing = EXCLUDED.data_sharing,
			simulation_enabled = EXCLUDED.simulation_enabled,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		s.UserID,
		s.NotificationsEnabled,
		s.LocationTrackingEnabled,
		s.DarkModeEnabled,
		s.EmergencyAlertsEnabled,
		s.DataSharing,
		s.SimulationEnabled,
		s.UpdatedAt,
	)
	return err
}

// GetThresholds retrieves the user's alert thresholds.
func (r *PostgresRepository) GetThresholds(ctx context.Context, userID string) (*Thresholds, error) {
	query := `
		SELECT user_id, heart_rate, oxygen, movement, updated_at
		FROM alert_thresholds
		WHERE user_id = $1
	`

	var t Thresholds
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&t.UserID,
		&t.HeartRate,
		&t.Oxygen,
		&t.Movement,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &t, nil
}

// UpsertThresholds creates or replaces the user's alert thresholds.
func (r *PostgresRepository) UpsertThresholds(ctx context.Context, t *Thresholds) error {
	query := `
		INSERT INTO alert_thresholds (user_id, heart_rate, oxygen, movement, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			heart_rate = EXCLUDED.heart_rate,
			oxygen = EXCLUDED.oxygen,
			movement = EXCLUDED.movement,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query, t.UserID, t.HeartRate, t.Oxygen, t.Movement, t.UpdatedAt)
	return err
}

// ListSimulationUsers returns the IDs of users with simulation enabled.
func (r *PostgresRepository) ListSimulationUsers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM user_settings WHERE simulation_enabled ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
