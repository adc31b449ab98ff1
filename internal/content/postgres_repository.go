package content

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL content repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetSection returns a section by name.
func (r *PostgresRepository) GetSection(ctx context.Context, name string) (*Section, error) {
	query := `SELECT section, content, updated_at, updated_by FROM content_sections WHERE section = $1`

	var s Section
	err := r.pool.QueryRow(ctx, query, name).Scan(&s.Section, &s.Content, &s.UpdatedAt, &s.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// UpsertSection creates or replaces a section.
func (r *PostgresRepository) UpsertSection(ctx context.Context, s *Section) error {
	query := `
		INSERT INTO content_sections (section, content, updated_at, updated_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (section) DO UPDATE SET
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
	`
	_, err := r.pool.Exec(ctx, query, s.Section, s.Content, s.UpdatedAt, s.UpdatedBy)
	return err
}

// GetProfileDefaults returns the saved defaults.
func (r *PostgresRepository) GetProfileDefaults(ctx context.Context) (*ProfileDefaults, error) {
	query := `
		SELECT medical_history_default, medications_default, special_notes_default, updated_at, updated_by
		FROM profile_defaults
		WHERE id = 1
	`

	var d ProfileDefaults
	err := r.pool.QueryRow(ctx, query).Scan(
		&d.MedicalHistoryDefault,
		&d.MedicationsDefault,
		&d.SpecialNotesDefault,
		&d.UpdatedAt,
		&d.UpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// UpsertProfileDefaults replaces the defaults.
func (r *PostgresRepository) UpsertProfileDefaults(ctx context.Context, d *ProfileDefaults) error {
	query := `
		INSERT INTO profile_defaults (id, medical_history_default, medications_default, special_notes_default, updated_at, updated_by)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			medical_history_default = EXCLUDED.medical_history_default,
			medications_default = EXCLUDED.medications_default,
			special_notes_default = EXCLUDED.special_notes_default,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
	`
	_, err := r.pool.Exec(ctx, query,
		d.MedicalHistoryDefault,
		d.MedicationsDefault,
		d.SpecialNotesDefault,
		d.UpdatedAt,
		d.UpdatedBy,
	)
	return err
}
