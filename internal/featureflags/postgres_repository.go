package featureflags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores flags in the feature_flags table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL feature flags repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const flagColumns = `key, value, updated_at, updated_by`

func scanFlag(row pgx.Row) (*Flag, error) {
	var (
		f   Flag
		raw []byte
	)
	if err := row.Scan(&f.Key, &raw, &f.UpdatedAt, &f.UpdatedBy); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &f.Value); err != nil {
		return nil, fmt.Errorf("decoding flag %s: %w", f.Key, err)
	}
	return &f, nil
}

func (r *PostgresRepository) Get(ctx context.Context, key string) (*Flag, error) {
	f, err := scanFlag(r.pool.QueryRow(ctx, `SELECT `+flagColumns+` FROM feature_flags WHERE key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFlagNotFound
	}
	return f, err
}

func (r *PostgresRepository) List(ctx context.Context) ([]*Flag, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+flagColumns+` FROM feature_flags ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []*Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

func (r *PostgresRepository) Upsert(ctx context.Context, flags []*Flag) error {
	query := `
		INSERT INTO feature_flags (key, value, updated_at, updated_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
	`
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, f := range flags {
			raw, err := json.Marshal(f.Value)
			if err != nil {
				return fmt.Errorf("encoding flag %s: %w", f.Key, err)
			}
			if _, err := tx.Exec(ctx, query, f.Key, raw, f.UpdatedAt, f.UpdatedBy); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ Repository = (*PostgresRepository)(nil)
