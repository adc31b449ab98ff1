package vitals

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

// NewPostgresRepository creates a new PostgreSQL vitals repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectReading = `
	SELECT id, user_id, heart_rate, oxygen, movement, source, recorded_at
	FROM vitals_readings
`

func scanReading(row pgx.Row) (*Reading, error) {
	var r Reading
	err := row.Scan(&r.ID, &r.UserID, &r.HeartRate, &r.Oxygen, &r.Movement, &r.Source, &r.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoReadings
		}
		return nil, err
	}
	return &r, nil
}

// Insert stores a reading.
func (r *PostgresRepository) Insert(ctx context.Context, reading *Reading) error {
	query := `
		INSERT INTO vitals_readings (id, user_id, heart_rate, oxygen, movement, source, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		reading.ID,
		reading.UserID,
		reading.HeartRate,
		reading.Oxygen,
		reading.Movement,
		reading.Source,
		reading.RecordedAt,
	)
	return err
}

// Latest returns the newest reading of a user.
func (r *PostgresRepository) Latest(ctx context.Context, userID string) (*Reading, error) {
	return scanReading(r.pool.QueryRow(ctx,
		selectReading+`WHERE user_id = $1 ORDER BY recorded_at DESC LIMIT 1`, userID))
}

// Since returns the user's readings recorded at or after since, newest first.
func (r *PostgresRepository) Since(ctx context.Context, userID string, since time.Time, limit int) ([]*Reading, error) {
	if limit <= 0 {
		limit = 10000
	}

	rows, err := r.pool.Query(ctx,
		selectReading+`WHERE user_id = $1 AND recorded_at >= $2 ORDER BY recorded_at DESC LIMIT $3`,
		userID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []*Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
