package contact

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

// NewPostgresRepository creates a new PostgreSQL contact repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectContact = `
	SELECT id, user_id, name, phone, email, relationship, created_at, updated_at
	FROM contacts
`

func scanContact(row pgx.Row) (*Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Phone, &c.Email, &c.Relationship, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return &c, nil
}

// List returns the user's contacts, oldest first.
func (r *PostgresRepository) List(ctx context.Context, userID string) ([]*Contact, error) {
	rows, err := r.pool.Query(ctx, selectContact+`WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Get retrieves a contact by user ID and contact ID.
func (r *PostgresRepository) Get(ctx context.Context, userID, contactID string) (*Contact, error) {
	return scanContact(r.pool.QueryRow(ctx, selectContact+`WHERE id = $1 AND user_id = $2`, contactID, userID))
}

// Create stores a contact. The count check and insert run as one statement.
func (r *PostgresRepository) Create(ctx context.Context, c *Contact, max int) error {
	query := `
		INSERT INTO contacts (id, user_id, name, phone, email, relationship, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE (SELECT COUNT(*) FROM contacts WHERE user_id = $2) < $9
	`

	tag, err := r.pool.Exec(ctx, query,
		c.ID, c.UserID, c.Name, c.Phone, c.Email, c.Relationship, c.CreatedAt, c.UpdatedAt, max)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTooManyContacts
	}
	return nil
}

// Update replaces the editable fields of a contact.
func (r *PostgresRepository) Update(ctx context.Context, c *Contact) error {
	query := `
		UPDATE contacts SET
			name = $3,
			phone = $4,
			email = $5,
			relationship = $6,
			updated_at = $7
		WHERE id = $1 AND user_id = $2
	`

	tag, err := r.pool.Exec(ctx, query, c.ID, c.UserID, c.Name, c.Phone, c.Email, c.Relationship, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

// Delete removes a contact.
func (r *PostgresRepository) Delete(ctx context.Context, userID, contactID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1 AND user_id = $2`, contactID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
