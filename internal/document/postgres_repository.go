package document

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL document repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectDocument = `
	SELECT id, user_id, file_name, content_type, size_bytes, storage_path, created_at
	FROM documents
`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.UserID, &d.FileName, &d.ContentType, &d.Size, &d.StoragePath, &d.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts document metadata.
func (r *PostgresRepository) Create(ctx context.Context, doc *Document) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (id, user_id, file_name, content_type, size_bytes, storage_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, doc.ID, doc.UserID, doc.FileName, doc.ContentType, doc.Size, doc.StoragePath, doc.UploadedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateFile
	}
	return err
}

// Get returns a document by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Document, error) {
	return scanDocument(r.pool.QueryRow(ctx, selectDocument+`WHERE id = $1`, id))
}

// ExistsByName reports whether the user has a document named fileName.
func (r *PostgresRepository) ExistsByName(ctx context.Context, userID, fileName string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE user_id = $1 AND file_name = $2)`,
		userID, fileName,
	).Scan(&exists)
	return exists, err
}

// List returns the user's documents, newest first.
func (r *PostgresRepository) List(ctx context.Context, userID string) ([]*Document, error) {
	rows, err := r.pool.Query(ctx, selectDocument+`WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Delete removes a document owned by userID.
func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
