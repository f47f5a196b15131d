package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists notes. Every lookup is scoped to the owner.
type Repository interface {
	List(ctx context.Context, ownerID string) ([]Note, error)
	Get(ctx context.Context, ownerID, id string) (Note, error)
	Create(ctx context.Context, n Note) error
	Update(ctx context.Context, n Note) (Note, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository builds a Postgres-backed note repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const noteColumns = `id, owner_id, title, content, created_at, updated_at`

// List returns the owner's notes, newest first.
func (r *PostgresRepository) List(ctx context.Context, ownerID string) ([]Note, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Get fetches one of the owner's notes.
func (r *PostgresRepository) Get(ctx context.Context, ownerID, id string) (Note, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = $1 AND owner_id = $2`, id, ownerID)
	return scanNote(row)
}

// Create inserts a note.
func (r *PostgresRepository) Create(ctx context.Context, n Note) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO notes (id, owner_id, title, content, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.OwnerID, n.Title, n.Content, n.CreatedAt.UTC(), n.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Update replaces title and content of the owner's note.
func (r *PostgresRepository) Update(ctx context.Context, n Note) (Note, error) {
	row := r.db.QueryRowContext(ctx, `UPDATE notes SET title = $1, content = $2, updated_at = $3
        WHERE id = $4 AND owner_id = $5
        RETURNING `+noteColumns,
		n.Title, n.Content, n.UpdatedAt.UTC(), n.ID, n.OwnerID)
	return scanNote(row)
}

// Delete removes the owner's note.
func (r *PostgresRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (Note, error) {
	var (
		n                Note
		created, updated time.Time
	)
	if err := row.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Note{}, ErrNotFound
		}
		return Note{}, fmt.Errorf("db error: %w", err)
	}
	n.CreatedAt = created.UTC()
	n.UpdatedAt = updated.UTC()
	return n, nil
}
