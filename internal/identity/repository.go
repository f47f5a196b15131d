package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Repository persists identities. Update must apply fn as one atomic
// read-modify-write: concurrent updates for the same email are serialized and
// an error from fn leaves the stored record untouched.
type Repository interface {
	Create(ctx context.Context, id Identity) error
	FindByEmail(ctx context.Context, email string) (Identity, error)
	FindByID(ctx context.Context, id string) (Identity, error)
	Update(ctx context.Context, email string, fn func(*Identity) error) (Identity, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, name, email, dob, provider, otp_hash, otp_expires_at, created_at`

// Create inserts a new identity.
func (r *PostgresRepository) Create(ctx context.Context, id Identity) error {
	userID, err := uuid.Parse(id.ID)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO identities (id, name, email, dob, provider, otp_hash, otp_expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		userID, id.Name, id.Email, id.DOB, id.Provider, nullString(id.OTPHash), nullTime(id.OTPExpiresAt), id.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindByEmail fetches an identity by contact address.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (Identity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM identities WHERE email = $1`, email)
	return scanIdentity(row)
}

// FindByID fetches an identity by primary key.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Identity, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return Identity{}, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM identities WHERE id = $1`, userID)
	return scanIdentity(row)
}

// Update locks the row, applies fn and writes the mutable fields back in one transaction.
func (r *PostgresRepository) Update(ctx context.Context, email string, fn func(*Identity) error) (Identity, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("db error: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	row := tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM identities WHERE email = $1 FOR UPDATE`, email)
	id, err := scanIdentity(row)
	if err != nil {
		return Identity{}, err
	}

	if err := fn(&id); err != nil {
		return Identity{}, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE identities SET name = $1, dob = $2, provider = $3, otp_hash = $4, otp_expires_at = $5
        WHERE email = $6`, id.Name, id.DOB, id.Provider, nullString(id.OTPHash), nullTime(id.OTPExpiresAt), email)
	if err != nil {
		return Identity{}, fmt.Errorf("db error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Identity{}, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (Identity, error) {
	var (
		id        Identity
		userID    uuid.UUID
		otpHash   sql.NullString
		otpExpiry sql.NullTime
		createdAt time.Time
	)
	if err := row.Scan(&userID, &id.Name, &id.Email, &id.DOB, &id.Provider, &otpHash, &otpExpiry, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrNotFound
		}
		return Identity{}, fmt.Errorf("db error: %w", err)
	}
	id.ID = userID.String()
	id.OTPHash = otpHash.String
	if otpExpiry.Valid {
		id.OTPExpiresAt = otpExpiry.Time.UTC()
	}
	id.CreatedAt = createdAt.UTC()
	return id, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
