package identity

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var identityColumns = []string{"id", "name", "email", "dob", "provider", "otp_hash", "otp_expires_at", "created_at"}

func TestPostgresFindByEmail(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.NewString()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := created.Add(5 * time.Minute)
	mock.ExpectQuery(`(?s)^SELECT .* FROM identities WHERE email = \$1$`).
		WithArgs("ann@x.com").
		WillReturnRows(sqlmock.NewRows(identityColumns).AddRow(id, "Ann", "ann@x.com", "2000-01-01", "otp", "hash", expires, created))

	got, err := repo.FindByEmail(context.Background(), "ann@x.com")
	if err != nil {
		t.Fatalf("FindByEmail error: %v", err)
	}
	if got.ID != id || got.Name != "Ann" || got.OTPHash != "hash" || !got.OTPExpiresAt.Equal(expires) {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresFindByEmailNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM identities WHERE email`).
		WithArgs("ghost@x.com").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.FindByEmail(context.Background(), "ghost@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresCreateDuplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO identities`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err := repo.Create(context.Background(), New(Profile{Name: "Ann", Email: "ann@x.com"}, time.Now()))
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestPostgresUpdateLocksAndWrites(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.NewString()
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)FROM identities WHERE email = \$1 FOR UPDATE`).
		WithArgs("ann@x.com").
		WillReturnRows(sqlmock.NewRows(identityColumns).AddRow(id, "Ann", "ann@x.com", "", "otp", "hash", now, now))
	mock.ExpectExec(`UPDATE identities SET`).
		WithArgs("Ann", "", "otp", nil, nil, "ann@x.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.Update(context.Background(), "ann@x.com", func(i *Identity) error {
		i.ClearChallenge()
		return nil
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got.HasChallenge() {
		t.Fatalf("expected cleared challenge")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresUpdateRollsBackOnCallbackError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("ann@x.com").
		WillReturnRows(sqlmock.NewRows(identityColumns).AddRow(uuid.NewString(), "Ann", "ann@x.com", "", "otp", "hash", now, now))
	mock.ExpectRollback()

	boom := errors.New("wrong code")
	if _, err := repo.Update(context.Background(), "ann@x.com", func(*Identity) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
