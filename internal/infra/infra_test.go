package infra

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNewRedisClientPings(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	defer client.Close()
}

func TestNewRedisClientRejectsEmptyURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestNewPostgresRejectsEmptyURL(t *testing.T) {
	if _, err := NewPostgres(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected identity and notes migrations, got %d files", len(entries))
	}
	for _, e := range entries {
		body, err := fs.ReadFile(migrations, "migrations/"+e.Name())
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		if !strings.Contains(string(body), "-- +goose Up") {
			t.Fatalf("%s lacks goose annotation", e.Name())
		}
	}
}

func TestMigrateWrapsErrors(t *testing.T) {
	orig := gooseUp
	defer func() { gooseUp = orig }()
	gooseUp = func(context.Context, *sql.DB) error { return errors.New("boom") }

	err := Migrate(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "migrate postgres: boom") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
