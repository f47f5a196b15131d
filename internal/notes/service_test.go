package notes

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newService() *Service {
	clk := &stepClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewService(NewMemoryRepository(), WithClock(clk.Now))
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc := newService()
	n, err := svc.Create(context.Background(), "owner-1", Input{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n.Title != DefaultTitle || n.Content != DefaultContent {
		t.Fatalf("expected defaults, got %+v", n)
	}
	if n.ID == "" || n.CreatedAt.IsZero() || !n.CreatedAt.Equal(n.UpdatedAt) {
		t.Fatalf("unexpected metadata %+v", n)
	}
}

func TestListNewestFirstAndOwnerScoped(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	first, _ := svc.Create(ctx, "owner-1", Input{Title: "first"})
	second, _ := svc.Create(ctx, "owner-1", Input{Title: "second"})
	_, _ = svc.Create(ctx, "owner-2", Input{Title: "other"})

	list, err := svc.List(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("unexpected order %+v", list)
	}
}

func TestOwnerIsolation(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	n, _ := svc.Create(ctx, "owner-1", Input{Title: "mine"})

	if _, err := svc.Get(ctx, "owner-2", n.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on get, got %v", err)
	}
	if _, err := svc.Update(ctx, "owner-2", n.ID, Input{Title: "stolen"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
	if err := svc.Delete(ctx, "owner-2", n.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
	got, _ := svc.Get(ctx, "owner-1", n.ID)
	if got.Title != "mine" {
		t.Fatalf("note must be untouched, got %+v", got)
	}
}

func TestUpdateIsFullReplacementAndIdempotent(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	n, _ := svc.Create(ctx, "owner-1", Input{Title: "a", Content: "b"})

	for i := 0; i < 2; i++ {
		got, err := svc.Update(ctx, "owner-1", n.ID, Input{Title: "T", Content: ""})
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if got.Title != "T" || got.Content != "" || !got.CreatedAt.Equal(n.CreatedAt) {
			t.Fatalf("unexpected note after update %+v", got)
		}
	}
}

func TestUpdateRejectsLongTitle(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	n, _ := svc.Create(ctx, "owner-1", Input{})

	_, err := svc.Update(ctx, "owner-1", n.ID, Input{Title: strings.Repeat("x", maxTitleLength+1)})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestDeleteRemovesNote(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	n, _ := svc.Create(ctx, "owner-1", Input{})

	if err := svc.Delete(ctx, "owner-1", n.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, "owner-1", n.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
