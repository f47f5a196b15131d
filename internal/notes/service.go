package notes

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/notely/notely/internal/ids"
)

// Service implements note CRUD on behalf of an authenticated owner.
type Service struct {
	repo Repository
	now  func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService builds a note service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Input carries the editable fields of a note.
type Input struct {
	Title   string
	Content string
}

// List returns the owner's notes, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Note, error) {
	if ownerID == "" {
		return nil, ErrNotFound
	}
	return s.repo.List(ctx, ownerID)
}

// Get returns one of the owner's notes.
func (s *Service) Get(ctx context.Context, ownerID, id string) (Note, error) {
	return s.repo.Get(ctx, ownerID, id)
}

// Create stores a new note. Empty fields fall back to the defaults.
func (s *Service) Create(ctx context.Context, ownerID string, in Input) (Note, error) {
	if ownerID == "" {
		return Note{}, fmt.Errorf("%w: owner is required", ErrInvalid)
	}
	if strings.TrimSpace(in.Title) == "" {
		in.Title = DefaultTitle
	}
	if in.Content == "" {
		in.Content = DefaultContent
	}
	if err := validate(in); err != nil {
		return Note{}, err
	}

	now := s.now().UTC()
	n := Note{
		ID:        ids.NewAt(now),
		OwnerID:   ownerID,
		Title:     in.Title,
		Content:   in.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return Note{}, err
	}
	return n, nil
}

// Update replaces title and content. Repeating the same update is harmless.
func (s *Service) Update(ctx context.Context, ownerID, id string, in Input) (Note, error) {
	if err := validate(in); err != nil {
		return Note{}, err
	}
	return s.repo.Update(ctx, Note{
		ID:        id,
		OwnerID:   ownerID,
		Title:     in.Title,
		Content:   in.Content,
		UpdatedAt: s.now().UTC(),
	})
}

// Delete removes the owner's note.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	return s.repo.Delete(ctx, ownerID, id)
}

func validate(in Input) error {
	if utf8.RuneCountInString(in.Title) > maxTitleLength {
		return fmt.Errorf("%w: title must be at most %d characters", ErrInvalid, maxTitleLength)
	}
	return nil
}
