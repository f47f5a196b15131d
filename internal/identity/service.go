package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Service manages identity lifecycle outside of the OTP flow.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// New builds a fresh identity for the given profile.
func New(p Profile, now time.Time) Identity {
	provider := p.Provider
	if provider == "" {
		provider = ProviderOTP
	}
	return Identity{
		ID:        uuid.New().String(),
		Name:      p.Name,
		Email:     NormalizeEmail(p.Email),
		DOB:       p.DOB,
		Provider:  provider,
		CreatedAt: now.UTC(),
	}
}

// Upsert returns the identity for the profile's email, creating it when the
// address is new. An existing record keeps its ID; a missing display name is
// filled in from the profile.
func (s *Service) Upsert(ctx context.Context, p Profile) (Identity, error) {
	email := NormalizeEmail(p.Email)
	if email == "" {
		return Identity{}, errors.New("email is required")
	}

	fill := func(id *Identity) error {
		if id.Name == "" {
			id.Name = p.Name
		}
		return nil
	}

	existing, err := s.repo.Update(ctx, email, fill)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Identity{}, err
	}

	created := New(p, s.now())
	if err := s.repo.Create(ctx, created); err != nil {
		if errors.Is(err, ErrExists) {
			// Lost a race with a concurrent signup for the same address.
			return s.repo.Update(ctx, email, fill)
		}
		return Identity{}, err
	}
	return created, nil
}

// Get fetches an identity by ID.
func (s *Service) Get(ctx context.Context, id string) (Identity, error) {
	return s.repo.FindByID(ctx, id)
}
