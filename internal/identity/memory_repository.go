package identity

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]Identity
}

// NewMemoryRepository builds an in-memory identity store used in development
// and tests. Update holds the write lock for the whole read-modify-write.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]Identity)}
}

func (r *memoryRepository) Create(_ context.Context, id Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[id.Email]; exists {
		return ErrExists
	}
	r.users[id.Email] = id
	return nil
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.users[email]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return id, nil
}

func (r *memoryRepository) FindByID(_ context.Context, userID string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.users {
		if id.ID == userID {
			return id, nil
		}
	}
	return Identity{}, ErrNotFound
}

func (r *memoryRepository) Update(_ context.Context, email string, fn func(*Identity) error) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.users[email]
	if !ok {
		return Identity{}, ErrNotFound
	}
	if err := fn(&id); err != nil {
		return Identity{}, err
	}
	r.users[email] = id
	return id, nil
}
