package notes

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu    sync.RWMutex
	notes map[string]Note
}

// NewMemoryRepository builds an in-memory note store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{notes: make(map[string]Note)}
}

func (r *memoryRepository) List(_ context.Context, ownerID string) ([]Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Note, 0)
	for _, n := range r.notes {
		if n.OwnerID == ownerID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryRepository) Get(_ context.Context, ownerID, id string) (Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notes[id]
	if !ok || n.OwnerID != ownerID {
		return Note{}, ErrNotFound
	}
	return n, nil
}

func (r *memoryRepository) Create(_ context.Context, n Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes[n.ID] = n
	return nil
}

func (r *memoryRepository) Update(_ context.Context, n Note) (Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.notes[n.ID]
	if !ok || existing.OwnerID != n.OwnerID {
		return Note{}, ErrNotFound
	}
	existing.Title = n.Title
	existing.Content = n.Content
	existing.UpdatedAt = n.UpdatedAt
	r.notes[n.ID] = existing
	return existing, nil
}

func (r *memoryRepository) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok || n.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.notes, id)
	return nil
}
