// Package ticket stores short-lived values that can be redeemed exactly once:
// OAuth state parameters and post-login handoff codes.
package ticket

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when a ticket is unknown, expired or already taken.
	ErrNotFound = errors.New("ticket not found")
	// ErrExists is returned by Put when the key is already live.
	ErrExists = errors.New("ticket already exists")
)

// Store holds one-time tickets.
type Store interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Take returns the value and deletes it atomically.
	Take(ctx context.Context, key string) (string, error)
}

// NewKey returns a random URL-safe key with 256 bits of entropy.
func NewKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate ticket key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// RedisStore keeps tickets in Redis under a namespace prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a Redis backed store; keys are written as prefix+key.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Put stores value under key unless the key is already live.
func (s *RedisStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, s.prefix+key, value, ttl).Result()
	if err != nil {
		return fmt.Errorf("store ticket: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// Take redeems the ticket with GETDEL so two callers cannot both succeed.
func (s *RedisStore) Take(ctx context.Context, key string) (string, error) {
	value, err := s.client.GetDel(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("take ticket: %w", err)
	}
	return value, nil
}

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store. A nil clock means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{items: make(map[string]entry), now: now}
}

// Put stores value under key unless the key is already live.
func (s *MemoryStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if _, ok := s.items[key]; ok {
		return ErrExists
	}
	s.items[key] = entry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

// Take redeems the ticket.
func (s *MemoryStore) Take(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return "", ErrNotFound
	}
	delete(s.items, key)
	if s.now().After(e.expiresAt) {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) sweep(now time.Time) {
	for k, e := range s.items {
		if now.After(e.expiresAt) {
			delete(s.items, k)
		}
	}
}
