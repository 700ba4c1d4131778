// Package redis implements the progress store on Redis, the production
// replacement for browser-local progress persistence.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/stepflow-dev/stepflow/pkg/domain"
)

// Store implements ports.ProgressStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for stored progress. Abandoned sessions
// expire instead of accumulating forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis progress store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis progress store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "stepflow:progress:",
		ttl:    0, // no expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Save persists the state as JSON.
func (s *Store) Save(ctx context.Context, key string, state *domain.NavigationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the state.
func (s *Store) Load(ctx context.Context, key string) (*domain.NavigationState, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var state domain.NavigationState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// Clear removes the stored state.
func (s *Store) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
