package redis

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.ConversationStore and ports.Drainer using Redis.
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix namespaces every key. The default is no prefix, so keys are exactly
// msg:<conversation> and timer:<conversation>.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

// Exists runs EXISTS.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %q: %w", key, err)
	}
	return n > 0, nil
}

// ListAll runs LRANGE key 0 -1.
func (s *Store) ListAll(ctx context.Context, key string) ([]string, error) {
	vals, err := s.client.LRange(ctx, s.key(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %q: %w", key, err)
	}
	if vals == nil {
		vals = []string{}
	}
	return vals, nil
}

// ListAppend runs RPUSH.
func (s *Store) ListAppend(ctx context.Context, key, value string) error {
	if err := s.client.RPush(ctx, s.key(key), value).Err(); err != nil {
		return fmt.Errorf("redis rpush %q: %w", key, err)
	}
	return nil
}

// SetWithExpiry runs SET with EX (or PX for sub-second windows).
func (s *Store) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Delete runs DEL.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// Drain reads and deletes the list inside MULTI/EXEC, so no other client can
// observe the list between the read and the delete.
func (s *Store) Drain(ctx context.Context, key string) ([]string, error) {
	var lrange *backend.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		lrange = pipe.LRange(ctx, s.key(key), 0, -1)
		pipe.Del(ctx, s.key(key))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis drain %q: %w", key, err)
	}
	vals := lrange.Val()
	if vals == nil {
		vals = []string{}
	}
	return vals, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
