package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// Store implements ports.ConversationStore in memory.
// Safe for concurrent use. Expired keys are removed lazily on access.
type Store struct {
	mu     sync.Mutex
	lists  map[string][]string
	values map[string]entry
	now    func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithClock replaces time.Now, letting tests move time forward.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		lists:  make(map[string][]string),
		values: make(map[string]entry),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exists reports whether key holds a live value or a non-empty list.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists[key]; ok {
		return true, nil
	}
	_, ok := s.liveValue(key)
	return ok, nil
}

// ListAll returns a copy of the list at key.
func (s *Store) ListAll(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

// ListAppend appends value to the list at key.
func (s *Store) ListAppend(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	s.lists[key] = append(s.lists[key], value)
	return nil
}

// SetWithExpiry stores value at key until ttl elapses. A non-positive ttl never expires.
func (s *Store) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	delete(s.lists, key)
	s.values[key] = e
	return nil
}

// Delete removes key, whatever it holds.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.lists, key)
	delete(s.values, key)
	return nil
}

// Drain returns the list at key and removes it under a single lock.
func (s *Store) Drain(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	delete(s.lists, key)
	if list == nil {
		return []string{}, nil
	}
	return list, nil
}

// Keys returns every live key. Used by diagnostics and tests.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.lists)+len(s.values))
	for k := range s.lists {
		keys = append(keys, k)
	}
	for k := range s.values {
		if _, ok := s.liveValue(k); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// liveValue must be called with s.mu held.
func (s *Store) liveValue(key string) (entry, bool) {
	e, ok := s.values[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.values, key)
		return entry{}, false
	}
	return e, true
}
