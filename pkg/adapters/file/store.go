// Package file implements a conversation store on the local filesystem.
//
// Every key is one JSON document in the base directory, replaced atomically on
// each write. The store serializes access within one process only; point a
// single replica at a directory.
package file

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const ext = ".json"

// maxNameLen keeps file names under the 255-byte limit of common filesystems.
// Keys whose encoded name is longer are stored under a hashed name.
const maxNameLen = 200

// hashedPrefix is outside the base64url alphabet, so hashed names never
// collide with encoded ones.
const hashedPrefix = "sha256."

// record is the on-disk form of one key. A key holds either a list or a value.
type record struct {
	Key       string     `json:"key"`
	List      []string   `json:"list,omitempty"`
	Value     *string    `json:"value,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Store implements ports.ConversationStore using the local filesystem.
type Store struct {
	BasePath string

	mu  sync.Mutex
	now func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".settle/store".
func New(basePath string, opts ...Option) *Store {
	if basePath == "" {
		basePath = filepath.Join(".settle", "store")
	}
	s := &Store{BasePath: basePath, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exists reports whether key holds a list or a live value.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(key)
	if err != nil || rec == nil {
		return false, err
	}
	return true, nil
}

// ListAll returns the list at key.
func (s *Store) ListAll(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(key)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.List == nil {
		return []string{}, nil
	}
	return rec.List, nil
}

// ListAppend appends value to the list at key, replacing a plain value.
func (s *Store) ListAppend(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(key)
	if err != nil {
		return err
	}
	list := []string{}
	if rec != nil && rec.Value == nil {
		list = rec.List
	}
	return s.save(key, record{List: append(list, value)})
}

// SetWithExpiry stores value at key until ttl elapses. A non-positive ttl never expires.
func (s *Store) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := record{Value: &value}
	if ttl > 0 {
		at := s.now().Add(ttl).UTC()
		rec.ExpiresAt = &at
	}
	return s.save(key, rec)
}

// Delete removes the key file.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.remove(key)
}

// Drain returns the list at key and removes it under a single lock.
func (s *Store) Drain(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(key)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Value != nil {
		return []string{}, nil
	}
	if err := s.remove(key); err != nil {
		return nil, err
	}
	return rec.List, nil
}

// Keys returns every live key in sorted order.
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	keys := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) || strings.HasPrefix(name, "tmp-") {
			continue
		}
		rec, err := s.read(filepath.Join(s.BasePath, name))
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		key := rec.Key
		if key == "" {
			raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, ext))
			if err != nil {
				continue
			}
			key = string(raw)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// path maps key to a file name that is safe on every filesystem.
func (s *Store) path(key string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(key))
	if len(name)+len(ext) > maxNameLen {
		sum := sha256.Sum256([]byte(key))
		name = hashedPrefix + hex.EncodeToString(sum[:])
	}
	return filepath.Join(s.BasePath, name+ext)
}

// load returns nil for absent or expired keys. Must be called with s.mu held.
func (s *Store) load(key string) (*record, error) {
	return s.read(s.path(key))
}

// read loads the record at path, removing it once expired. Must be called
// with s.mu held.
func (s *Store) read(path string) (*record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	if rec.ExpiresAt != nil && !s.now().Before(*rec.ExpiresAt) {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to delete key file: %w", err)
		}
		return nil, nil
	}
	return &rec, nil
}

// save writes rec atomically. Must be called with s.mu held.
func (s *Store) save(key string, rec record) error {
	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure store directory: %w", err)
	}

	rec.Key = key
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal key %q: %w", key, err)
	}

	// 1. Create Temp File in the same directory so the rename stays on one filesystem
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-*"+ext)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	// 2. Write Data
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	// 3. Fsync to ensure durability
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}

	// 4. Close File (cannot rename open file on Windows)
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// 5. Atomic Rename
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// remove must be called with s.mu held.
func (s *Store) remove(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}
