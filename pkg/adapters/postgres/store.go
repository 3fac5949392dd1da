package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/aretw0/settle/pkg/ports"
)

const (
	defaultBufferTable = "settle_buffer"
	defaultTimerTable  = "settle_timer"
	initTimeout        = 5 * time.Second
)

// ErrInvalidDSN is returned by New for an empty connection string.
var ErrInvalidDSN = errors.New("postgres: dsn must not be empty")

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Store implements ports.ConversationStore on two tables: an append-only
// buffer ordered by a sequence, and a timer table with an expiry column
// compared against the database clock. Tables are created on first use.
type Store struct {
	dsn         string
	bufferTable string
	timerTable  string
	prefix      string
	openDB      sqlOpenFunc

	// initMu guards db. A failed initialization leaves db nil and is retried
	// by the next operation.
	initMu sync.Mutex
	db     *sql.DB
}

// Option configures the Store.
type Option func(*Store)

// WithTables overrides the table names, e.g. to isolate deployments in one database.
func WithTables(buffer, timer string) Option {
	return func(s *Store) {
		s.bufferTable = buffer
		s.timerTable = timer
	}
}

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

var (
	_ ports.ConversationStore = (*Store)(nil)
	_ ports.Drainer           = (*Store)(nil)
)

// New creates a Store. No connection is made until the first operation.
func New(dsn string, opts ...Option) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidDSN
	}
	s := &Store{
		dsn:         dsn,
		bufferTable: defaultBufferTable,
		timerTable:  defaultTimerTable,
		openDB:      sql.Open,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ping verifies the database is reachable and the schema is in place.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Exists reports whether key has buffered rows or an unexpired timer row.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.ensureReady(); err != nil {
		return false, err
	}
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW()))
		    OR EXISTS (SELECT 1 FROM %s WHERE key = $1)`,
		quoteIdentifier(s.timerTable), quoteIdentifier(s.bufferTable))
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, s.prefix+key).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: exists %q: %w", key, err)
	}
	return exists, nil
}

// ListAll returns buffered values in insertion order.
func (s *Store) ListAll(ctx context.Context, key string) ([]string, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1 ORDER BY seq", quoteIdentifier(s.bufferTable))
	rows, err := s.db.QueryContext(ctx, query, s.prefix+key)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %q: %w", key, err)
	}
	return scanValues(rows, key)
}

// ListAppend inserts value at the end of the buffer.
func (s *Store) ListAppend(ctx context.Context, key, value string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	query := fmt.Sprintf("INSERT INTO %s (key, value) VALUES ($1, $2)", quoteIdentifier(s.bufferTable))
	if _, err := s.db.ExecContext(ctx, query, s.prefix+key, value); err != nil {
		return fmt.Errorf("postgres: append %q: %w", key, err)
	}
	return nil
}

// SetWithExpiry upserts the timer row. A non-positive ttl never expires.
func (s *Store) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	var expiry any
	if ttl > 0 {
		expiry = ttl.Milliseconds()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, expires_at)
		VALUES ($1, $2, NOW() + $3::bigint * INTERVAL '1 millisecond')
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`, quoteIdentifier(s.timerTable))
	if _, err := s.db.ExecContext(ctx, query, s.prefix+key, value, expiry); err != nil {
		return fmt.Errorf("postgres: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key from both tables.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	for _, table := range []string{s.bufferTable, s.timerTable} {
		query := fmt.Sprintf("DELETE FROM %s WHERE key = $1", quoteIdentifier(table))
		if _, err := s.db.ExecContext(ctx, query, s.prefix+key); err != nil {
			return fmt.Errorf("postgres: delete %q: %w", key, err)
		}
	}
	return nil
}

// Drain deletes the buffer rows and returns their values in one statement.
func (s *Store) Drain(ctx context.Context, key string) ([]string, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		WITH drained AS (DELETE FROM %s WHERE key = $1 RETURNING seq, value)
		SELECT value FROM drained ORDER BY seq`, quoteIdentifier(s.bufferTable))
	rows, err := s.db.QueryContext(ctx, query, s.prefix+key)
	if err != nil {
		return nil, fmt.Errorf("postgres: drain %q: %w", key, err)
	}
	return scanValues(rows, key)
}

func scanValues(rows *sql.Rows, key string) ([]string, error) {
	defer rows.Close()
	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("postgres: scan %q: %w", key, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows %q: %w", key, err)
	}
	return values, nil
}

func (s *Store) ensureReady() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.db != nil {
		return nil
	}

	db, err := s.openDB("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("postgres: open: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	schema := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				seq BIGSERIAL PRIMARY KEY,
				key TEXT NOT NULL,
				value TEXT NOT NULL
			)`, quoteIdentifier(s.bufferTable)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (key, seq)`,
			quoteIdentifier(s.bufferTable+"_key_idx"), quoteIdentifier(s.bufferTable)),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				expires_at TIMESTAMPTZ
			)`, quoteIdentifier(s.timerTable)),
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("postgres: init schema: %w", err)
		}
	}
	s.db = db
	return nil
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
