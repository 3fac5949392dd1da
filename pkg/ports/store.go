package ports

import (
	"context"
	"time"
)

// ConversationStore is the narrow contract the engine uses against the external
// keyed store. Each method is a single atomic round trip. No cross-key
// transaction is assumed.
type ConversationStore interface {
	// Exists reports whether key is present (and, for expiring keys, not expired).
	Exists(ctx context.Context, key string) (bool, error)

	// ListAll returns the list stored at key in append order.
	// An absent key yields an empty slice, not an error.
	ListAll(ctx context.Context, key string) ([]string, error)

	// ListAppend appends value to the list at key, creating it if absent.
	ListAppend(ctx context.Context, key, value string) error

	// SetWithExpiry creates or overwrites key with value. The expiry restarts on every call.
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Drainer is implemented by stores that can read and clear a list in one atomic
// step. The engine uses it in atomic-drain mode to close the duplicate-ready race
// between ListAll and Delete.
type Drainer interface {
	Drain(ctx context.Context, key string) ([]string, error)
}

// Conn is a store handle scoped to one activation.
type Conn interface {
	ConversationStore
	// Close releases the handle. Pooled adapters return it to the pool.
	Close() error
}

// Connector hands out a Conn per activation.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// NopCloser turns a long-lived store into a Conn whose Close does nothing.
// The Drainer capability of store is preserved.
func NopCloser(store ConversationStore) Conn {
	if d, ok := store.(Drainer); ok {
		return nopDrainConn{nopConn{store}, d}
	}
	return nopConn{store}
}

// Static returns a Connector that always hands out store without closing it.
func Static(store ConversationStore) Connector {
	conn := NopCloser(store)
	return ConnectorFunc(func(context.Context) (Conn, error) {
		return conn, nil
	})
}

type nopConn struct {
	ConversationStore
}

func (nopConn) Close() error { return nil }

type nopDrainConn struct {
	nopConn
	Drainer
}
