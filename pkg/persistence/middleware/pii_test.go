package middleware_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/settle/pkg/adapters/memory"
	"github.com/aretw0/settle/pkg/persistence/middleware"
	"github.com/aretw0/settle/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var memoryEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestPIIMiddleware_Masking(t *testing.T) {
	// Setup
	underlying := memory.NewStore()
	// Mask e-mail addresses and long digit runs
	mw := middleware.NewPIIMiddleware([]string{`[\w.+-]+@[\w-]+\.[\w.]+`, `\d{6,}`})
	secure := mw(underlying)
	ctx := context.Background()

	// 1. Append
	require.NoError(t, secure.ListAppend(ctx, "msg:u1", "mail me at jane@example.com"))
	require.NoError(t, secure.ListAppend(ctx, "msg:u1", "order 12345678 please"))
	require.NoError(t, secure.ListAppend(ctx, "msg:u1", "nothing sensitive"))

	// 2. Stored values are masked
	stored, err := underlying.ListAll(ctx, "msg:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"mail me at ***",
		"order *** please",
		"nothing sensitive",
	}, stored)

	_, ok := secure.(ports.Drainer)
	assert.True(t, ok)
}

func TestChain_Order(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()

	// PII runs before encryption, so the ciphertext is of the masked text.
	store := middleware.Chain(underlying,
		middleware.NewPIIMiddleware([]string{`secret`}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)}),
	)
	require.NoError(t, store.ListAppend(ctx, "msg:u1", "a secret"))

	raw, err := underlying.ListAll(ctx, "msg:u1")
	require.NoError(t, err)
	assert.NotContains(t, raw[0], "secret")

	got, err := store.ListAll(ctx, "msg:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a ***"}, got)
}

func TestWrapConnector_ClosesOriginal(t *testing.T) {
	underlying := memory.NewStore()
	closed := 0
	connector := ports.ConnectorFunc(func(context.Context) (ports.Conn, error) {
		return closeCounter{Conn: ports.NopCloser(underlying), n: &closed}, nil
	})

	wrapped := middleware.WrapConnector(connector, middleware.NewLoggingMiddleware(slog.New(slog.DiscardHandler), true))
	conn, err := wrapped.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.ListAppend(context.Background(), "msg:u1", "x"))
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, closed)
}

type closeCounter struct {
	ports.Conn
	n *int
}

func (c closeCounter) Close() error {
	*c.n++
	return nil
}
