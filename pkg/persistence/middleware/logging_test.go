package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/settle/pkg/adapters/memory"
	"github.com/aretw0/settle/pkg/persistence/middleware"
	"github.com/aretw0/settle/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddleware_Redacts(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := middleware.NewLoggingMiddleware(logger, true)(memory.NewStore())
	ctx := context.Background()

	require.NoError(t, store.ListAppend(ctx, "msg:u1", "top secret"))
	require.NoError(t, store.SetWithExpiry(ctx, "timer:u1", "1", 5*time.Second))

	out := buf.String()
	assert.NotContains(t, out, "top secret")
	assert.Contains(t, out, "value_len=10")
	assert.Contains(t, out, "op=list_append")
	assert.Contains(t, out, "op=set_with_expiry")

	_, ok := store.(ports.Drainer)
	assert.True(t, ok)
}

func TestLoggingMiddleware_Plain(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := middleware.NewLoggingMiddleware(logger, false)(memory.NewStore())

	require.NoError(t, store.ListAppend(context.Background(), "msg:u1", "hello"))
	assert.Contains(t, buf.String(), "value=hello")
}

type failingStore struct{ ports.ConversationStore }

func (failingStore) Delete(context.Context, string) error { return errors.New("read-only replica") }

func TestLoggingMiddleware_FailuresAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store := middleware.NewLoggingMiddleware(logger, true)(failingStore{memory.NewStore()})

	err := store.Delete(context.Background(), "msg:u1")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "store operation failed")
	assert.Contains(t, buf.String(), "read-only replica")
}
