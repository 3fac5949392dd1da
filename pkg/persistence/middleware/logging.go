package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/settle/pkg/ports"
)

type loggingMiddleware struct {
	next   ports.ConversationStore
	logger *slog.Logger
	redact bool
}

type drainingLogging struct {
	*loggingMiddleware
	drainer ports.Drainer
}

// NewLoggingMiddleware logs every store operation at debug level. With redact
// set, message values are replaced by their length.
func NewLoggingMiddleware(logger *slog.Logger, redact bool) Middleware {
	return func(next ports.ConversationStore) ports.ConversationStore {
		m := &loggingMiddleware{next: next, logger: logger, redact: redact}
		if d, ok := next.(ports.Drainer); ok {
			return &drainingLogging{loggingMiddleware: m, drainer: d}
		}
		return m
	}
}

func (m *loggingMiddleware) value(v string) slog.Attr {
	if m.redact {
		return slog.Int("value_len", len(v))
	}
	return slog.String("value", v)
}

func (m *loggingMiddleware) done(ctx context.Context, op, key string, start time.Time, err error, attrs ...any) {
	attrs = append(attrs, "op", op, "key", key, "duration", time.Since(start))
	if err != nil {
		m.logger.WarnContext(ctx, "store operation failed", append(attrs, "err", err)...)
		return
	}
	m.logger.DebugContext(ctx, "store operation", attrs...)
}

func (m *loggingMiddleware) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := m.next.Exists(ctx, key)
	m.done(ctx, "exists", key, start, err, "exists", ok)
	return ok, err
}

func (m *loggingMiddleware) ListAll(ctx context.Context, key string) ([]string, error) {
	start := time.Now()
	values, err := m.next.ListAll(ctx, key)
	m.done(ctx, "list_all", key, start, err, "count", len(values))
	return values, err
}

func (m *loggingMiddleware) ListAppend(ctx context.Context, key, value string) error {
	start := time.Now()
	err := m.next.ListAppend(ctx, key, value)
	m.done(ctx, "list_append", key, start, err, m.value(value))
	return err
}

func (m *loggingMiddleware) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	start := time.Now()
	err := m.next.SetWithExpiry(ctx, key, value, ttl)
	m.done(ctx, "set_with_expiry", key, start, err, "ttl", ttl)
	return err
}

func (m *loggingMiddleware) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := m.next.Delete(ctx, key)
	m.done(ctx, "delete", key, start, err)
	return err
}

func (m *drainingLogging) Drain(ctx context.Context, key string) ([]string, error) {
	start := time.Now()
	values, err := m.drainer.Drain(ctx, key)
	m.done(ctx, "drain", key, start, err, "count", len(values))
	return values, err
}
