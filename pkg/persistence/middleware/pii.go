package middleware

import (
	"context"
	"regexp"
	"time"

	"github.com/aretw0/settle/pkg/ports"
)

// Mask replaces every redacted match.
const Mask = "***"

type piiMiddleware struct {
	next     ports.ConversationStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks substrings of buffered
// messages matching the patterns before they reach the store. The consolidated
// text is built from the masked messages.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.ConversationStore) ports.ConversationStore {
		m := &piiMiddleware{next: next, patterns: patterns}
		if d, ok := next.(ports.Drainer); ok {
			return &drainingPII{piiMiddleware: m, Drainer: d}
		}
		return m
	}
}

type drainingPII struct {
	*piiMiddleware
	ports.Drainer
}

func (m *piiMiddleware) ListAppend(ctx context.Context, key, value string) error {
	return m.next.ListAppend(ctx, key, maskString(value, m.patterns))
}

func (m *piiMiddleware) ListAll(ctx context.Context, key string) ([]string, error) {
	return m.next.ListAll(ctx, key)
}

func (m *piiMiddleware) Exists(ctx context.Context, key string) (bool, error) {
	return m.next.Exists(ctx, key)
}

func (m *piiMiddleware) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	return m.next.SetWithExpiry(ctx, key, value, ttl)
}

func (m *piiMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

// Helpers

func maskString(s string, patterns []*regexp.Regexp) string {
	for _, p := range patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}
