package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/settle/pkg/session"
)

const (
	// DefaultInterval is the delay between poll checks.
	DefaultInterval = time.Second
	// DefaultConcurrency bounds how many conversations are polled at once.
	DefaultConcurrency = 16
)

type options struct {
	interval    time.Duration
	maxPolls    int
	concurrency int
	maxLineSize int
	logger      *slog.Logger
	guard       *session.Guard
	sleep       func(context.Context, time.Duration) error
}

// Option defines a functional option for configuring the Poller and the Runner.
type Option func(*options)

// WithInterval sets the delay between poll checks.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithMaxPolls gives up on a conversation after n poll checks. Zero polls forever.
func WithMaxPolls(n int) Option {
	return func(o *options) {
		o.maxPolls = n
	}
}

// WithConcurrency bounds the number of conversations polled at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithMaxLineSize caps the size of one input line.
func WithMaxLineSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLineSize = n
		}
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithGuard runs every activation of a conversation under guard.
func WithGuard(guard *session.Guard) Option {
	return func(o *options) {
		o.guard = guard
	}
}

// WithSleep replaces the wait between polls, letting tests move a fake clock instead.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(o *options) {
		o.sleep = sleep
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
