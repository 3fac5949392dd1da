package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/settle/internal/config"
	"github.com/aretw0/settle/internal/logging"
	"github.com/aretw0/settle/pkg/domain"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
				// Context cancelled elsewhere
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// NewLogger builds the process logger from the logging section. Logs go to w,
// which is Stderr for every command so Stdout stays machine readable.
func NewLogger(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	return logging.NewWithFormat(w, level, format), nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *slog.Logger {
	return logging.NewNop()
}

// createDebugHooks traces every outcome at debug level. Discards are expected
// routing and never logged above debug.
func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	trace := func(msg string) func(context.Context, *domain.OutcomeEvent) {
		return func(ctx context.Context, e *domain.OutcomeEvent) {
			logger.DebugContext(ctx, msg,
				"activation_id", e.ActivationID,
				"conversation_key", e.Key,
				"poll", e.Poll,
				"reason", e.Reason,
				"messages", e.Messages,
				"duration", e.Duration,
			)
		}
	}
	return domain.LifecycleHooks{
		OnWait:    trace("Wait"),
		OnReady:   trace("Ready"),
		OnDiscard: trace("Discard"),
		OnFailure: func(ctx context.Context, e *domain.OutcomeEvent) {
			logger.DebugContext(ctx, "Failure", "activation_id", e.ActivationID, "conversation_key", e.Key, "err", e.Err)
		},
	}
}
