package settle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/settle/internal/runtime"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
	"github.com/google/uuid"
)

// Engine is the high-level entry point for the Settle library.
// It wraps the internal coordinator with defaults, hooks and failure routing.
type Engine struct {
	coordinator    *runtime.Coordinator
	connector      ports.Connector
	defaults       func() domain.Settings
	hooks          domain.LifecycleHooks
	logger         *slog.Logger
	atomicDrain    bool
	continueOnFail bool
	now            func() time.Time
}

var (
	_ ports.Engine      = (*Engine)(nil)
	_ ports.KeyResolver = (*Engine)(nil)
)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithAtomicDrain consolidates through ports.Drainer when the store offers it.
func WithAtomicDrain(enabled bool) Option {
	return func(e *Engine) {
		e.atomicDrain = enabled
	}
}

// WithContinueOnFail routes failed activations to the wait channel with the
// unmodified input instead of returning the error.
func WithContinueOnFail(enabled bool) Option {
	return func(e *Engine) {
		e.continueOnFail = enabled
	}
}

// WithDefaults supplies base settings that each activation's own settings are
// merged over. fn is called on every activation so reloaded configuration
// applies to the next one.
func WithDefaults(fn func() domain.Settings) Option {
	return func(e *Engine) {
		e.defaults = fn
	}
}

// New initializes a new Settle Engine over connector.
func New(connector ports.Connector, opts ...Option) (*Engine, error) {
	if connector == nil {
		return nil, domain.ConfigError("new", "", errors.New("a store connector is required"))
	}

	eng := &Engine{
		connector: connector,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(eng)
	}

	// Ensure logger is initialized (so we don't pass nil to runtime, which would overwrite its default)
	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	eng.coordinator = runtime.NewCoordinator(connector,
		runtime.WithAtomicDrain(eng.atomicDrain),
		runtime.WithLogger(eng.logger),
	)
	return eng, nil
}

// Process runs one activation: a raw message or a poll check.
func (e *Engine) Process(ctx context.Context, act domain.Activation) (*domain.Outcome, error) {
	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	if act.Payload == nil {
		act.Payload = domain.Envelope{}
	}
	if e.defaults != nil {
		act.Settings = e.defaults().Merge(act.Settings)
	}

	start := e.now()
	out, err := e.coordinator.Process(ctx, act)

	ev := &domain.OutcomeEvent{
		Timestamp:    start,
		ActivationID: act.ID,
		Poll:         act.IsPoll(),
		Duration:     e.now().Sub(start),
		Err:          err,
	}
	if out != nil {
		ev.Key = out.Key
		ev.Channel = out.Classification
		ev.Reason = out.Reason
		ev.Messages = len(out.Messages)
	} else {
		var de *domain.Error
		if errors.As(err, &de) {
			ev.Key = de.Key
		}
	}
	e.hooks.Fire(ctx, ev)

	if err != nil {
		e.logger.Error("activation failed",
			"activation_id", act.ID,
			"kind", domain.KindOf(err),
			"poll", ev.Poll,
			"err", err,
		)
		if !e.continueOnFail {
			return nil, err
		}
		return &domain.Outcome{
			Classification: domain.Wait,
			Key:            ev.Key,
			Payload:        act.Payload,
			Failure:        err,
		}, nil
	}

	switch out.Classification {
	case domain.Discarded:
		e.logger.Debug("activation discarded", "activation_id", act.ID, "conversation", out.Key, "reason", out.Reason)
	case domain.Ready:
		e.logger.Info("conversation settled", "activation_id", act.ID, "conversation", out.Key, "messages", len(out.Messages))
	}
	return out, nil
}

// ResolveKey returns the conversation key act would be processed under.
func (e *Engine) ResolveKey(act domain.Activation) (domain.ConversationKey, error) {
	settings := act.Settings
	if e.defaults != nil {
		settings = e.defaults().Merge(settings)
	}
	return settings.WithDefaults().ResolveKey(act.Payload)
}

// Inspect returns the persisted state of a conversation.
func (e *Engine) Inspect(ctx context.Context, key domain.ConversationKey) (*domain.Snapshot, error) {
	return e.coordinator.Inspect(ctx, key)
}

// Connector returns the store connector used by the engine.
func (e *Engine) Connector() ports.Connector {
	return e.connector
}
