package runtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/settle/internal/logging"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
)

// Coordinator is the debounce state machine. It holds no conversation state:
// every decision is derived from the store during the activation.
//
// Per conversation there are two inferred states. Open: the timer marker exists,
// new messages append and refresh it. Closed: the marker expired, the next poll
// check consolidates whatever is buffered.
//
// Known race: two poll checks that both observe an expired marker may both read
// the buffer before either deletes it, and both emit ready. Whichever deletes
// first usually wins and the other observes an empty list and discards. Atomic
// drain mode closes the window for stores implementing ports.Drainer.
type Coordinator struct {
	connector   ports.Connector
	atomicDrain bool
	logger      *slog.Logger
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithAtomicDrain reads and clears the buffer in one store operation when the
// store supports it.
func WithAtomicDrain(enabled bool) Option {
	return func(c *Coordinator) {
		c.atomicDrain = enabled
	}
}

// WithLogger sets the logger used for debug tracing and release failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a coordinator that acquires one store connection per activation.
func NewCoordinator(connector ports.Connector, opts ...Option) *Coordinator {
	c := &Coordinator{
		connector: connector,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process classifies one activation.
func (c *Coordinator) Process(ctx context.Context, act domain.Activation) (*domain.Outcome, error) {
	settings := act.Settings.WithDefaults()
	if err := settings.Validate(); err != nil {
		return nil, domain.ConfigError("settings", settings.ConversationKey, err)
	}
	key, err := settings.ResolveKey(act.Payload)
	if err != nil {
		return nil, domain.ConfigError("resolve_key", "", err)
	}

	if act.IsPoll() {
		return c.withConn(ctx, key, func(store ports.Conn) (*domain.Outcome, error) {
			return c.check(ctx, store, key, settings, act.Payload)
		})
	}

	// Blank messages never touch the store.
	text, ok := act.Payload.Text(settings.MessageField)
	if !ok {
		c.logger.Debug("discarding blank message",
			"activation_id", act.ID,
			"conversation", key,
			"field", settings.MessageField,
		)
		return discard(key, act.Payload, domain.ReasonEmptyPayload), nil
	}
	return c.withConn(ctx, key, func(store ports.Conn) (*domain.Outcome, error) {
		return c.buffer(ctx, store, key, settings, act.Payload, text)
	})
}

// Inspect reads the buffer and the timer marker without mutating them.
func (c *Coordinator) Inspect(ctx context.Context, key domain.ConversationKey) (*domain.Snapshot, error) {
	if err := key.Validate(); err != nil {
		return nil, domain.ConfigError("inspect", "", err)
	}
	var snap *domain.Snapshot
	_, err := c.withConn(ctx, key, func(store ports.Conn) (*domain.Outcome, error) {
		open, err := store.Exists(ctx, key.TimerKey())
		if err != nil {
			return nil, domain.StoreError("exists", string(key), err)
		}
		messages, err := store.ListAll(ctx, key.BufferKey())
		if err != nil {
			return nil, domain.StoreError("list_all", string(key), err)
		}
		snap = &domain.Snapshot{Key: string(key), Open: open, Messages: messages}
		return nil, nil
	})
	return snap, err
}

// withConn scopes a store connection to fn and releases it on every exit path.
func (c *Coordinator) withConn(ctx context.Context, key domain.ConversationKey, fn func(ports.Conn) (*domain.Outcome, error)) (*domain.Outcome, error) {
	conn, err := c.connector.Connect(ctx)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			if de.Key == "" {
				de.Key = string(key)
			}
			return nil, de
		}
		return nil, domain.ConfigError("connect", string(key), err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.logger.Warn("failed to release store connection", "conversation", key, "err", err)
		}
	}()
	return fn(conn)
}

// buffer appends a raw message and restarts the window.
func (c *Coordinator) buffer(ctx context.Context, store ports.Conn, key domain.ConversationKey, settings domain.Settings, payload domain.Envelope, text string) (*domain.Outcome, error) {
	if err := store.ListAppend(ctx, key.BufferKey(), text); err != nil {
		return nil, domain.StoreError("list_append", string(key), err)
	}
	if err := store.SetWithExpiry(ctx, key.TimerKey(), domain.TimerMarkerValue, settings.WaitTime()); err != nil {
		return nil, domain.StoreError("set_timer", string(key), err)
	}

	c.logger.Debug("message buffered", "conversation", key, "wait", settings.WaitTime())
	return &domain.Outcome{
		Classification: domain.Wait,
		Key:            string(key),
		Payload:        payload.WithPoll(),
	}, nil
}

// check handles a poll: wait while the marker exists, otherwise consolidate.
func (c *Coordinator) check(ctx context.Context, store ports.Conn, key domain.ConversationKey, settings domain.Settings, payload domain.Envelope) (*domain.Outcome, error) {
	open, err := store.Exists(ctx, key.TimerKey())
	if err != nil {
		return nil, domain.StoreError("exists", string(key), err)
	}
	if open {
		return &domain.Outcome{
			Classification: domain.Wait,
			Key:            string(key),
			Payload:        payload,
		}, nil
	}

	messages, err := c.drain(ctx, store, key)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		c.logger.Debug("window elapsed with empty buffer", "conversation", key)
		return discard(key, payload, domain.ReasonExpiredEmpty), nil
	}

	consolidated := domain.Consolidate(messages)
	ready := payload.WithoutPoll()
	ready[settings.OutputField] = consolidated
	ready[settings.AllMessagesField] = messages

	c.logger.Debug("conversation settled", "conversation", key, "messages", len(messages))
	return &domain.Outcome{
		Classification: domain.Ready,
		Key:            string(key),
		Payload:        ready,
		Messages:       messages,
		Consolidated:   consolidated,
	}, nil
}

// drain reads the buffer and clears it. A failed delete is a store failure even
// though the read succeeded, so a ready outcome is never emitted for a buffer
// that is still persisted.
func (c *Coordinator) drain(ctx context.Context, store ports.Conn, key domain.ConversationKey) ([]string, error) {
	if c.atomicDrain {
		if d, ok := store.(ports.Drainer); ok {
			messages, err := d.Drain(ctx, key.BufferKey())
			if err != nil {
				return nil, domain.StoreError("drain", string(key), err)
			}
			return messages, nil
		}
		c.logger.Debug("store has no atomic drain, falling back to list and delete", "conversation", key)
	}

	messages, err := store.ListAll(ctx, key.BufferKey())
	if err != nil {
		return nil, domain.StoreError("list_all", string(key), err)
	}
	if len(messages) == 0 {
		return messages, nil
	}
	if err := store.Delete(ctx, key.BufferKey()); err != nil {
		return nil, domain.StoreError("delete", string(key), err)
	}
	return messages, nil
}

func discard(key domain.ConversationKey, payload domain.Envelope, reason domain.DiscardReason) *domain.Outcome {
	return &domain.Outcome{
		Classification: domain.Discarded,
		Reason:         reason,
		Key:            string(key),
		Payload:        payload.WithoutPoll(),
	}
}
