package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/settle/internal/logging"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
)

// ErrNotSettled is returned when a conversation is still open after the poll budget.
var ErrNotSettled = errors.New("conversation did not settle")

// Poller resubmits poll checks until a conversation settles.
type Poller struct {
	engine ports.Engine
	opts   options
}

// NewPoller creates a Poller over engine.
func NewPoller(engine ports.Engine, opts ...Option) *Poller {
	return &Poller{engine: engine, opts: buildOptions(opts)}
}

func buildOptions(opts []Option) options {
	o := options{
		interval:    DefaultInterval,
		concurrency: DefaultConcurrency,
		maxLineSize: DefaultMaxLineSize,
		logger:      logging.NewNop(),
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Process submits one activation, through the guard when one is configured.
func (p *Poller) Process(ctx context.Context, act domain.Activation) (*domain.Outcome, error) {
	if p.opts.guard == nil {
		return p.engine.Process(ctx, act)
	}
	key, err := p.resolveKey(act)
	if err != nil {
		// Let the engine report the configuration error.
		return p.engine.Process(ctx, act)
	}
	var out *domain.Outcome
	err = p.opts.guard.Do(ctx, string(key), func(ctx context.Context) error {
		var err error
		out, err = p.engine.Process(ctx, act)
		return err
	})
	return out, err
}

func (p *Poller) resolveKey(act domain.Activation) (domain.ConversationKey, error) {
	if r, ok := p.engine.(ports.KeyResolver); ok {
		return r.ResolveKey(act)
	}
	return act.Settings.WithDefaults().ResolveKey(act.Payload)
}

// Settle polls on behalf of act, whose processing produced out, until the
// conversation reaches ready or discarded. Settled outcomes are returned as is.
// A wait outcome carrying a routed failure stops the loop; its payload is the
// original input, and resubmitting it would buffer the message again.
func (p *Poller) Settle(ctx context.Context, act domain.Activation, out *domain.Outcome) (*domain.Outcome, error) {
	polls := 0
	for !out.Settled() {
		if out.Failure != nil {
			return out, out.Failure
		}
		if p.opts.maxPolls > 0 && polls >= p.opts.maxPolls {
			p.opts.logger.Warn("conversation did not settle; buffered messages stay in the store",
				"conversation_key", out.Key,
				"polls", polls,
				"interval", p.opts.interval,
			)
			return out, fmt.Errorf("%w after %d polls: %s", ErrNotSettled, polls, out.Key)
		}
		if err := p.opts.sleep(ctx, p.opts.interval); err != nil {
			return out, err
		}

		next := act.Next(out)
		polls++
		res, err := p.Process(ctx, next)
		if err != nil {
			return out, err
		}
		p.opts.logger.Debug("poll check", "conversation_key", res.Key, "channel", res.Classification, "poll", polls)
		act, out = next, res
	}
	return out, nil
}
