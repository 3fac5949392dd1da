package domain

import (
	"context"
	"time"
)

// OutcomeEvent describes one finished activation.
type OutcomeEvent struct {
	Timestamp    time.Time      `json:"timestamp"`
	ActivationID string         `json:"activation_id"`
	Key          string         `json:"conversation_key,omitempty"`
	Poll         bool           `json:"poll"`
	Channel      Classification `json:"channel,omitempty"`
	Reason       DiscardReason  `json:"reason,omitempty"`
	Messages     int            `json:"messages,omitempty"`
	Duration     time.Duration  `json:"duration"`
	Err          error          `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run synchronously on the activation's goroutine and must not block.
type LifecycleHooks struct {
	OnWait    func(context.Context, *OutcomeEvent)
	OnReady   func(context.Context, *OutcomeEvent)
	OnDiscard func(context.Context, *OutcomeEvent)
	OnFailure func(context.Context, *OutcomeEvent)
}

// Fire dispatches ev to the hook matching its channel, or OnFailure when Err is set.
func (h LifecycleHooks) Fire(ctx context.Context, ev *OutcomeEvent) {
	var fn func(context.Context, *OutcomeEvent)
	switch {
	case ev.Err != nil:
		fn = h.OnFailure
	case ev.Channel == Wait:
		fn = h.OnWait
	case ev.Channel == Ready:
		fn = h.OnReady
	case ev.Channel == Discarded:
		fn = h.OnDiscard
	}
	if fn != nil {
		fn(ctx, ev)
	}
}

// Combine returns hooks that call every hook set in order.
func Combine(all ...LifecycleHooks) LifecycleHooks {
	fan := func(pick func(LifecycleHooks) func(context.Context, *OutcomeEvent)) func(context.Context, *OutcomeEvent) {
		var fns []func(context.Context, *OutcomeEvent)
		for _, h := range all {
			if fn := pick(h); fn != nil {
				fns = append(fns, fn)
			}
		}
		if len(fns) == 0 {
			return nil
		}
		return func(ctx context.Context, ev *OutcomeEvent) {
			for _, fn := range fns {
				fn(ctx, ev)
			}
		}
	}
	return LifecycleHooks{
		OnWait:    fan(func(h LifecycleHooks) func(context.Context, *OutcomeEvent) { return h.OnWait }),
		OnReady:   fan(func(h LifecycleHooks) func(context.Context, *OutcomeEvent) { return h.OnReady }),
		OnDiscard: fan(func(h LifecycleHooks) func(context.Context, *OutcomeEvent) { return h.OnDiscard }),
		OnFailure: fan(func(h LifecycleHooks) func(context.Context, *OutcomeEvent) { return h.OnFailure }),
	}
}
