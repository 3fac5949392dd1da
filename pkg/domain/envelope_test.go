package domain_test

import (
	"context"
	"testing"

	"github.com/aretw0/settle/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestEnvelope_PollFlag(t *testing.T) {
	raw := domain.Envelope{"text": "hi"}
	assert.False(t, raw.IsPoll())

	poll := raw.WithPoll()
	assert.True(t, poll.IsPoll())
	assert.False(t, raw.IsPoll(), "WithPoll must not mutate the receiver")

	cleared := poll.WithoutPoll()
	assert.False(t, cleared.IsPoll())
	assert.NotContains(t, cleared, domain.PollingSignalKey)

	assert.True(t, domain.Envelope{domain.PollingSignalKey: "true"}.IsPoll())
	assert.False(t, domain.Envelope{domain.PollingSignalKey: 1}.IsPoll())
}

func TestEnvelope_Text(t *testing.T) {
	e := domain.Envelope{"ok": "hello", "blank": "  \t", "num": 42}

	s, ok := e.Text("ok")
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	_, ok = e.Text("blank")
	assert.False(t, ok)
	_, ok = e.Text("num")
	assert.False(t, ok)
	_, ok = e.Text("missing")
	assert.False(t, ok)
}

func TestConsolidate(t *testing.T) {
	assert.Equal(t, "hello world", domain.Consolidate([]string{"hello", "world"}))
	assert.Equal(t, "", domain.Consolidate(nil))
}

func TestLifecycleHooks_Fire(t *testing.T) {
	var got []string
	record := func(name string) func(context.Context, *domain.OutcomeEvent) {
		return func(context.Context, *domain.OutcomeEvent) { got = append(got, name) }
	}
	hooks := domain.Combine(
		domain.LifecycleHooks{OnReady: record("a-ready"), OnFailure: record("a-fail")},
		domain.LifecycleHooks{OnReady: record("b-ready"), OnWait: record("b-wait")},
	)
	ctx := context.Background()

	hooks.Fire(ctx, &domain.OutcomeEvent{Channel: domain.Ready})
	hooks.Fire(ctx, &domain.OutcomeEvent{Channel: domain.Wait})
	hooks.Fire(ctx, &domain.OutcomeEvent{Channel: domain.Discarded})
	hooks.Fire(ctx, &domain.OutcomeEvent{Err: assert.AnError})

	assert.Equal(t, []string{"a-ready", "b-ready", "b-wait", "a-fail"}, got)
}
