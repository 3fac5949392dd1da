package settle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/settle"
	"github.com/aretw0/settle/pkg/adapters/memory"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresConnector(t *testing.T) {
	_, err := settle.New(nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestFacade_DefaultsAreMergedPerActivation(t *testing.T) {
	store := memory.NewStore()
	defaults := domain.Settings{MessageField: "text", WaitTimeSeconds: 30}
	calls := 0

	engine, err := settle.New(ports.Static(store), settle.WithDefaults(func() domain.Settings {
		calls++
		return defaults
	}))
	require.NoError(t, err)

	ctx := context.Background()
	out, err := engine.Process(ctx, domain.Activation{
		Settings: domain.Settings{ConversationKey: "u1"},
		Payload:  domain.Envelope{"text": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Wait, out.Classification)
	assert.Equal(t, 1, calls)

	// Reloaded defaults apply to the next activation.
	defaults.MessageField = "body"
	out, err = engine.Process(ctx, domain.Activation{
		Settings: domain.Settings{ConversationKey: "u1"},
		Payload:  domain.Envelope{"text": "ignored now"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Discarded, out.Classification)
	assert.Equal(t, 2, calls)
}

func TestFacade_LifecycleHooks(t *testing.T) {
	clock := memory.NewManualClock(time.Unix(0, 0))
	store := memory.NewStore(memory.WithClock(clock.Now))

	var events []*domain.OutcomeEvent
	record := func(_ context.Context, ev *domain.OutcomeEvent) { events = append(events, ev) }
	hooks := domain.LifecycleHooks{OnWait: record, OnReady: record, OnDiscard: record, OnFailure: record}

	engine, err := settle.New(ports.Static(store), settle.WithLifecycleHooks(hooks))
	require.NoError(t, err)

	ctx := context.Background()
	s := domain.Settings{ConversationKey: "u1", MessageField: "text"}

	first, err := engine.Process(ctx, domain.NewActivation(s, domain.Envelope{"text": "a"}))
	require.NoError(t, err)
	clock.Advance(10 * time.Second)
	_, err = engine.Process(ctx, domain.NewActivation(s, first.Payload))
	require.NoError(t, err)
	_, err = engine.Process(ctx, domain.NewActivation(s, domain.Envelope{"text": ""}))
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, domain.Wait, events[0].Channel)
	assert.False(t, events[0].Poll)
	assert.Equal(t, domain.Ready, events[1].Channel)
	assert.True(t, events[1].Poll)
	assert.Equal(t, 1, events[1].Messages)
	assert.Equal(t, "u1", events[1].Key)
	assert.Equal(t, domain.Discarded, events[2].Channel)
	assert.Equal(t, domain.ReasonEmptyPayload, events[2].Reason)
	for _, ev := range events {
		assert.NotEmpty(t, ev.ActivationID)
	}
}

func TestFacade_FailureFiresHookAndReturnsError(t *testing.T) {
	connector := ports.ConnectorFunc(func(context.Context) (ports.Conn, error) {
		return nil, errors.New("no route to host")
	})

	var failed *domain.OutcomeEvent
	engine, err := settle.New(connector, settle.WithLifecycleHooks(domain.LifecycleHooks{
		OnFailure: func(_ context.Context, ev *domain.OutcomeEvent) { failed = ev },
	}))
	require.NoError(t, err)

	out, err := engine.Process(context.Background(), domain.NewActivation(
		domain.Settings{ConversationKey: "u1", MessageField: "text"},
		domain.Envelope{"text": "hello"},
	))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	require.NotNil(t, failed)
	assert.Equal(t, "u1", failed.Key)
	assert.ErrorIs(t, failed.Err, domain.ErrConfiguration)
}

func TestFacade_ContinueOnFail(t *testing.T) {
	connector := ports.ConnectorFunc(func(context.Context) (ports.Conn, error) {
		return nil, errors.New("no route to host")
	})
	engine, err := settle.New(connector, settle.WithContinueOnFail(true))
	require.NoError(t, err)

	input := domain.Envelope{"text": "hello", "chat": "c1"}
	out, err := engine.Process(context.Background(), domain.NewActivation(
		domain.Settings{ConversationKey: "u1", MessageField: "text"},
		input,
	))
	require.NoError(t, err)
	assert.Equal(t, domain.Wait, out.Classification)
	assert.Equal(t, input, out.Payload, "failed input is routed unmodified")
	assert.ErrorIs(t, out.Failure, domain.ErrConfiguration)
}

func TestFacade_Inspect(t *testing.T) {
	store := memory.NewStore()
	engine, err := settle.New(ports.Static(store))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = engine.Process(ctx, domain.NewActivation(
		domain.Settings{ConversationKey: "u1", MessageField: "text"},
		domain.Envelope{"text": "hello"},
	))
	require.NoError(t, err)

	snap, err := engine.Inspect(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, snap.Open)
	assert.Equal(t, []string{"hello"}, snap.Messages)
}
