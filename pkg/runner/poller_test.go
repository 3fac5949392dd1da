package runner_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/settle"
	"github.com/aretw0/settle/pkg/adapters/memory"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
	"github.com/aretw0/settle/pkg/runner"
	"github.com/aretw0/settle/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine *settle.Engine
	clock  *memory.ManualClock
	store  *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := memory.NewManualClock(time.Unix(1_700_000_000, 0))
	store := memory.NewStore(memory.WithClock(clock.Now))
	engine, err := settle.New(ports.Static(store))
	require.NoError(t, err)
	return &fixture{engine: engine, clock: clock, store: store}
}

// advancing sleeps by moving the fixture clock instead of the wall clock.
func (f *fixture) advancing() runner.Option {
	return runner.WithSleep(func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.clock.Advance(d)
		return nil
	})
}

func settings(key string, wait int) domain.Settings {
	return domain.Settings{ConversationKey: key, MessageField: "text", WaitTimeSeconds: wait}
}

func TestPoller_SettlesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := runner.NewPoller(f.engine, f.advancing())

	act := domain.NewActivation(settings("u1", 3), domain.Envelope{"text": "hello"})
	first, err := p.Process(ctx, act)
	require.NoError(t, err)
	require.Equal(t, domain.Wait, first.Classification)

	final, err := p.Settle(ctx, act, first)
	require.NoError(t, err)
	assert.Equal(t, domain.Ready, final.Classification)
	assert.Equal(t, "hello", final.Payload["consolidatedMessage"])
	assert.False(t, final.Payload.IsPoll())
	assert.Empty(t, f.store.Keys())
}

func TestPoller_SettledOutcomeIsReturned(t *testing.T) {
	f := newFixture(t)
	p := runner.NewPoller(f.engine, f.advancing())

	out := &domain.Outcome{Classification: domain.Discarded, Reason: domain.ReasonEmptyPayload}
	got, err := p.Settle(context.Background(), domain.Activation{}, out)
	require.NoError(t, err)
	assert.Same(t, out, got)
}

func TestPoller_MaxPollsWarns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	p := runner.NewPoller(f.engine, f.advancing(), runner.WithMaxPolls(2), runner.WithLogger(logger))

	act := domain.NewActivation(settings("u1", 60), domain.Envelope{"text": "hello"})
	first, err := p.Process(ctx, act)
	require.NoError(t, err)

	out, err := p.Settle(ctx, act, first)
	require.ErrorIs(t, err, runner.ErrNotSettled)
	assert.Equal(t, domain.Wait, out.Classification)
	assert.Contains(t, logs.String(), "conversation did not settle")
	assert.Contains(t, logs.String(), `"polls":2`)

	// The buffer is left for a later poll.
	msgs, err := f.store.ListAll(ctx, "msg:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, msgs)
}

func TestPoller_RoutedFailureStops(t *testing.T) {
	f := newFixture(t)
	p := runner.NewPoller(f.engine, f.advancing())
	boom := domain.StoreError("list_append", "u1", errors.New("down"))

	out := &domain.Outcome{Classification: domain.Wait, Key: "u1", Failure: boom}
	got, err := p.Settle(context.Background(), domain.Activation{}, out)
	assert.ErrorIs(t, err, domain.ErrStoreFailure)
	assert.Same(t, out, got)
}

func TestPoller_ContextCanceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	p := runner.NewPoller(f.engine, f.advancing())

	act := domain.NewActivation(settings("u1", 5), domain.Envelope{"text": "hello"})
	first, err := p.Process(ctx, act)
	require.NoError(t, err)

	cancel()
	_, err = p.Settle(ctx, act, first)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoller_GuardUsesEngineDefaults(t *testing.T) {
	clock := memory.NewManualClock(time.Unix(0, 0))
	store := memory.NewStore(memory.WithClock(clock.Now))
	engine, err := settle.New(ports.Static(store), settle.WithDefaults(func() domain.Settings {
		return domain.Settings{ConversationKeyField: "chatId", MessageField: "text"}
	}))
	require.NoError(t, err)

	locker := &recordingLocker{}
	guard := session.NewGuard(session.WithLocker(locker))
	p := runner.NewPoller(engine, runner.WithGuard(guard))

	out, err := p.Process(context.Background(), domain.NewActivation(domain.Settings{}, domain.Envelope{"chatId": "c-9", "text": "hi"}))
	require.NoError(t, err)
	assert.Equal(t, domain.Wait, out.Classification)
	assert.Equal(t, []string{"c-9"}, locker.keys)
	assert.Zero(t, guard.Active())
}

type recordingLocker struct {
	keys []string
}

func (l *recordingLocker) Lock(_ context.Context, key string, _ time.Duration) (ports.UnlockFunc, error) {
	l.keys = append(l.keys, key)
	return func(context.Context) error { return nil }, nil
}
