package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/settle/pkg/adapters/redis"
	"github.com/aretw0/settle/pkg/ports"
	"github.com/aretw0/settle/pkg/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_SerializesSameKey(t *testing.T) {
	guard := session.NewGuard()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := guard.Do(ctx, "u1", func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, guard.Active())
}

func TestGuard_DifferentKeysRunInParallel(t *testing.T) {
	guard := session.NewGuard()
	ctx := context.Background()

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = guard.Do(ctx, "u1", func(context.Context) error {
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding

	ran := false
	require.NoError(t, guard.Do(ctx, "u2", func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	close(done)
}

func TestGuard_NoLeak(t *testing.T) {
	guard := session.NewGuard()
	ctx := context.Background()

	// 1. Touch many keys
	for i := 0; i < 10000; i++ {
		_ = guard.Do(ctx, fmt.Sprintf("conv-%d", i), func(context.Context) error { return nil })
	}

	// 2. Every entry must be released
	assert.Zero(t, guard.Active())
}

func TestGuard_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := session.NewGuard().Do(context.Background(), "u1", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestGuard_DistributedLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	guard := session.NewGuard(
		session.WithLocker(redis.NewLocker(client, "settle:")),
		session.WithLockTTL(5*time.Second),
	)

	err := guard.Do(context.Background(), "u1", func(context.Context) error {
		assert.True(t, mr.Exists("settle:lock:u1"))
		ttl := mr.TTL("settle:lock:u1")
		assert.Equal(t, 5*time.Second, ttl)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("settle:lock:u1"))
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string, time.Duration) (ports.UnlockFunc, error) {
	return nil, errors.New("lock service down")
}

func TestGuard_LockFailureSkipsFn(t *testing.T) {
	guard := session.NewGuard(session.WithLocker(failingLocker{}))

	called := false
	err := guard.Do(context.Background(), "u1", func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock service down")
	assert.False(t, called)
	assert.Zero(t, guard.Active())
}
