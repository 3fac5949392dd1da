package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ClockAdvancer moves the store's notion of time forward. Adapters backed by a
// real server without a controllable clock pass nil and the expiry checks are skipped.
type ClockAdvancer func(d time.Duration)

// RunConversationStoreContract runs a suite of tests to verify that a
// ConversationStore implementation adheres to the interface contract.
func RunConversationStoreContract(t *testing.T, store ConversationStore, advance ClockAdvancer) {
	ctx := context.Background()
	prefix := fmt.Sprintf("contract-%d", time.Now().UnixNano())

	t.Run("ListAll on absent key is empty", func(t *testing.T) {
		got, err := store.ListAll(ctx, prefix+":absent")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ListAppend preserves order", func(t *testing.T) {
		key := prefix + ":order"
		for _, v := range []string{"hello", "world", "  spaced  ", ""} {
			require.NoError(t, store.ListAppend(ctx, key, v))
		}
		defer func() { _ = store.Delete(ctx, key) }()

		got, err := store.ListAll(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []string{"hello", "world", "  spaced  ", ""}, got)
	})

	t.Run("Delete clears and is idempotent", func(t *testing.T) {
		key := prefix + ":delete"
		require.NoError(t, store.ListAppend(ctx, key, "x"))

		require.NoError(t, store.Delete(ctx, key))
		require.NoError(t, store.Delete(ctx, key), "deleting an absent key must not fail")

		got, err := store.ListAll(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("SetWithExpiry makes key exist", func(t *testing.T) {
		key := prefix + ":timer"
		ok, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.SetWithExpiry(ctx, key, "1", 5*time.Second))
		defer func() { _ = store.Delete(ctx, key) }()

		ok, err = store.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Keys are independent", func(t *testing.T) {
		a, b := prefix+":a", prefix+":b"
		require.NoError(t, store.ListAppend(ctx, a, "only-a"))
		defer func() { _ = store.Delete(ctx, a) }()

		got, err := store.ListAll(ctx, b)
		require.NoError(t, err)
		assert.Empty(t, got)

		require.NoError(t, store.Delete(ctx, b))
		got, err = store.ListAll(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, []string{"only-a"}, got)
	})

	if d, ok := store.(Drainer); ok {
		t.Run("Drain reads and clears", func(t *testing.T) {
			key := prefix + ":drain"
			require.NoError(t, store.ListAppend(ctx, key, "one"))
			require.NoError(t, store.ListAppend(ctx, key, "two"))

			got, err := d.Drain(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, []string{"one", "two"}, got)

			again, err := d.Drain(ctx, key)
			require.NoError(t, err)
			assert.Empty(t, again, "a second drain must observe an empty list")
		})
	}

	if advance == nil {
		return
	}

	t.Run("Expiry elapses", func(t *testing.T) {
		key := prefix + ":expiry"
		require.NoError(t, store.SetWithExpiry(ctx, key, "1", 2*time.Second))

		advance(1 * time.Second)
		ok, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "key must exist inside the window")

		advance(2 * time.Second)
		ok, err = store.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "key must be gone after the window")
	})

	t.Run("SetWithExpiry restarts the window", func(t *testing.T) {
		key := prefix + ":restart"
		require.NoError(t, store.SetWithExpiry(ctx, key, "1", 3*time.Second))
		advance(2 * time.Second)
		require.NoError(t, store.SetWithExpiry(ctx, key, "1", 3*time.Second))
		advance(2 * time.Second)

		ok, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "refreshed key must outlive the original expiry")

		advance(2 * time.Second)
		ok, err = store.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
