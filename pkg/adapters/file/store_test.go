package file_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/settle/pkg/adapters/file"
	"github.com/aretw0/settle/pkg/adapters/memory"
	"github.com/aretw0/settle/pkg/ports"
)

func TestFileStore_Contract(t *testing.T) {
	clock := memory.NewManualClock(time.Unix(1_700_000_000, 0))
	store := file.New(t.TempDir(), file.WithClock(clock.Now))
	ports.RunConversationStoreContract(t, store, clock.Advance)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := file.New(dir)
	require.NoError(t, first.ListAppend(ctx, "msg:u1", "hello"))
	require.NoError(t, first.ListAppend(ctx, "msg:u1", "world"))

	second := file.New(dir)
	got, err := second.ListAll(ctx, "msg:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world"}, got)
}

func TestFileStore_KeysSkipsExpired(t *testing.T) {
	ctx := context.Background()
	clock := memory.NewManualClock(time.Unix(0, 0))
	store := file.New(t.TempDir(), file.WithClock(clock.Now))

	require.NoError(t, store.ListAppend(ctx, "msg:u1", "a"))
	require.NoError(t, store.SetWithExpiry(ctx, "timer:u1", "1", time.Second))

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"msg:u1", "timer:u1"}, keys)

	clock.Advance(time.Second)
	keys, err = store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"msg:u1"}, keys)
}

func TestFileStore_DrainRemovesFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := file.New(dir)

	require.NoError(t, store.ListAppend(ctx, "msg:u1", "a"))
	got, err := store.Drain(ctx, "msg:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no key files or temp files remain")
}

func TestFileStore_CorruptFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := file.New(dir)
	require.NoError(t, store.ListAppend(ctx, "msg:u1", "a"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.WriteFile(dir+"/"+entries[0].Name(), []byte("{not json"), 0o600))

	_, err = store.ListAll(ctx, "msg:u1")
	assert.Error(t, err)
}

func TestFileStore_AbsentDirectory(t *testing.T) {
	store := file.New(t.TempDir() + "/missing")
	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	ok, err := store.Exists(context.Background(), "timer:u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_LongKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := file.New(dir)
	long := "msg:" + strings.Repeat("conversation-", 30)

	// 1. Round trip through a hashed file name
	require.NoError(t, store.ListAppend(ctx, long, "a"))
	require.NoError(t, store.ListAppend(ctx, long, "b"))
	require.NoError(t, store.ListAppend(ctx, "msg:u1", "x"))

	got, err := store.ListAll(ctx, long)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.LessOrEqual(t, len(e.Name()), 255, e.Name())
	}

	// 2. Keys reports the original key, not the file name
	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{long, "msg:u1"}, keys)

	// 3. Drain removes the hashed file
	got, err = store.Drain(ctx, long)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
	keys, err = store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"msg:u1"}, keys)
}
