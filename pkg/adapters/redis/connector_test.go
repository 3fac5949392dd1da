package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/settle/pkg/adapters/redis"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Options(t *testing.T) {
	opts := redis.Config{
		Host:     "cache.internal",
		Port:     6380,
		TLS:      true,
		DB:       3,
		Username: "svc",
		Password: "secret",
	}.Options()

	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, "svc", opts.Username)
	assert.Equal(t, "secret", opts.Password)
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, "cache.internal", opts.TLSConfig.ServerName)

	plain := redis.Config{}.Options()
	assert.Equal(t, "localhost:6379", plain.Addr)
	assert.Nil(t, plain.TLSConfig)
}

func TestConnector_PerActivation(t *testing.T) {
	mr := miniredis.RunT(t)
	connector := redis.NewConnectorFromOptions(&backend.Options{Addr: mr.Addr()})
	ctx := context.Background()

	conn, err := connector.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.ListAppend(ctx, "msg:u1", "hello"))
	_, isDrainer := conn.(ports.Drainer)
	assert.True(t, isDrainer)

	require.NoError(t, conn.Close())

	// The handle's client is gone after release.
	_, err = conn.ListAll(ctx, "msg:u1")
	assert.ErrorIs(t, err, backend.ErrClosed)

	// A fresh activation sees the persisted list.
	conn2, err := connector.Connect(ctx)
	require.NoError(t, err)
	defer conn2.Close()
	got, err := conn2.ListAll(ctx, "msg:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, got)
}

func TestConnector_UnreachableIsConfigurationError(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	connector := redis.NewConnectorFromOptions(&backend.Options{
		Addr:        addr,
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})

	_, err := connector.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestConnector_Pooled(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	connector := redis.NewPooledConnector(client)
	ctx := context.Background()

	conn, err := connector.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// Shared client survives handle release.
	assert.NoError(t, client.Ping(ctx).Err())
	assert.NoError(t, connector.Close())
}
