//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newRedisClient(t *testing.T) *RedisClient {
	t.Helper()
	ctx := context.Background()

	container, err := redis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewRedisClient(RedisConfig{Addr: host + ":" + port.Port(), PoolSize: 5})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisClient_Integration(t *testing.T) {
	ctx := context.Background()
	c := newRedisClient(t)

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	release, err := c.Acquire(ctx, ImportLockKey("e1"), time.Minute)
	require.NoError(t, err)
	_, err = c.Acquire(ctx, ImportLockKey("e1"), time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)
	require.NoError(t, release(ctx))
	again, err := c.Acquire(ctx, ImportLockKey("e1"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))

	ch, unsubscribe, err := c.Subscribe(ctx, "program.imports")
	require.NoError(t, err)
	defer unsubscribe()
	require.NoError(t, c.Publish(ctx, "program.imports", map[string]string{"status": "completed"}))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"status":"completed"}`, string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
