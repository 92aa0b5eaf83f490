package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/config"
)

func TestMemoryClient_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(0)
	defer c.Close()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(0)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_EvictsWhenFull(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(2)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "soon", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "later", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "new", []byte("3"), time.Hour))

	_, err := c.Get(ctx, "soon")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "later")
	assert.NoError(t, err)
}

func TestMemoryClient_Lock(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(0)
	defer c.Close()

	release, err := c.Acquire(ctx, ImportLockKey("event-1"), time.Minute)
	require.NoError(t, err)

	_, err = c.Acquire(ctx, ImportLockKey("event-1"), time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := c.Acquire(ctx, ImportLockKey("event-2"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	again, err := c.Acquire(ctx, ImportLockKey("event-1"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestMemoryClient_StaleReleaseKeepsNewOwner(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(0)
	defer c.Close()

	stale, err := c.Acquire(ctx, "lock", -time.Second)
	require.NoError(t, err)

	fresh, err := c.Acquire(ctx, "lock", time.Minute)
	require.NoError(t, err, "expired lock can be taken over")

	require.NoError(t, stale(ctx))
	_, err = c.Acquire(ctx, "lock", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)
	require.NoError(t, fresh(ctx))
}

func TestMemoryClient_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(0)
	defer c.Close()

	ch, unsubscribe, err := c.Subscribe(ctx, "program.imports")
	require.NoError(t, err)

	require.NoError(t, c.Publish(ctx, "program.imports", map[string]int{"sessions": 3}))
	require.NoError(t, c.Publish(ctx, "other", "ignored"))

	select {
	case msg := <-ch:
		var got map[string]int
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, 3, got["sessions"])
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
	assert.NoError(t, c.Publish(ctx, "program.imports", "after"))
}

func TestNew(t *testing.T) {
	b, err := New(config.CacheConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryClient{}, b)
	require.NoError(t, b.Close())

	_, err = New(config.CacheConfig{Driver: "memcached"})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "analysis:abc", AnalysisKey("abc"))
	assert.Equal(t, "lock:import:e1", ImportLockKey("e1"))
	assert.Equal(t, "a:b:c", CacheKey("a", "b", "c"))
}
