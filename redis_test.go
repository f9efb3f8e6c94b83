package admission

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, "test:analyze"), server
}

func TestRedisStore_FixedWindowScenario(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisStore(t)

	for i := 0; i < 5; i++ {
		dec := store.CheckAndRecord(ctx, "1.2.3.4", 5, time.Minute, at(0))
		assert.True(t, dec.Allowed, "request %d should be allowed", i+1)
	}

	dec := store.CheckAndRecord(ctx, "1.2.3.4", 5, time.Minute, at(1000))
	assert.Equal(t, Reject(59), dec)

	dec = store.CheckAndRecord(ctx, "1.2.3.4", 5, time.Minute, at(61000))
	assert.Equal(t, Allow(), dec)

	st, ok := store.Peek(ctx, "1.2.3.4")
	require.True(t, ok)
	assert.Equal(t, 1, st.Count)
	assert.True(t, st.WindowResetAt.Equal(at(121000)), "reset at %s", st.WindowResetAt)
}

func TestRedisStore_RejectionDoesNotIncrement(t *testing.T) {
	ctx := context.Background()
	store, server := setupRedisStore(t)

	store.CheckAndRecord(ctx, "10.0.0.1", 1, time.Minute, at(0))
	for i := 0; i < 3; i++ {
		assert.False(t, store.CheckAndRecord(ctx, "10.0.0.1", 1, time.Minute, at(10)).Allowed)
	}

	assert.Equal(t, "1", server.HGet("test:analyze:10.0.0.1", "count"))
}

func TestRedisStore_DistinctIdentities(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisStore(t)

	store.CheckAndRecord(ctx, "1.2.3.4", 1, time.Minute, at(0))
	assert.False(t, store.CheckAndRecord(ctx, "1.2.3.4", 1, time.Minute, at(0)).Allowed)
	assert.True(t, store.CheckAndRecord(ctx, "5.6.7.8", 1, time.Minute, at(0)).Allowed)
}

func TestRedisStore_KeyExpires(t *testing.T) {
	ctx := context.Background()
	store, server := setupRedisStore(t)

	store.CheckAndRecord(ctx, "1.2.3.4", 1, time.Minute, at(0))
	assert.True(t, server.Exists("test:analyze:1.2.3.4"))

	server.FastForward(2*time.Minute + time.Second)
	assert.False(t, server.Exists("test:analyze:1.2.3.4"))

	_, ok := store.Peek(ctx, "1.2.3.4")
	assert.False(t, ok)
}

func TestRedisStore_FailsOpen(t *testing.T) {
	store, server := setupRedisStore(t)
	server.Close()

	dec := store.CheckAndRecord(context.Background(), "1.2.3.4", 1, time.Minute, at(0))
	assert.True(t, dec.Allowed)
}
