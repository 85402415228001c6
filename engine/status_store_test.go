package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sincerelyyyash/a8n-v2/core"
)

func newTestStatusStore(t *testing.T) (*RedisStatusStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	config := DefaultRedisStatusConfig()
	config.Logger = &core.NoOpLogger{}
	return NewRedisStatusStore(client, &config), mr
}

func TestStatusStorePutGet(t *testing.T) {
	store, mr := newTestStatusStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "exec-1", StatusProcessing, nil))

	snapshot, err := store.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", snapshot.ExecutionID)
	assert.Equal(t, StatusProcessing, snapshot.Status)
	assert.NotZero(t, snapshot.Timestamp)

	assert.Greater(t, mr.TTL("execution_status:exec-1"), time.Duration(0))
}

func TestStatusStorePutOverwritesWithFreshTTL(t *testing.T) {
	store, _ := newTestStatusStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "exec-2", StatusProcessing, nil))
	require.NoError(t, store.Put(ctx, "exec-2", StatusCompleted, map[string]interface{}{"ok": true}))

	snapshot, err := store.Get(ctx, "exec-2")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snapshot.Status)
	assert.Equal(t, map[string]interface{}{"ok": true}, snapshot.Result)
}

func TestStatusStoreGetMissingReturnsNotFound(t *testing.T) {
	store, _ := newTestStatusStore(t)

	snapshot, err := store.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, snapshot.Status)
}

func TestStatusStoreGetExpiredReturnsNotFound(t *testing.T) {
	store, mr := newTestStatusStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "exec-3", StatusQueued, nil))
	mr.FastForward(2 * time.Hour)

	snapshot, err := store.Get(ctx, "exec-3")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, snapshot.Status)
}
