package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sincerelyyyash/a8n-v2/core"
)

func newTestQueue(t *testing.T) (*RedisExecutionQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	config := DefaultRedisQueueConfig()
	config.Logger = &core.NoOpLogger{}
	return NewRedisExecutionQueue(client, &config), mr
}

func TestQueueEnqueueDequeueRoundTrip(t *testing.T) {
	queue, mr := newTestQueue(t)
	ctx := context.Background()

	job := &ExecutionJob{
		ExecutionID:   "exec-rt",
		UserID:        1,
		ExecutionType: ExecutionTypeWorkflow,
		WorkflowID:    42,
		Nodes:         []Node{testNode(1, "email", nil)},
		Connections:   []Connection{},
	}

	require.NoError(t, queue.Enqueue(ctx, job))

	// Payload is stored under a per-execution key with a TTL.
	payloadKey := "execution_queue:exec-rt"
	assert.True(t, mr.Exists(payloadKey))
	assert.Greater(t, mr.TTL(payloadKey), time.Duration(0))

	got, err := queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "exec-rt", got.ExecutionID)
	assert.Equal(t, ExecutionTypeWorkflow, got.ExecutionType)
	assert.Equal(t, 42, got.WorkflowID)

	// Payload key is consumed on dequeue.
	assert.False(t, mr.Exists(payloadKey))
}

func TestQueueDequeueIsFIFO(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, queue.Enqueue(ctx, &ExecutionJob{
			ExecutionID:   fmt.Sprintf("exec-%d", i),
			ExecutionType: ExecutionTypeNode,
		}))
	}

	for i := 1; i <= 3; i++ {
		job, err := queue.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, fmt.Sprintf("exec-%d", i), job.ExecutionID)
	}
}

func TestQueueDequeueExpiredPayloadIsNoOp(t *testing.T) {
	queue, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, &ExecutionJob{
		ExecutionID:   "exec-gone",
		ExecutionType: ExecutionTypeWorkflow,
	}))

	// Simulate the payload TTL firing between push and pop.
	mr.Del("execution_queue:exec-gone")

	job, err := queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueueEnqueueValidation(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	assert.Error(t, queue.Enqueue(ctx, nil))
	assert.Error(t, queue.Enqueue(ctx, &ExecutionJob{}))
}

func TestQueueRequeueOverwritesPayload(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	job := &ExecutionJob{ExecutionID: "exec-retry", ExecutionType: ExecutionTypeWorkflow}
	require.NoError(t, queue.Enqueue(ctx, job))

	job.RetryCount = 1
	require.NoError(t, queue.Enqueue(ctx, job))

	length, err := queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)

	// Both deliveries read the latest payload; the retry count survives.
	first, err := queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, first.RetryCount)
}

func TestQueueEnqueueUnavailableRedis(t *testing.T) {
	queue, mr := newTestQueue(t)
	mr.Close()

	err := queue.Enqueue(context.Background(), &ExecutionJob{ExecutionID: "exec-down"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrQueueUnavailable)
}
