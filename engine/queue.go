// Redis-backed execution queue.
//
// Producers LPUSH execution ids onto an ordered list and store the job
// payload at a per-execution key with a bounded TTL; consumers BRPOP the id
// and then GET+DEL the payload. The two producer writes are not
// transactional, so a popped id whose payload has expired is treated as a
// no-op delivery.

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sincerelyyyash/a8n-v2/core"
)

// ExecutionQueue is the queue contract used by the worker pool and the
// intake paths.
type ExecutionQueue interface {
	Enqueue(ctx context.Context, job *ExecutionJob) error
	Dequeue(ctx context.Context, timeout time.Duration) (*ExecutionJob, error)
}

// RedisExecutionQueue implements ExecutionQueue on a Redis list.
type RedisExecutionQueue struct {
	client *redis.Client
	config RedisQueueConfig
	logger core.Logger
}

// RedisQueueConfig configures the Redis execution queue.
type RedisQueueConfig struct {
	// QueueKey is the Redis key for the execution id list
	// Default: "execution_queue"
	QueueKey string `json:"queue_key"`

	// PayloadTTL bounds how long an enqueued payload stays retrievable
	// Default: 1h
	PayloadTTL time.Duration `json:"payload_ttl"`

	// Logger is an optional logger for queue operations
	Logger core.Logger `json:"-"`
}

// DefaultRedisQueueConfig returns default configuration.
func DefaultRedisQueueConfig() RedisQueueConfig {
	return RedisQueueConfig{
		QueueKey:   "execution_queue",
		PayloadTTL: time.Hour,
	}
}

// NewRedisExecutionQueue creates a queue client. The Redis client should
// already be connected.
func NewRedisExecutionQueue(client *redis.Client, config *RedisQueueConfig) *RedisExecutionQueue {
	if config == nil {
		defaultConfig := DefaultRedisQueueConfig()
		config = &defaultConfig
	}
	if config.QueueKey == "" {
		config.QueueKey = "execution_queue"
	}
	if config.PayloadTTL <= 0 {
		config.PayloadTTL = time.Hour
	}

	q := &RedisExecutionQueue{
		client: client,
		config: *config,
		logger: config.Logger,
	}

	if q.logger != nil {
		if cal, ok := q.logger.(core.ComponentAwareLogger); ok {
			q.logger = cal.WithComponent("engine/queue")
		}
	}

	return q
}

func (q *RedisExecutionQueue) payloadKey(executionID string) string {
	return fmt.Sprintf("%s:%s", q.config.QueueKey, executionID)
}

// Enqueue serializes the job, stores the payload with a fresh TTL and
// pushes the execution id onto the queue list. Requeues reuse the same
// execution id; the payload key is simply overwritten.
func (q *RedisExecutionQueue) Enqueue(ctx context.Context, job *ExecutionJob) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}
	if job.ExecutionID == "" {
		return fmt.Errorf("job execution id cannot be empty")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to serialize execution job: %w", err)
	}

	if err := q.client.Set(ctx, q.payloadKey(job.ExecutionID), data, q.config.PayloadTTL).Err(); err != nil {
		return fmt.Errorf("failed to store execution payload: %w", core.ErrQueueUnavailable)
	}

	if err := q.client.LPush(ctx, q.config.QueueKey, job.ExecutionID).Err(); err != nil {
		return fmt.Errorf("failed to push execution id: %w", core.ErrQueueUnavailable)
	}

	if q.logger != nil {
		q.logger.InfoWithContext(ctx, "Execution enqueued", map[string]interface{}{
			"execution_id":   job.ExecutionID,
			"execution_type": job.ExecutionType,
			"retry_count":    job.RetryCount,
			"queue_key":      q.config.QueueKey,
		})
	}

	return nil
}

// Dequeue blocks up to timeout for the next execution id, then fetches and
// deletes its payload. Returns (nil, nil) on timeout and on a popped id
// whose payload is missing or expired.
func (q *RedisExecutionQueue) Dequeue(ctx context.Context, timeout time.Duration) (*ExecutionJob, error) {
	result, err := q.client.BRPop(ctx, timeout, q.config.QueueKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to pop execution id: %w", core.ErrQueueUnavailable)
	}

	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected BRPOP result format")
	}
	executionID := result[1]

	key := q.payloadKey(executionID)
	data, err := q.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			// Payload expired between push and pop; at-least-once
			// delivery makes this a no-op.
			if q.logger != nil {
				q.logger.WarnWithContext(ctx, "Execution payload missing or expired", map[string]interface{}{
					"execution_id": executionID,
				})
			}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch execution payload: %w", core.ErrQueueUnavailable)
	}

	if err := q.client.Del(ctx, key).Err(); err != nil && q.logger != nil {
		q.logger.WarnWithContext(ctx, "Failed to delete execution payload", map[string]interface{}{
			"execution_id": executionID,
			"error":        err.Error(),
		})
	}

	var job ExecutionJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to deserialize execution job %s: %w", executionID, err)
	}

	if q.logger != nil {
		q.logger.InfoWithContext(ctx, "Execution dequeued", map[string]interface{}{
			"execution_id":   job.ExecutionID,
			"execution_type": job.ExecutionType,
			"retry_count":    job.RetryCount,
		})
	}

	return &job, nil
}

// Length returns the number of queued execution ids, for monitoring.
func (q *RedisExecutionQueue) Length(ctx context.Context) (int64, error) {
	length, err := q.client.LLen(ctx, q.config.QueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return length, nil
}

// Compile-time interface compliance check
var _ ExecutionQueue = (*RedisExecutionQueue)(nil)
