package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sincerelyyyash/a8n-v2/core"
)

// StatusStore keeps ephemeral, TTL-bounded execution status snapshots for
// polling clients. It is advisory; the orchestrator's durable record,
// updated through the callback reporter, is authoritative.
type StatusStore interface {
	Put(ctx context.Context, executionID, status string, result interface{}) error
	Get(ctx context.Context, executionID string) (*StatusSnapshot, error)
}

// RedisStatusStore implements StatusStore on per-execution Redis keys.
type RedisStatusStore struct {
	client *redis.Client
	config RedisStatusConfig
	logger core.Logger
}

// RedisStatusConfig configures the status store.
type RedisStatusConfig struct {
	// KeyPrefix is the prefix for status keys
	// Default: "execution_status"
	KeyPrefix string `json:"key_prefix"`

	// TTL bounds snapshot lifetime
	// Default: 1h
	TTL time.Duration `json:"ttl"`

	// Logger is an optional logger
	Logger core.Logger `json:"-"`
}

// DefaultRedisStatusConfig returns default configuration.
func DefaultRedisStatusConfig() RedisStatusConfig {
	return RedisStatusConfig{
		KeyPrefix: "execution_status",
		TTL:       time.Hour,
	}
}

// NewRedisStatusStore creates a status store over an existing Redis client.
func NewRedisStatusStore(client *redis.Client, config *RedisStatusConfig) *RedisStatusStore {
	if config == nil {
		defaultConfig := DefaultRedisStatusConfig()
		config = &defaultConfig
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "execution_status"
	}
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}

	s := &RedisStatusStore{
		client: client,
		config: *config,
		logger: config.Logger,
	}

	if s.logger != nil {
		if cal, ok := s.logger.(core.ComponentAwareLogger); ok {
			s.logger = cal.WithComponent("engine/status")
		}
	}

	return s
}

func (s *RedisStatusStore) key(executionID string) string {
	return fmt.Sprintf("%s:%s", s.config.KeyPrefix, executionID)
}

// Put writes a status snapshot with a fresh TTL. Consumers of the store see
// the most recent attempt's status.
func (s *RedisStatusStore) Put(ctx context.Context, executionID, status string, result interface{}) error {
	snapshot := StatusSnapshot{
		ExecutionID: executionID,
		Status:      status,
		Result:      result,
		Timestamp:   time.Now().Unix(),
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to serialize status snapshot: %w", err)
	}

	if err := s.client.Set(ctx, s.key(executionID), data, s.config.TTL).Err(); err != nil {
		if s.logger != nil {
			s.logger.ErrorWithContext(ctx, "Failed to write status snapshot", map[string]interface{}{
				"execution_id": executionID,
				"status":       status,
				"error":        err.Error(),
			})
		}
		return fmt.Errorf("failed to write status snapshot: %w", core.ErrQueueUnavailable)
	}

	if s.logger != nil {
		s.logger.DebugWithContext(ctx, "Status snapshot written", map[string]interface{}{
			"execution_id": executionID,
			"status":       status,
		})
	}

	return nil
}

// Get returns the current snapshot, or one with status "not_found" when the
// key is absent or expired.
func (s *RedisStatusStore) Get(ctx context.Context, executionID string) (*StatusSnapshot, error) {
	data, err := s.client.Get(ctx, s.key(executionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return &StatusSnapshot{Status: StatusNotFound}, nil
		}
		return nil, fmt.Errorf("failed to read status snapshot: %w", core.ErrQueueUnavailable)
	}

	var snapshot StatusSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to deserialize status snapshot: %w", err)
	}

	return &snapshot, nil
}

// Compile-time interface compliance check
var _ StatusStore = (*RedisStatusStore)(nil)
