package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient connects to the shared Redis instance backing the
// execution queue and status store. The URL is parsed with redis.ParseURL,
// so redis:// and rediss:// forms with auth and DB selection all work.
// The connection is verified with a ping before the client is returned.
func NewRedisClient(redisURL string, logger Logger) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", ErrInvalidConfiguration)
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", ErrInvalidConfiguration)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if logger != nil {
			logger.Error("Failed to connect to Redis", map[string]interface{}{
				"error":     err.Error(),
				"redis_url": redisURL,
			})
		}
		return nil, fmt.Errorf("failed to connect to Redis: %w", ErrConnectionFailed)
	}

	if logger != nil {
		logger.Info("Redis client connected", map[string]interface{}{
			"db": opt.DB,
		})
	}

	return client, nil
}
