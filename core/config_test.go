package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"REDIS_URL", "BACKEND_BASE_URL", "SMTP_PORT", "A8N_WORKER_COUNT", "A8N_DEQUEUE_TIMEOUT", "A8N_HTTP_ADDR"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost", cfg.RedisURL)
	assert.Equal(t, "http://localhost:8000", cfg.BackendBaseURL)
	assert.Equal(t, 465, cfg.SMTPPort)
	assert.Equal(t, 1, cfg.WorkerCount)
	assert.Equal(t, time.Second, cfg.DequeueTimeout)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://redis.internal:6379/2")
	t.Setenv("BACKEND_BASE_URL", "https://api.internal")
	t.Setenv("ENGINE_STATUS_SECRET", "topsecret")
	t.Setenv("SMTP_PORT", "2465")
	t.Setenv("A8N_WORKER_COUNT", "4")
	t.Setenv("A8N_DEQUEUE_TIMEOUT", "5s")
	t.Setenv("A8N_HTTP_ADDR", ":9999")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis://redis.internal:6379/2", cfg.RedisURL)
	assert.Equal(t, "https://api.internal", cfg.BackendBaseURL)
	assert.Equal(t, "topsecret", cfg.EngineStatusSecret)
	assert.Equal(t, 2465, cfg.SMTPPort)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 5*time.Second, cfg.DequeueTimeout)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("SMTP_PORT", "not-a-port")
	_, err := LoadConfig()
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestLoadConfigRejectsNonPositiveWorkerCount(t *testing.T) {
	t.Setenv("A8N_WORKER_COUNT", "0")
	_, err := LoadConfig()
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestRequireStatusSecret(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.RequireStatusSecret(), ErrMissingConfiguration)

	cfg.EngineStatusSecret = "topsecret"
	assert.NoError(t, cfg.RequireStatusSecret())
}
