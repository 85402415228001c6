package core

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries the environment-driven settings shared by the worker and
// intake binaries. Values resolve in priority order: explicit field >
// environment variable > default.
type Config struct {
	// RedisURL is the queue/status store endpoint (REDIS_URL)
	RedisURL string

	// BackendBaseURL is the orchestrator base URL for status callbacks
	// (BACKEND_BASE_URL)
	BackendBaseURL string

	// EngineStatusSecret authenticates status callbacks in both directions
	// (ENGINE_STATUS_SECRET). Required in production.
	EngineStatusSecret string

	// SMTPPort is the implicit-TLS SMTP port used by the email handler
	// (SMTP_PORT)
	SMTPPort int

	// OpenAIAPIKey and OpenAIBaseURL configure the ai_agent handler
	// (OPENAI_API_KEY, OPENAI_BASE_URL)
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// WorkerCount is the number of concurrent worker loops (A8N_WORKER_COUNT)
	WorkerCount int

	// DequeueTimeout is the blocking pop timeout (A8N_DEQUEUE_TIMEOUT)
	DequeueTimeout time.Duration

	// HTTPAddr is the intake listen address (A8N_HTTP_ADDR)
	HTTPAddr string
}

// LoadConfig reads configuration from the environment, applying defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:           getEnv("REDIS_URL", "redis://localhost"),
		BackendBaseURL:     getEnv("BACKEND_BASE_URL", "http://localhost:8000"),
		EngineStatusSecret: os.Getenv("ENGINE_STATUS_SECRET"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		HTTPAddr:           getEnv("A8N_HTTP_ADDR", ":8080"),
		SMTPPort:           465,
		WorkerCount:        1,
		DequeueTimeout:     time.Second,
	}

	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SMTP_PORT %q is not a number: %w", v, ErrInvalidConfiguration)
		}
		cfg.SMTPPort = port
	}

	if v := os.Getenv("A8N_WORKER_COUNT"); v != "" {
		count, err := strconv.Atoi(v)
		if err != nil || count < 1 {
			return nil, fmt.Errorf("A8N_WORKER_COUNT %q is not a positive number: %w", v, ErrInvalidConfiguration)
		}
		cfg.WorkerCount = count
	}

	if v := os.Getenv("A8N_DEQUEUE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("A8N_DEQUEUE_TIMEOUT %q is not a duration: %w", v, ErrInvalidConfiguration)
		}
		cfg.DequeueTimeout = d
	}

	return cfg, nil
}

// RequireStatusSecret fails when ENGINE_STATUS_SECRET is unset. The intake
// binary calls this at startup so an unauthenticated status endpoint never
// reaches production.
func (c *Config) RequireStatusSecret() error {
	if c.EngineStatusSecret == "" {
		return fmt.Errorf("ENGINE_STATUS_SECRET must be set: %w", ErrMissingConfiguration)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
