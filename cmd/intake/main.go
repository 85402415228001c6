// Command intake runs the HTTP front door: webhook receipt with HMAC
// verification, manual execution enqueue, status polling, and the engine
// status callback endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sincerelyyyash/a8n-v2/core"
	"github.com/sincerelyyyash/a8n-v2/engine"
	"github.com/sincerelyyyash/a8n-v2/intake"
	"github.com/sincerelyyyash/a8n-v2/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "intake: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := core.NewProductionLogger("a8n-intake")

	cfg, err := core.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.RequireStatusSecret(); err != nil {
		return err
	}

	definitionsFile := os.Getenv("A8N_DEFINITIONS_FILE")
	if definitionsFile == "" {
		definitionsFile = "definitions.yaml"
	}
	store, err := intake.LoadDefinitions(definitionsFile)
	if err != nil {
		return fmt.Errorf("failed to load definitions: %w", err)
	}

	shutdownTelemetry, err := telemetry.Init(ctx, "a8n-intake")
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("Telemetry shutdown failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	client, err := core.NewRedisClient(cfg.RedisURL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer client.Close()

	queueConfig := engine.DefaultRedisQueueConfig()
	queueConfig.Logger = logger
	queue := engine.NewRedisExecutionQueue(client, &queueConfig)

	storeConfig := engine.DefaultRedisStatusConfig()
	storeConfig.Logger = logger
	status := engine.NewRedisStatusStore(client, &storeConfig)

	handler := intake.NewServerHandler(intake.ServerConfig{
		Registry: store,
		Source:   store,
		Recorder: store,
		Queue:    queue,
		Status:   status,
		Secret:   cfg.EngineStatusSecret,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Intake server listening", map[string]interface{}{
			"addr":             cfg.HTTPAddr,
			"definitions_file": definitionsFile,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
