// Command worker runs the execution engine: it drains the Redis execution
// queue, runs workflow and node jobs through the DAG scheduler, and reports
// status transitions to the orchestrator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sincerelyyyash/a8n-v2/ai"
	"github.com/sincerelyyyash/a8n-v2/core"
	"github.com/sincerelyyyash/a8n-v2/engine"
	"github.com/sincerelyyyash/a8n-v2/handlers"
	"github.com/sincerelyyyash/a8n-v2/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := core.NewProductionLogger("a8n-worker")

	cfg, err := core.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	shutdownTelemetry, err := telemetry.Init(ctx, "a8n-worker")
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
	if err := engine.RegisterQueueDepthGauge(queue); err != nil {
		logger.Warn("Failed to register queue depth gauge", map[string]interface{}{
			"error": err.Error(),
		})
	}

	storeConfig := engine.DefaultRedisStatusConfig()
	storeConfig.Logger = logger
	store := engine.NewRedisStatusStore(client, &storeConfig)

	reporter := engine.NewHTTPStatusReporter(cfg.BackendBaseURL, cfg.EngineStatusSecret,
		engine.WithReporterLogger(logger))

	registry := engine.NewHandlerRegistry(logger)
	if err := registerHandlers(registry, cfg, logger); err != nil {
		return err
	}

	scheduler := engine.NewDAGScheduler(registry, logger)

	workerConfig := engine.DefaultWorkerConfig()
	workerConfig.WorkerCount = cfg.WorkerCount
	workerConfig.DequeueTimeout = cfg.DequeueTimeout
	workerConfig.Logger = logger

	pool := engine.NewWorkerPool(queue, store, reporter, scheduler, &workerConfig)
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	logger.Info("Worker pool started", map[string]interface{}{
		"worker_count": cfg.WorkerCount,
		"redis_url":    cfg.RedisURL,
	})

	<-ctx.Done()
	logger.Info("Shutdown signal received", nil)

	return pool.Stop(context.Background())
}

// registerHandlers wires every supported node type. The webhook type is a
// no-op at execution time; the intake server already consumed the event.
func registerHandlers(registry *engine.HandlerRegistry, cfg *core.Config, logger core.Logger) error {
	aiClient := ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, logger)

	toRegister := map[string]engine.NodeHandler{
		"ai_agent": handlers.NewAIAgentHandler(aiClient, logger),
		"email":    handlers.NewEmailHandler(cfg.SMTPPort, logger),
		"telegram": handlers.NewTelegramHandler(logger),
		"webhook": engine.NodeHandlerFunc(func(ctx context.Context, node *engine.Node, creds map[string]engine.Credential) (interface{}, error) {
			return map[string]interface{}{"status": "triggered"}, nil
		}),
	}

	for nodeType, handler := range toRegister {
		if err := registry.Register(nodeType, handler); err != nil {
			return fmt.Errorf("failed to register %s handler: %w", nodeType, err)
		}
	}
	return nil
}
