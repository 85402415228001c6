package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics are emitted through the global otel meter. Without a configured
// meter provider these are no-ops, so components emit unconditionally.
var (
	metricsOnce sync.Once

	executionsStarted   metric.Int64Counter
	executionsCompleted metric.Int64Counter
	executionsFailed    metric.Int64Counter
	executionsRequeued  metric.Int64Counter
	nodeDuration        metric.Float64Histogram
)

func initMetrics() {
	meter := otel.Meter("github.com/sincerelyyyash/a8n-v2/engine")

	executionsStarted, _ = meter.Int64Counter("a8n.executions.started",
		metric.WithDescription("Executions that entered processing"))
	executionsCompleted, _ = meter.Int64Counter("a8n.executions.completed",
		metric.WithDescription("Executions that completed successfully"))
	executionsFailed, _ = meter.Int64Counter("a8n.executions.failed",
		metric.WithDescription("Executions that failed terminally"))
	executionsRequeued, _ = meter.Int64Counter("a8n.executions.requeued",
		metric.WithDescription("Executions requeued for retry"))
	nodeDuration, _ = meter.Float64Histogram("a8n.node.duration_ms",
		metric.WithDescription("Node handler execution time"),
		metric.WithUnit("ms"))
}

// EmitExecutionStarted records an execution entering processing.
func EmitExecutionStarted(ctx context.Context, executionType string) {
	metricsOnce.Do(initMetrics)
	executionsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("execution_type", executionType)))
}

// EmitExecutionCompleted records a successful terminal transition.
func EmitExecutionCompleted(ctx context.Context, executionType string) {
	metricsOnce.Do(initMetrics)
	executionsCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("execution_type", executionType)))
}

// EmitExecutionFailed records a failed terminal transition.
func EmitExecutionFailed(ctx context.Context, executionType string) {
	metricsOnce.Do(initMetrics)
	executionsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("execution_type", executionType)))
}

// EmitExecutionRequeued records a retry requeue.
func EmitExecutionRequeued(ctx context.Context, executionType string, retryCount int) {
	metricsOnce.Do(initMetrics)
	executionsRequeued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("execution_type", executionType),
		attribute.Int("retry_count", retryCount)))
}

// RegisterQueueDepthGauge exposes the queue length as an observable gauge,
// sampled on collection.
func RegisterQueueDepthGauge(queue *RedisExecutionQueue) error {
	meter := otel.Meter("github.com/sincerelyyyash/a8n-v2/engine")
	_, err := meter.Int64ObservableGauge("a8n.queue.depth",
		metric.WithDescription("Queued execution ids awaiting a worker"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			length, err := queue.Length(ctx)
			if err != nil {
				return err
			}
			o.Observe(length)
			return nil
		}))
	return err
}

// EmitNodeExecuted records one node handler run.
func EmitNodeExecuted(ctx context.Context, nodeType string, duration time.Duration, success bool) {
	metricsOnce.Do(initMetrics)
	nodeDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("node_type", nodeType),
		attribute.Bool("success", success)))
}
