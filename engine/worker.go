// Worker pool owning the execution lifecycle:
// dequeue -> mark processing -> execute -> mark terminal, with bounded
// requeue on handler failure. Each worker goroutine processes one job at a
// time; multiple workers (and multiple processes) may share the queue, so
// delivery is at-least-once and consumers are idempotent by execution id.

package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sincerelyyyash/a8n-v2/core"
)

// WorkerPool implements the scheduler worker loop.
type WorkerPool struct {
	queue     ExecutionQueue
	store     StatusStore
	reporter  StatusReporter
	scheduler *DAGScheduler
	config    WorkerConfig
	logger    core.Logger

	// Lifecycle management
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State tracking
	running         atomic.Bool
	activeCount     atomic.Int32
	workerIDCounter atomic.Int32
}

// WorkerConfig configures the worker pool.
type WorkerConfig struct {
	// WorkerCount is the number of concurrent worker loops
	// Default: 1
	WorkerCount int `json:"worker_count"`

	// DequeueTimeout is the blocking pop timeout per iteration
	// Default: 1s
	DequeueTimeout time.Duration `json:"dequeue_timeout"`

	// ShutdownTimeout bounds the graceful stop wait
	// Default: 30s
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// JobTimeout bounds one job execution end to end
	// Default: 30m
	JobTimeout time.Duration `json:"job_timeout"`

	// LoopErrorBackoff is the sleep after a loop-level error
	// Default: 5s
	LoopErrorBackoff time.Duration `json:"loop_error_backoff"`

	// MaxRetries bounds handler-failure requeues
	// Default: 3
	MaxRetries int `json:"max_retries"`

	// Logger is an optional logger for worker operations
	Logger core.Logger `json:"-"`
}

// DefaultWorkerConfig returns default configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		WorkerCount:      1,
		DequeueTimeout:   time.Second,
		ShutdownTimeout:  30 * time.Second,
		JobTimeout:       30 * time.Minute,
		LoopErrorBackoff: 5 * time.Second,
		MaxRetries:       MaxRetries,
	}
}

// NewWorkerPool creates a worker pool.
func NewWorkerPool(queue ExecutionQueue, store StatusStore, reporter StatusReporter, scheduler *DAGScheduler, config *WorkerConfig) *WorkerPool {
	if config == nil {
		defaultConfig := DefaultWorkerConfig()
		config = &defaultConfig
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.DequeueTimeout <= 0 {
		config.DequeueTimeout = time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Minute
	}
	if config.LoopErrorBackoff <= 0 {
		config.LoopErrorBackoff = 5 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = MaxRetries
	}

	p := &WorkerPool{
		queue:     queue,
		store:     store,
		reporter:  reporter,
		scheduler: scheduler,
		config:    *config,
		logger:    config.Logger,
	}

	if p.logger != nil {
		if cal, ok := p.logger.(core.ComponentAwareLogger); ok {
			p.logger = cal.WithComponent("engine/worker")
		}
	}

	return p
}

// Start begins processing jobs. Blocks until ctx is cancelled or Stop is
// called.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.running.Swap(true) {
		return fmt.Errorf("worker pool already running")
	}

	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if p.logger != nil {
		p.logger.Info("Starting worker pool", map[string]interface{}{
			"worker_count": p.config.WorkerCount,
		})
	}

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", p.workerIDCounter.Add(1))
		p.wg.Add(1)
		go p.runWorker(workerCtx, workerID)
	}

	p.wg.Wait()
	p.running.Store(false)

	if p.logger != nil {
		p.logger.Info("Worker pool stopped", map[string]interface{}{
			"worker_count": p.config.WorkerCount,
		})
	}

	return nil
}

// Stop gracefully stops the pool, waiting for in-progress jobs up to the
// shutdown timeout.
func (p *WorkerPool) Stop(ctx context.Context) error {
	if !p.running.Load() {
		return nil
	}

	if p.logger != nil {
		p.logger.Info("Stopping worker pool", map[string]interface{}{
			"active_workers": p.activeCount.Load(),
		})
	}

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		return fmt.Errorf("shutdown timeout: some workers may still be running")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runWorker is the main loop for each worker goroutine.
func (p *WorkerPool) runWorker(ctx context.Context, workerID string) {
	defer p.wg.Done()

	p.activeCount.Add(1)
	defer p.activeCount.Add(-1)

	if p.logger != nil {
		p.logger.Info("Worker started", map[string]interface{}{
			"worker_id": workerID,
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.config.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if p.logger != nil {
				p.logger.Error("Dequeue error", map[string]interface{}{
					"worker_id": workerID,
					"error":     err.Error(),
				})
			}
			// Queue unreachable or payload corrupt; back off and resume.
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.config.LoopErrorBackoff):
			}
			continue
		}

		if job == nil {
			// Timeout or expired payload, nothing to do.
			continue
		}

		p.processJob(ctx, workerID, job)
	}
}

// processJob runs one delivery of a job through its lifecycle.
func (p *WorkerPool) processJob(parentCtx context.Context, workerID string, job *ExecutionJob) {
	tracer := otel.Tracer("github.com/sincerelyyyash/a8n-v2/engine")
	ctx, span := tracer.Start(parentCtx, "execution.process",
		trace.WithAttributes(
			attribute.String("execution.id", job.ExecutionID),
			attribute.String("execution.type", job.ExecutionType),
			attribute.Int("execution.retry_count", job.RetryCount),
			attribute.String("worker.id", workerID),
		))
	defer span.End()

	start := time.Now()
	EmitExecutionStarted(ctx, job.ExecutionType)

	if p.logger != nil {
		p.logger.InfoWithContext(ctx, "Processing execution", map[string]interface{}{
			"execution_id":   job.ExecutionID,
			"execution_type": job.ExecutionType,
			"retry_count":    job.RetryCount,
			"worker_id":      workerID,
		})
	}

	p.transition(ctx, job.ExecutionID, StatusProcessing, nil, nil)

	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	result, err := p.execute(jobCtx, job)
	duration := time.Since(start)

	if err == nil {
		span.SetAttributes(attribute.Int64("execution.duration_ms", duration.Milliseconds()))
		EmitExecutionCompleted(ctx, job.ExecutionType)
		p.transition(ctx, job.ExecutionID, StatusCompleted, result, nil)

		if p.logger != nil {
			p.logger.InfoWithContext(ctx, "Execution completed", map[string]interface{}{
				"execution_id": job.ExecutionID,
				"duration_ms":  duration.Milliseconds(),
			})
		}
		return
	}

	span.RecordError(err)

	// Permanent failures (cycles, dangling references, unknown type) do not
	// improve with retries; everything else gets the bounded requeue.
	if !core.IsPermanent(err) && job.RetryCount < p.config.MaxRetries {
		job.RetryCount++
		if enqueueErr := p.queue.Enqueue(ctx, job); enqueueErr == nil {
			EmitExecutionRequeued(ctx, job.ExecutionType, job.RetryCount)
			if p.logger != nil {
				p.logger.WarnWithContext(ctx, "Execution failed, requeued for retry", map[string]interface{}{
					"execution_id": job.ExecutionID,
					"retry_count":  job.RetryCount,
					"error":        err.Error(),
				})
			}
			return
		} else if p.logger != nil {
			// Requeue failed; fall through to terminal failure so the
			// orchestrator is not left with a stuck processing record.
			p.logger.ErrorWithContext(ctx, "Failed to requeue execution", map[string]interface{}{
				"execution_id": job.ExecutionID,
				"error":        enqueueErr.Error(),
			})
		}
	}

	EmitExecutionFailed(ctx, job.ExecutionType)
	errObj := map[string]interface{}{"error": err.Error()}
	p.transition(ctx, job.ExecutionID, StatusFailed, errObj, errObj)

	if p.logger != nil {
		p.logger.ErrorWithContext(ctx, "Execution failed", map[string]interface{}{
			"execution_id": job.ExecutionID,
			"retry_count":  job.RetryCount,
			"duration_ms":  duration.Milliseconds(),
			"error":        err.Error(),
		})
	}
}

// execute dispatches by execution type with panic recovery.
func (p *WorkerPool) execute(ctx context.Context, job *ExecutionJob) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			err = fmt.Errorf("handler panic: %v", r)
			if p.logger != nil {
				p.logger.ErrorWithContext(ctx, "Handler panicked", map[string]interface{}{
					"execution_id": job.ExecutionID,
					"panic":        r,
					"stack":        stack,
				})
			}
		}
	}()

	switch job.ExecutionType {
	case ExecutionTypeWorkflow:
		return p.scheduler.RunWorkflow(ctx, job)
	case ExecutionTypeNode:
		return p.scheduler.RunNode(ctx, job)
	default:
		return nil, fmt.Errorf("%q: %w", job.ExecutionType, core.ErrUnknownExecutionType)
	}
}

// transition writes the advisory snapshot and posts the authoritative
// callback. Both failures are logged and dropped: the snapshot is
// best-effort and the next callback carries the latest state.
func (p *WorkerPool) transition(ctx context.Context, executionID, status string, result, errObj interface{}) {
	if putErr := p.store.Put(ctx, executionID, status, result); putErr != nil && p.logger != nil {
		p.logger.WarnWithContext(ctx, "Failed to write status snapshot", map[string]interface{}{
			"execution_id": executionID,
			"status":       status,
			"error":        putErr.Error(),
		})
	}

	update := StatusUpdate{
		ExecutionID: executionID,
		Status:      status,
	}
	if errObj != nil {
		update.Error = errObj
	} else {
		update.Result = result
	}

	if reportErr := p.reporter.Report(ctx, update); reportErr != nil {
		if errors.Is(reportErr, context.Canceled) {
			return
		}
		if p.logger != nil {
			p.logger.WarnWithContext(ctx, "Status callback dropped", map[string]interface{}{
				"execution_id": executionID,
				"status":       status,
				"error":        reportErr.Error(),
			})
		}
	}
}
