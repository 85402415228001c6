package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sincerelyyyash/a8n-v2/core"
)

// StatusReporter posts authoritative status transitions to the
// orchestrator. Failures are surfaced to the caller, which logs and drops
// them; the status store provides a secondary signal and the next
// transition carries the latest state.
type StatusReporter interface {
	Report(ctx context.Context, update StatusUpdate) error
}

// HTTPStatusReporter implements StatusReporter over the orchestrator's
// status update endpoint, authenticated with a shared-secret header.
type HTTPStatusReporter struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	logger     core.Logger
}

// ReporterOption configures an HTTPStatusReporter.
type ReporterOption func(*HTTPStatusReporter)

// WithReporterLogger sets the reporter logger.
func WithReporterLogger(logger core.Logger) ReporterOption {
	return func(r *HTTPStatusReporter) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			r.logger = cal.WithComponent("engine/reporter")
		} else {
			r.logger = logger
		}
	}
}

// WithReporterHTTPClient overrides the HTTP client, primarily for tests.
func WithReporterHTTPClient(client *http.Client) ReporterOption {
	return func(r *HTTPStatusReporter) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// NewHTTPStatusReporter creates a reporter for the given orchestrator base
// URL. The client timeout is 10 seconds and requests carry trace context
// through the instrumented transport.
func NewHTTPStatusReporter(baseURL, secret string, opts ...ReporterOption) *HTTPStatusReporter {
	r := &HTTPStatusReporter{
		baseURL: baseURL,
		secret:  secret,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: &core.NoOpLogger{},
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// errCallbackRejected marks 4xx responses; retrying cannot change them.
var errCallbackRejected = fmt.Errorf("status callback rejected: %w", core.ErrRequestFailed)

// Report posts the transition, retrying transient failures with
// exponential backoff before giving up. A 4xx rejection is permanent and
// fails immediately.
func (r *HTTPStatusReporter) Report(ctx context.Context, update StatusUpdate) error {
	var lastErr error
	backoff := 50 * time.Millisecond

	for attempt := 1; attempt <= 3; attempt++ {
		if err := r.post(ctx, update); err != nil {
			if errors.Is(err, errCallbackRejected) {
				return err
			}
			lastErr = err
			if r.logger != nil {
				r.logger.WarnWithContext(ctx, "Status callback failed, retrying", map[string]interface{}{
					"execution_id": update.ExecutionID,
					"status":       update.Status,
					"attempt":      attempt,
					"error":        err.Error(),
				})
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}
		return nil
	}

	return fmt.Errorf("status callback failed after 3 attempts: %w", lastErr)
}

func (r *HTTPStatusReporter) post(ctx context.Context, update StatusUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal status update: %w", err)
	}

	url := r.baseURL + "/api/v1/execution/status/update"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.secret != "" {
		req.Header.Set("X-Engine-Secret", r.secret)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("status callback to %s: %w", url, core.ErrRequestFailed)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("status endpoint returned %d: %w", resp.StatusCode, errCallbackRejected)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status endpoint returned %d: %w", resp.StatusCode, core.ErrRequestFailed)
	}

	if r.logger != nil {
		r.logger.DebugWithContext(ctx, "Status callback delivered", map[string]interface{}{
			"execution_id": update.ExecutionID,
			"status":       update.Status,
			"status_code":  resp.StatusCode,
		})
	}

	return nil
}

// Compile-time interface compliance check
var _ StatusReporter = (*HTTPStatusReporter)(nil)
