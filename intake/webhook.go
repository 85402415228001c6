package intake

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sincerelyyyash/a8n-v2/core"
	"github.com/sincerelyyyash/a8n-v2/engine"
)

// webhookPrefix is the route prefix; everything after it is the webhook
// path used for registry lookup and signature verification.
const webhookPrefix = "/api/v1/webhook"

// WebhookHandler turns external HTTP signals into queued executions.
type WebhookHandler struct {
	registry WebhookRegistry
	source   WorkflowSource
	recorder ExecutionRecorder
	queue    engine.ExecutionQueue
	logger   core.Logger
	now      func() time.Time
}

// NewWebhookHandler creates the handler.
func NewWebhookHandler(registry WebhookRegistry, source WorkflowSource, recorder ExecutionRecorder, queue engine.ExecutionQueue, logger core.Logger) *WebhookHandler {
	h := &WebhookHandler{
		registry: registry,
		source:   source,
		recorder: recorder,
		queue:    queue,
		logger:   logger,
		now:      time.Now,
	}
	if h.logger != nil {
		if cal, ok := h.logger.(core.ComponentAwareLogger); ok {
			h.logger = cal.WithComponent("intake/webhook")
		}
	}
	return h
}

// ServeHTTP handles {GET|POST|PUT|PATCH|DELETE} /api/v1/webhook/{path}.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	method := strings.ToUpper(r.Method)

	path := strings.TrimPrefix(r.URL.Path, webhookPrefix)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	webhook, err := h.registry.Lookup(ctx, path, method)
	if err != nil {
		if errors.Is(err, core.ErrWebhookNotFound) {
			writeError(w, http.StatusNotFound, "Webhook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "webhook lookup failed")
		return
	}

	if webhook.Header != "" {
		signature := r.Header.Get(webhook.Header)
		timestamp := r.Header.Get("X-Timestamp")
		if err := VerifySignature(webhook.Secret, method, path, timestamp, signature, rawBody, h.now()); err != nil {
			if h.logger != nil {
				h.logger.WarnWithContext(ctx, "Webhook signature rejected", map[string]interface{}{
					"path":   path,
					"method": method,
					"error":  err.Error(),
				})
			}
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	workflow, err := h.source.Workflow(ctx, webhook.WorkflowID)
	if err != nil {
		if errors.Is(err, core.ErrWorkflowNotFound) {
			writeError(w, http.StatusNotFound, "Workflow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "workflow load failed")
		return
	}

	credentials, err := h.source.Credentials(ctx, workflow.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "credential load failed")
		return
	}

	// Malformed bodies are tolerated: the trigger carries body=null.
	var body interface{}
	if len(rawBody) > 0 {
		if err := json.Unmarshal(rawBody, &body); err != nil {
			body = nil
		}
	}

	trigger := &engine.Trigger{
		Headers: flattenHeaders(r.Header),
		Query:   flattenQuery(r.URL.Query()),
		Body:    body,
		Method:  method,
		Path:    path,
	}

	job := &engine.ExecutionJob{
		ExecutionID:   uuid.NewString(),
		UserID:        workflow.UserID,
		ExecutionType: engine.ExecutionTypeWorkflow,
		WorkflowID:    workflow.ID,
		WorkflowName:  workflow.Name,
		WorkflowTitle: workflow.Title,
		Credentials:   credentials,
		Nodes:         workflow.Nodes,
		Connections:   workflow.Connections,
		Trigger:       trigger,
	}

	executionID, err := h.enqueue(ctx, job)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue execution")
		return
	}

	if h.logger != nil {
		h.logger.InfoWithContext(ctx, "Webhook execution queued", map[string]interface{}{
			"execution_id": executionID,
			"workflow_id":  workflow.ID,
			"path":         path,
			"method":       method,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"execution_id": executionID,
		"status":       engine.StatusQueued,
	})
}

// enqueue pushes the job and durably records it as queued.
func (h *WebhookHandler) enqueue(ctx context.Context, job *engine.ExecutionJob) (string, error) {
	if err := h.queue.Enqueue(ctx, job); err != nil {
		return "", err
	}

	record := &ExecutionRecord{
		ExecutionID: job.ExecutionID,
		UserID:      job.UserID,
		WorkflowID:  job.WorkflowID,
		NodeID:      job.NodeID,
		Status:      engine.StatusQueued,
	}
	if err := h.recorder.Insert(ctx, record); err != nil {
		return "", err
	}

	return job.ExecutionID, nil
}

func flattenHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) > 0 {
			out[strings.ToLower(name)] = values[0]
		}
	}
	return out
}

func flattenQuery(query map[string][]string) map[string]string {
	out := make(map[string]string, len(query))
	for name, values := range query {
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
