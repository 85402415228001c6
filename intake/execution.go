package intake

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sincerelyyyash/a8n-v2/core"
	"github.com/sincerelyyyash/a8n-v2/engine"
)

// ExecutionHandler serves the manual enqueue endpoints and the advisory
// status poll. The caller is expected to be authenticated upstream; the
// request carries the already-authorized user id.
type ExecutionHandler struct {
	source   WorkflowSource
	recorder ExecutionRecorder
	queue    engine.ExecutionQueue
	status   engine.StatusStore
	logger   core.Logger
}

// NewExecutionHandler creates the handler.
func NewExecutionHandler(source WorkflowSource, recorder ExecutionRecorder, queue engine.ExecutionQueue, status engine.StatusStore, logger core.Logger) *ExecutionHandler {
	h := &ExecutionHandler{
		source:   source,
		recorder: recorder,
		queue:    queue,
		status:   status,
		logger:   logger,
	}
	if h.logger != nil {
		if cal, ok := h.logger.(core.ComponentAwareLogger); ok {
			h.logger = cal.WithComponent("intake/execution")
		}
	}
	return h
}

// executionRequest is the manual enqueue request body.
type executionRequest struct {
	UserID     int    `json:"user_id"`
	WorkflowID int    `json:"workflow_id"`
	NodeID     int    `json:"node_id,omitempty"`
	AuthedUser int    `json:"authed_user_id,omitempty"`
	Type       string `json:"execution_type,omitempty"`
}

// HandleWorkflow serves POST /api/v1/execution/workflow.
func (h *ExecutionHandler) HandleWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req executionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	workflow, err := h.source.Workflow(ctx, req.WorkflowID)
	if err != nil || workflow.UserID != req.UserID {
		writeError(w, http.StatusNotFound, "Workflow not found or does not belong to user")
		return
	}

	credentials, err := h.source.Credentials(ctx, workflow.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "credential load failed")
		return
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
	}

	h.finishEnqueue(w, r, job)
}

// HandleNode serves POST /api/v1/execution/node: a single-node run.
func (h *ExecutionHandler) HandleNode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req executionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	workflow, err := h.source.Workflow(ctx, req.WorkflowID)
	if err != nil || workflow.UserID != req.UserID {
		writeError(w, http.StatusNotFound, "Workflow not found or does not belong to user")
		return
	}

	var node *engine.Node
	for i := range workflow.Nodes {
		if workflow.Nodes[i].ID == req.NodeID {
			node = &workflow.Nodes[i]
			break
		}
	}
	if node == nil {
		writeError(w, http.StatusNotFound, "Node not found or does not belong to workflow")
		return
	}

	credentials, err := h.source.Credentials(ctx, workflow.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "credential load failed")
		return
	}

	nodeID := req.NodeID
	job := &engine.ExecutionJob{
		ExecutionID:   uuid.NewString(),
		UserID:        workflow.UserID,
		ExecutionType: engine.ExecutionTypeNode,
		WorkflowID:    workflow.ID,
		NodeID:        &nodeID,
		WorkflowName:  workflow.Name,
		WorkflowTitle: workflow.Title,
		Credentials:   credentials,
		Node:          node,
	}

	h.finishEnqueue(w, r, job)
}

// HandleStatus serves GET /api/v1/execution/status/{id} from the advisory
// status store.
func (h *ExecutionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	executionID := strings.TrimPrefix(r.URL.Path, "/api/v1/execution/status/")
	if executionID == "" || strings.Contains(executionID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	snapshot, err := h.status.Get(r.Context(), executionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (h *ExecutionHandler) finishEnqueue(w http.ResponseWriter, r *http.Request, job *engine.ExecutionJob) {
	ctx := r.Context()

	if err := h.queue.Enqueue(ctx, job); err != nil {
		if errors.Is(err, core.ErrQueueUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "execution queue unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to enqueue execution")
		return
	}

	record := &ExecutionRecord{
		ExecutionID: job.ExecutionID,
		UserID:      job.UserID,
		WorkflowID:  job.WorkflowID,
		NodeID:      job.NodeID,
		Status:      engine.StatusQueued,
		CreatedAt:   time.Now(),
	}
	if err := h.recorder.Insert(ctx, record); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record execution")
		return
	}

	if h.logger != nil {
		h.logger.InfoWithContext(ctx, "Execution queued", map[string]interface{}{
			"execution_id":   job.ExecutionID,
			"execution_type": job.ExecutionType,
			"workflow_id":    job.WorkflowID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"execution_id": job.ExecutionID,
		"status":       engine.StatusQueued,
	})
}
