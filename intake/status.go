package intake

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sincerelyyyash/a8n-v2/core"
	"github.com/sincerelyyyash/a8n-v2/engine"
)

// StatusUpdateHandler is the orchestrator side of the engine callback:
// POST /api/v1/execution/status/update, authenticated by constant-time
// comparison of the X-Engine-Secret header. The secret is mandatory here;
// the binary refuses to start without one, so the endpoint never silently
// falls open.
type StatusUpdateHandler struct {
	secret   string
	recorder ExecutionRecorder
	logger   core.Logger
}

// NewStatusUpdateHandler creates the handler.
func NewStatusUpdateHandler(secret string, recorder ExecutionRecorder, logger core.Logger) *StatusUpdateHandler {
	h := &StatusUpdateHandler{
		secret:   secret,
		recorder: recorder,
		logger:   logger,
	}
	if h.logger != nil {
		if cal, ok := h.logger.(core.ComponentAwareLogger); ok {
			h.logger = cal.WithComponent("intake/status")
		}
	}
	return h
}

// ServeHTTP handles the status update callback.
func (h *StatusUpdateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	provided := r.Header.Get("X-Engine-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid engine secret")
		return
	}

	var update engine.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if update.ExecutionID == "" || update.Status == "" {
		writeError(w, http.StatusBadRequest, "execution_id and status are required")
		return
	}

	ctx := r.Context()
	if err := h.recorder.UpdateStatus(ctx, update.ExecutionID, update.Status, update.Result, update.Error); err != nil {
		if errors.Is(err, core.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "Execution not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.logger != nil {
		h.logger.InfoWithContext(ctx, "Execution status updated", map[string]interface{}{
			"execution_id": update.ExecutionID,
			"status":       update.Status,
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Status updated"})
}
