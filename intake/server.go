package intake

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sincerelyyyash/a8n-v2/core"
	"github.com/sincerelyyyash/a8n-v2/engine"
)

// ServerConfig bundles the collaborators the intake HTTP surface needs.
type ServerConfig struct {
	Registry WebhookRegistry
	Source   WorkflowSource
	Recorder ExecutionRecorder
	Queue    engine.ExecutionQueue
	Status   engine.StatusStore
	Secret   string
	Logger   core.Logger
}

// NewServerHandler assembles the intake routes and wraps them with HTTP
// tracing instrumentation.
func NewServerHandler(cfg ServerConfig) http.Handler {
	webhook := NewWebhookHandler(cfg.Registry, cfg.Source, cfg.Recorder, cfg.Queue, cfg.Logger)
	execution := NewExecutionHandler(cfg.Source, cfg.Recorder, cfg.Queue, cfg.Status, cfg.Logger)
	statusUpdate := NewStatusUpdateHandler(cfg.Secret, cfg.Recorder, cfg.Logger)

	mux := http.NewServeMux()
	mux.Handle(webhookPrefix+"/", webhook)
	mux.HandleFunc("/api/v1/execution/workflow", execution.HandleWorkflow)
	mux.HandleFunc("/api/v1/execution/node", execution.HandleNode)
	mux.Handle("/api/v1/execution/status/update", statusUpdate)
	mux.HandleFunc("/api/v1/execution/status/", execution.HandleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return otelhttp.NewHandler(mux, "a8n-intake")
}
