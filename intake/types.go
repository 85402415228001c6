// Package intake implements the ingest enqueue path: webhook trigger
// validation, manual execution endpoints, job materialization and queue
// insertion, plus the orchestrator-side status update endpoint.
//
// The durable backends (webhook registry, workflow store, execution
// records) are external collaborators expressed as interfaces; the package
// ships in-memory implementations used by the standalone intake binary and
// the tests.
package intake

import (
	"context"
	"time"

	"github.com/sincerelyyyash/a8n-v2/engine"
)

// Webhook is a registered trigger endpoint. A non-empty Header enables
// HMAC signing: the signature arrives in that request header and is
// verified against Secret.
type Webhook struct {
	ID         int    `json:"id" yaml:"id"`
	WorkflowID int    `json:"workflow_id" yaml:"workflow_id"`
	Path       string `json:"path" yaml:"path"`
	Method     string `json:"method" yaml:"method"`
	Header     string `json:"header,omitempty" yaml:"header,omitempty"`
	Secret     string `json:"secret,omitempty" yaml:"secret,omitempty"`
}

// WorkflowDefinition is a workflow with its graph, as loaded from the
// workflow store.
type WorkflowDefinition struct {
	ID          int                 `json:"id" yaml:"id"`
	UserID      int                 `json:"user_id" yaml:"user_id"`
	Name        string              `json:"name" yaml:"name"`
	Title       string              `json:"title" yaml:"title"`
	Nodes       []engine.Node       `json:"nodes" yaml:"nodes"`
	Connections []engine.Connection `json:"connections" yaml:"connections"`
}

// ExecutionRecord is the durable execution row owned by the orchestrator.
type ExecutionRecord struct {
	ExecutionID string      `json:"execution_id"`
	UserID      int         `json:"user_id"`
	WorkflowID  int         `json:"workflow_id"`
	NodeID      *int        `json:"node_id,omitempty"`
	Status      string      `json:"status"`
	Result      interface{} `json:"result,omitempty"`
	Error       interface{} `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// WebhookRegistry looks up webhooks by (path, method).
type WebhookRegistry interface {
	Lookup(ctx context.Context, path, method string) (*Webhook, error)
}

// WorkflowSource loads workflows and the owning user's credentials.
type WorkflowSource interface {
	Workflow(ctx context.Context, workflowID int) (*WorkflowDefinition, error)
	Credentials(ctx context.Context, userID int) (map[string]engine.Credential, error)
}

// ExecutionRecorder persists durable execution records.
type ExecutionRecorder interface {
	Insert(ctx context.Context, record *ExecutionRecord) error
	UpdateStatus(ctx context.Context, executionID, status string, result, errObj interface{}) error
	Get(ctx context.Context, executionID string) (*ExecutionRecord, error)
}
