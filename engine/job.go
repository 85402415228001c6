// Package engine implements the workflow execution engine: the Redis-backed
// execution queue, the DAG scheduler that runs workflow jobs node by node,
// the node handler registry, and the worker pool that ties them together.
package engine

import "encoding/json"

// Execution types carried in ExecutionJob.ExecutionType.
const (
	ExecutionTypeWorkflow = "workflow"
	ExecutionTypeNode     = "node"
)

// Execution statuses. Transitions are monotonic:
// queued -> processing -> (completed | failed). A retried job re-enters
// queued only via explicit requeue with an incremented retry count.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusNotFound   = "not_found"
)

// MaxRetries bounds handler-failure requeues. A job is attempted at most
// MaxRetries+1 times before it is terminally failed.
const MaxRetries = 3

// Node is a typed unit of work. Data carries handler-specific inputs,
// potentially containing template tokens; Data["type"] selects the handler.
type Node struct {
	ID        int                    `json:"id" yaml:"id"`
	PositionX float64                `json:"positionX" yaml:"positionX"`
	PositionY float64                `json:"positionY" yaml:"positionY"`
	Data      map[string]interface{} `json:"data" yaml:"data"`
}

// Type returns the handler type tag, or "unknown" when absent.
func (n *Node) Type() string {
	if t, ok := n.Data["type"].(string); ok && t != "" {
		return t
	}
	return "unknown"
}

// Connection is a directed edge between two nodes of the same workflow.
type Connection struct {
	From int `json:"from" yaml:"from"`
	To   int `json:"to" yaml:"to"`
}

// Credential is an opaque per-platform credential blob. Handlers parse
// Data into a typed view at entry.
type Credential struct {
	ID       int                    `json:"id" yaml:"id"`
	Title    string                 `json:"title" yaml:"title"`
	Platform string                 `json:"platform" yaml:"platform"`
	Data     map[string]interface{} `json:"data" yaml:"data"`
}

// Trigger captures the external event that caused an execution.
type Trigger struct {
	Headers map[string]string `json:"headers"`
	Query   map[string]string `json:"query"`
	Body    interface{}       `json:"body"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
}

// ExecutionJob is the envelope placed on the execution queue. Workflow jobs
// carry Nodes and Connections; node jobs carry a single Node.
type ExecutionJob struct {
	ExecutionID   string                `json:"execution_id"`
	UserID        int                   `json:"user_id"`
	ExecutionType string                `json:"execution_type"`
	WorkflowID    int                   `json:"workflow_id"`
	NodeID        *int                  `json:"node_id,omitempty"`
	WorkflowName  string                `json:"workflow_name"`
	WorkflowTitle string                `json:"workflow_title"`
	Credentials   map[string]Credential `json:"credentials"`
	Nodes         []Node                `json:"nodes,omitempty"`
	Connections   []Connection          `json:"connections,omitempty"`
	Node          *Node                 `json:"node,omitempty"`
	Trigger       *Trigger              `json:"trigger,omitempty"`
	RetryCount    int                   `json:"retry_count"`
}

// NodeResult is the envelope a handler execution produces.
type NodeResult struct {
	NodeID int         `json:"node_id"`
	Type   string      `json:"type"`
	Result interface{} `json:"result"`
}

// StatusSnapshot is the advisory status record kept in the status store.
type StatusSnapshot struct {
	ExecutionID string      `json:"execution_id,omitempty"`
	Status      string      `json:"status"`
	Result      interface{} `json:"result,omitempty"`
	Timestamp   int64       `json:"timestamp,omitempty"`
}

// StatusUpdate is the payload posted to the orchestrator's status endpoint.
type StatusUpdate struct {
	ExecutionID string      `json:"execution_id"`
	Status      string      `json:"status"`
	Result      interface{} `json:"result,omitempty"`
	Error       interface{} `json:"error,omitempty"`
}

// triggerDocument converts the trigger into a plain JSON document so the
// template resolver can descend into it with dotted paths.
func triggerDocument(t *Trigger) interface{} {
	if t == nil {
		return nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	return doc
}
