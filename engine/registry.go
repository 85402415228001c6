package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sincerelyyyash/a8n-v2/core"
)

// NodeHandler executes one typed node. Inputs arrive through node.Data with
// templates already resolved; credentials are the job's per-platform blobs.
// A returned error propagates to the scheduler and fails the job (subject
// to the retry policy).
type NodeHandler interface {
	Execute(ctx context.Context, node *Node, credentials map[string]Credential) (interface{}, error)
}

// NodeHandlerFunc adapts a function to the NodeHandler interface.
type NodeHandlerFunc func(ctx context.Context, node *Node, credentials map[string]Credential) (interface{}, error)

// Execute calls the function.
func (f NodeHandlerFunc) Execute(ctx context.Context, node *Node, credentials map[string]Credential) (interface{}, error) {
	return f(ctx, node, credentials)
}

// HandlerRegistry dispatches nodes to handlers by the node's type tag.
// Unknown types are not an error: they produce a pass-through result so a
// workflow can carry annotation-only nodes.
type HandlerRegistry struct {
	handlers map[string]NodeHandler
	mu       sync.RWMutex
	logger   core.Logger
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry(logger core.Logger) *HandlerRegistry {
	r := &HandlerRegistry{
		handlers: make(map[string]NodeHandler),
		logger:   logger,
	}
	if r.logger != nil {
		if cal, ok := r.logger.(core.ComponentAwareLogger); ok {
			r.logger = cal.WithComponent("engine/registry")
		}
	}
	return r
}

// Register binds a handler to a node type.
func (r *HandlerRegistry) Register(nodeType string, handler NodeHandler) error {
	if nodeType == "" {
		return fmt.Errorf("node type cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[nodeType] = handler

	if r.logger != nil {
		r.logger.Info("Node handler registered", map[string]interface{}{
			"node_type": nodeType,
		})
	}
	return nil
}

// Execute dispatches a single node and wraps the handler output in the
// result envelope.
func (r *HandlerRegistry) Execute(ctx context.Context, node *Node, credentials map[string]Credential) (*NodeResult, error) {
	nodeType := node.Type()

	r.mu.RLock()
	handler, ok := r.handlers[nodeType]
	r.mu.RUnlock()

	start := time.Now()

	var result interface{}
	if ok {
		var err error
		result, err = handler.Execute(ctx, node, credentials)
		if err != nil {
			EmitNodeExecuted(ctx, nodeType, time.Since(start), false)
			return nil, fmt.Errorf("node %d (%s): %w", node.ID, nodeType, err)
		}
	} else {
		result = map[string]interface{}{
			"status": "processed",
			"type":   nodeType,
		}
	}

	EmitNodeExecuted(ctx, nodeType, time.Since(start), true)

	if r.logger != nil {
		r.logger.DebugWithContext(ctx, "Node executed", map[string]interface{}{
			"node_id":     node.ID,
			"node_type":   nodeType,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}

	return &NodeResult{
		NodeID: node.ID,
		Type:   nodeType,
		Result: result,
	}, nil
}
