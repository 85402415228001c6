package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sincerelyyyash/a8n-v2/core"
)

// DAGScheduler validates a workflow graph, orders it topologically and runs
// its nodes sequentially, threading results through the evaluation context.
// Parallelism across independent branches is deliberately not attempted;
// the results-propagation model stays simple.
type DAGScheduler struct {
	registry *HandlerRegistry
	logger   core.Logger
}

// NewDAGScheduler creates a scheduler dispatching through the registry.
func NewDAGScheduler(registry *HandlerRegistry, logger core.Logger) *DAGScheduler {
	s := &DAGScheduler{
		registry: registry,
		logger:   logger,
	}
	if s.logger != nil {
		if cal, ok := s.logger.(core.ComponentAwareLogger); ok {
			s.logger = cal.WithComponent("engine/dag")
		}
	}
	return s
}

// RunWorkflow executes a workflow job and returns
// {workflow_id, order, results}.
func (s *DAGScheduler) RunWorkflow(ctx context.Context, job *ExecutionJob) (map[string]interface{}, error) {
	order, nodeMap, err := topologicalOrder(job.Nodes, job.Connections)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.InfoWithContext(ctx, "Workflow graph ordered", map[string]interface{}{
			"execution_id": job.ExecutionID,
			"workflow_id":  job.WorkflowID,
			"node_count":   len(job.Nodes),
			"order":        order,
		})
	}

	evalCtx := NewEvalContext(job.Trigger)

	for _, nodeID := range order {
		node := nodeMap[nodeID]

		prepared := &Node{
			ID:        node.ID,
			PositionX: node.PositionX,
			PositionY: node.PositionY,
		}
		if data, ok := ResolveTemplates(node.Data, evalCtx).(map[string]interface{}); ok {
			prepared.Data = data
		}

		result, err := s.registry.Execute(ctx, prepared, job.Credentials)
		if err != nil {
			return nil, err
		}

		evalCtx.Results[strconv.Itoa(nodeID)] = result
	}

	return map[string]interface{}{
		"workflow_id": job.WorkflowID,
		"order":       order,
		"results":     evalCtx.Results,
	}, nil
}

// RunNode executes a single-node job with an empty results map and the
// provided trigger.
func (s *DAGScheduler) RunNode(ctx context.Context, job *ExecutionJob) (map[string]interface{}, error) {
	if job.Node == nil {
		return nil, fmt.Errorf("node job %s carries no node", job.ExecutionID)
	}

	evalCtx := NewEvalContext(job.Trigger)

	prepared := &Node{
		ID:        job.Node.ID,
		PositionX: job.Node.PositionX,
		PositionY: job.Node.PositionY,
	}
	if data, ok := ResolveTemplates(job.Node.Data, evalCtx).(map[string]interface{}); ok {
		prepared.Data = data
	}

	result, err := s.registry.Execute(ctx, prepared, job.Credentials)
	if err != nil {
		return nil, err
	}

	nodeID := job.Node.ID
	if job.NodeID != nil {
		nodeID = *job.NodeID
	}

	return map[string]interface{}{
		"node_id": nodeID,
		"result":  result,
	}, nil
}

// topologicalOrder runs Kahn's algorithm over the graph. Tie-breaking among
// ready nodes is FIFO in input order, so the produced order is stable for a
// given job payload. An order shorter than the node set means a cycle or an
// in-degree residue, both fatal.
func topologicalOrder(nodes []Node, connections []Connection) ([]int, map[int]*Node, error) {
	nodeMap := make(map[int]*Node, len(nodes))
	adjacency := make(map[int][]int, len(nodes))
	inDegree := make(map[int]int, len(nodes))

	for i := range nodes {
		node := &nodes[i]
		nodeMap[node.ID] = node
		inDegree[node.ID] = 0
	}

	for _, conn := range connections {
		if _, ok := nodeMap[conn.From]; !ok {
			return nil, nil, fmt.Errorf("connection %d->%d: node %d: %w", conn.From, conn.To, conn.From, core.ErrUnknownNode)
		}
		if _, ok := nodeMap[conn.To]; !ok {
			return nil, nil, fmt.Errorf("connection %d->%d: node %d: %w", conn.From, conn.To, conn.To, core.ErrUnknownNode)
		}
		adjacency[conn.From] = append(adjacency[conn.From], conn.To)
		inDegree[conn.To]++
	}

	// Roots in input order keeps the result deterministic.
	var queue []int
	for i := range nodes {
		if inDegree[nodes[i].ID] == 0 {
			queue = append(queue, nodes[i].ID)
		}
	}

	order := make([]int, 0, len(nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, child := range adjacency[current] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(order) != len(nodeMap) {
		return nil, nil, fmt.Errorf("workflow graph has %d of %d nodes orderable: %w",
			len(order), len(nodeMap), core.ErrCyclicWorkflow)
	}

	return order, nodeMap, nil
}
