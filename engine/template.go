package engine

import "strings"

// EvalContext is the transient per-execution context the template resolver
// evaluates dotted paths against. Results is keyed by stringified node id;
// Trigger is the trigger object as a plain JSON document, or nil.
type EvalContext struct {
	Results map[string]interface{}
	Trigger interface{}
}

// NewEvalContext creates a fresh context for one execution.
func NewEvalContext(trigger *Trigger) *EvalContext {
	return &EvalContext{
		Results: make(map[string]interface{}),
		Trigger: triggerDocument(trigger),
	}
}

// document exposes the context as a traversable value for path resolution.
func (c *EvalContext) document() map[string]interface{} {
	return map[string]interface{}{
		"results": toDocument(c.Results),
		"trigger": c.Trigger,
	}
}

// ResolveTemplates walks a value and substitutes template tokens against
// the context. Only whole-string tokens of the form "{{a.b.c}}" are
// resolved; unresolved paths yield nil, and strings with embedded tokens
// pass through unchanged. Resolution is pure: containers are copied, the
// input is never mutated.
func ResolveTemplates(value interface{}, ctx *EvalContext) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, elem := range v {
			out[k] = ResolveTemplates(elem, ctx)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = ResolveTemplates(elem, ctx)
		}
		return out
	case string:
		if strings.HasPrefix(v, "{{") && strings.HasSuffix(v, "}}") {
			expr := strings.TrimSpace(v[2 : len(v)-2])
			return resolvePath(expr, ctx.document())
		}
		return v
	default:
		return value
	}
}

// resolvePath descends the context document along a dotted path. At each
// step, descent requires an object; anything else resolves to nil.
func resolvePath(expr string, doc map[string]interface{}) interface{} {
	var current interface{} = doc
	for _, part := range strings.Split(expr, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = obj[part]
	}
	return current
}

// toDocument converts typed result envelopes into plain JSON-shaped maps so
// paths like results.1.result.status resolve uniformly.
func toDocument(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, elem := range v {
			out[k] = toDocument(elem)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = toDocument(elem)
		}
		return out
	case *NodeResult:
		if v == nil {
			return nil
		}
		return map[string]interface{}{
			"node_id": v.NodeID,
			"type":    v.Type,
			"result":  toDocument(v.Result),
		}
	default:
		return value
	}
}
