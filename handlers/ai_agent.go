// Package handlers provides the built-in node handlers: ai_agent, email
// and telegram. Each handler parses its inputs from the resolved node data
// and its credentials into a typed view at entry; failures propagate to the
// scheduler as errors.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sincerelyyyash/a8n-v2/core"
	"github.com/sincerelyyyash/a8n-v2/engine"
)

// AIAgentHandler executes ai_agent nodes through a chat-completion client.
//
// Inputs (from node data): "messages" (list of strings), optional "schema"
// (JSON schema object) and "formatted_response" (bool). With a schema and
// formatted_response=true the model is instructed to answer as JSON
// matching the schema fields and the reply is parsed into the result;
// otherwise the result is {"answer": <content>}.
type AIAgentHandler struct {
	client core.AIClient
	logger core.Logger
}

// NewAIAgentHandler creates the handler.
func NewAIAgentHandler(client core.AIClient, logger core.Logger) *AIAgentHandler {
	h := &AIAgentHandler{
		client: client,
		logger: logger,
	}
	if h.logger != nil {
		if cal, ok := h.logger.(core.ComponentAwareLogger); ok {
			h.logger = cal.WithComponent("handlers/ai_agent")
		}
	}
	return h
}

// Execute implements engine.NodeHandler.
func (h *AIAgentHandler) Execute(ctx context.Context, node *engine.Node, credentials map[string]engine.Credential) (interface{}, error) {
	if h.client == nil {
		return nil, fmt.Errorf("ai_agent: no AI client configured")
	}

	messages := stringList(node.Data["messages"])
	formatted, _ := node.Data["formatted_response"].(bool)
	schema, _ := node.Data["schema"].(map[string]interface{})

	var prompt string
	if formatted && schema != nil {
		instructions := formatInstructions(schema)
		prompt = fmt.Sprintf(
			"You are an assistant. Follow the user-provided schema.\nSchema: %s\n%s\n\nUser messages:\n%s",
			compactJSON(schema), instructions, strings.Join(messages, "\n"))
	} else {
		prompt = strings.Join(messages, "\n")
	}

	resp, err := h.client.GenerateResponse(ctx, prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("ai_agent: %w", err)
	}

	var result interface{}
	if formatted && schema != nil {
		parsed, parseErr := parseStructured(resp.Content)
		if parseErr != nil {
			return nil, fmt.Errorf("ai_agent: model reply did not match schema: %w", parseErr)
		}
		result = parsed
	} else {
		result = map[string]interface{}{"answer": resp.Content}
	}

	if h.logger != nil {
		h.logger.DebugWithContext(ctx, "AI agent responded", map[string]interface{}{
			"node_id":      node.ID,
			"model":        resp.Model,
			"total_tokens": resp.Usage.TotalTokens,
			"formatted":    formatted,
		})
	}

	return map[string]interface{}{
		"messages": []interface{}{resp.Content},
		"result":   result,
	}, nil
}

// formatInstructions renders the schema's properties as response format
// instructions, one line per field in stable order.
func formatInstructions(schema map[string]interface{}) string {
	properties, _ := schema["properties"].(map[string]interface{})
	if len(properties) == 0 {
		return "Respond with a JSON object."
	}

	fields := make([]string, 0, len(properties))
	for name := range properties {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("Respond with a JSON object containing exactly these fields:\n")
	for _, name := range fields {
		fieldType := "string"
		if props, ok := properties[name].(map[string]interface{}); ok {
			if t, ok := props["type"].(string); ok && t != "" {
				fieldType = t
			}
		}
		fmt.Fprintf(&b, "- %s (Type: %s)\n", name, fieldType)
	}
	b.WriteString("Return only the JSON object, optionally inside a ```json code block.")
	return b.String()
}

// parseStructured extracts a JSON object from a model reply, tolerating
// markdown code fences around it.
func parseStructured(content string) (map[string]interface{}, error) {
	text := strings.TrimSpace(content)
	if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+3:]
		text = strings.TrimPrefix(text, "json")
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
		text = strings.TrimSpace(text)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func stringList(value interface{}) []string {
	switch v := value.(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			switch s := elem.(type) {
			case string:
				out = append(out, s)
			default:
				out = append(out, fmt.Sprintf("%v", s))
			}
		}
		return out
	case []string:
		return v
	case string:
		return []string{v}
	default:
		return nil
	}
}

func compactJSON(value interface{}) string {
	data, err := json.Marshal(value)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Compile-time interface compliance check
var _ engine.NodeHandler = (*AIAgentHandler)(nil)
