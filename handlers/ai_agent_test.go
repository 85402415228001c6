package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sincerelyyyash/a8n-v2/core"
	"github.com/sincerelyyyash/a8n-v2/engine"
)

// mockAIClient returns a canned reply and records the prompt it received.
type mockAIClient struct {
	prompt string
	reply  string
	err    error
}

func (m *mockAIClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	m.prompt = prompt
	if m.err != nil {
		return nil, m.err
	}
	return &core.AIResponse{
		Content: m.reply,
		Model:   "test-model",
		Usage:   core.TokenUsage{TotalTokens: 10},
	}, nil
}

func aiNode(data map[string]interface{}) *engine.Node {
	data["type"] = "ai_agent"
	return &engine.Node{ID: 1, Data: data}
}

func TestAIAgentPlainResponse(t *testing.T) {
	client := &mockAIClient{reply: "the answer is 42"}
	handler := NewAIAgentHandler(client, &core.NoOpLogger{})

	result, err := handler.Execute(context.Background(), aiNode(map[string]interface{}{
		"messages": []interface{}{"what is the answer?"},
	}), nil)
	require.NoError(t, err)

	assert.Equal(t, "what is the answer?", client.prompt)

	out := result.(map[string]interface{})
	assert.Equal(t, []interface{}{"the answer is 42"}, out["messages"])
	assert.Equal(t, map[string]interface{}{"answer": "the answer is 42"}, out["result"])
}

func TestAIAgentFormattedResponseParsesJSON(t *testing.T) {
	client := &mockAIClient{reply: "```json\n{\"city\":\"Paris\",\"population\":2100000}\n```"}
	handler := NewAIAgentHandler(client, &core.NoOpLogger{})

	result, err := handler.Execute(context.Background(), aiNode(map[string]interface{}{
		"messages":           []interface{}{"largest city in France?"},
		"formatted_response": true,
		"schema": map[string]interface{}{
			"properties": map[string]interface{}{
				"city":       map[string]interface{}{"type": "string"},
				"population": map[string]interface{}{"type": "number"},
			},
		},
	}), nil)
	require.NoError(t, err)

	// The prompt carries the schema and per-field instructions.
	assert.Contains(t, client.prompt, "- city (Type: string)")
	assert.Contains(t, client.prompt, "- population (Type: number)")
	assert.Contains(t, client.prompt, "largest city in France?")

	out := result.(map[string]interface{})
	parsed := out["result"].(map[string]interface{})
	assert.Equal(t, "Paris", parsed["city"])
	assert.Equal(t, float64(2100000), parsed["population"])
}

func TestAIAgentFormattedResponseWithoutFences(t *testing.T) {
	client := &mockAIClient{reply: `{"ok":true}`}
	handler := NewAIAgentHandler(client, &core.NoOpLogger{})

	result, err := handler.Execute(context.Background(), aiNode(map[string]interface{}{
		"messages":           "check",
		"formatted_response": true,
		"schema":             map[string]interface{}{"properties": map[string]interface{}{"ok": map[string]interface{}{"type": "boolean"}}},
	}), nil)
	require.NoError(t, err)

	out := result.(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"ok": true}, out["result"])
}

func TestAIAgentFormattedResponseParseFailure(t *testing.T) {
	client := &mockAIClient{reply: "sorry, I cannot answer that"}
	handler := NewAIAgentHandler(client, &core.NoOpLogger{})

	_, err := handler.Execute(context.Background(), aiNode(map[string]interface{}{
		"messages":           []interface{}{"hi"},
		"formatted_response": true,
		"schema":             map[string]interface{}{"properties": map[string]interface{}{}},
	}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestAIAgentClientErrorPropagates(t *testing.T) {
	client := &mockAIClient{err: errors.New("rate limited")}
	handler := NewAIAgentHandler(client, &core.NoOpLogger{})

	_, err := handler.Execute(context.Background(), aiNode(map[string]interface{}{
		"messages": []interface{}{"hi"},
	}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestAIAgentWithoutClientFails(t *testing.T) {
	handler := NewAIAgentHandler(nil, &core.NoOpLogger{})
	_, err := handler.Execute(context.Background(), aiNode(map[string]interface{}{}), nil)
	require.Error(t, err)
}
