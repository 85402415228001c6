package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sincerelyyyash/a8n-v2/core"
)

func TestGenerateResponse(t *testing.T) {
	var gotPath, gotAuth string
	var gotRequest map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-mini",
			"choices": [{"message": {"role": "assistant", "content": "hello there"}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8}
		}`))
	}))
	defer server.Close()

	client := NewOpenAIClient("sk-test", server.URL, &core.NoOpLogger{}, WithModel("gpt-4o-mini"))

	resp, err := client.GenerateResponse(context.Background(), "say hello", nil)
	require.NoError(t, err)

	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotRequest["model"])

	messages := gotRequest["messages"].([]interface{})
	require.Len(t, messages, 1)
	assert.Equal(t, "say hello", messages[0].(map[string]interface{})["content"])

	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, 8, resp.Usage.TotalTokens)
}

func TestGenerateResponseWithOptions(t *testing.T) {
	var gotRequest map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		_, _ = w.Write([]byte(`{"model":"gpt-4o","choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient("sk-test", server.URL, &core.NoOpLogger{})

	_, err := client.GenerateResponse(context.Background(), "hi", &core.AIOptions{
		Model:        "gpt-4o",
		SystemPrompt: "be terse",
		MaxTokens:    64,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", gotRequest["model"])
	assert.Equal(t, float64(64), gotRequest["max_tokens"])

	messages := gotRequest["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "be terse", messages[0].(map[string]interface{})["content"])
}

func TestGenerateResponseAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"rate_limit"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient("sk-test", server.URL, &core.NoOpLogger{})

	_, err := client.GenerateResponse(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRequestFailed)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestGenerateResponseNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient("sk-test", server.URL, &core.NoOpLogger{})
	_, err := client.GenerateResponse(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestGenerateResponseRequiresAPIKey(t *testing.T) {
	client := NewOpenAIClient("", "", &core.NoOpLogger{})
	_, err := client.GenerateResponse(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMissingConfiguration)
}
