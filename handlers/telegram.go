package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sincerelyyyash/a8n-v2/core"
	"github.com/sincerelyyyash/a8n-v2/engine"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramHandler sends messages for telegram nodes through the Bot API.
//
// Inputs (from node data): "chat_id", "message". Credentials (platform
// "telegram"): data.bot_token. The provider's JSON response is the node
// result.
type TelegramHandler struct {
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
}

// TelegramOption configures a TelegramHandler.
type TelegramOption func(*TelegramHandler)

// WithTelegramBaseURL overrides the Bot API base URL, for tests.
func WithTelegramBaseURL(baseURL string) TelegramOption {
	return func(h *TelegramHandler) {
		if baseURL != "" {
			h.baseURL = baseURL
		}
	}
}

// WithTelegramHTTPClient overrides the HTTP client.
func WithTelegramHTTPClient(client *http.Client) TelegramOption {
	return func(h *TelegramHandler) {
		if client != nil {
			h.httpClient = client
		}
	}
}

// NewTelegramHandler creates the handler.
func NewTelegramHandler(logger core.Logger, opts ...TelegramOption) *TelegramHandler {
	h := &TelegramHandler{
		baseURL: defaultTelegramAPI,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
	if h.logger != nil {
		if cal, ok := h.logger.(core.ComponentAwareLogger); ok {
			h.logger = cal.WithComponent("handlers/telegram")
		}
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Execute implements engine.NodeHandler.
func (h *TelegramHandler) Execute(ctx context.Context, node *engine.Node, credentials map[string]engine.Credential) (interface{}, error) {
	creds, ok := credentials["telegram"]
	if !ok {
		return nil, fmt.Errorf("telegram: no telegram credential attached to job")
	}

	botToken := stringField(creds.Data, "bot_token")
	if botToken == "" {
		return nil, fmt.Errorf("telegram: credential is missing bot_token")
	}

	chatID := node.Data["chat_id"]
	message := stringField(node.Data, "message")
	if chatID == nil || chatID == "" {
		return nil, fmt.Errorf("telegram: chat_id is required")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    message,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", h.baseURL, botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("telegram: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", core.ErrRequestFailed)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("telegram: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("telegram: API returned %d: %s", resp.StatusCode, string(body))
	}

	var providerResponse interface{}
	if err := json.Unmarshal(body, &providerResponse); err != nil {
		return nil, fmt.Errorf("telegram: invalid API response: %w", err)
	}

	if h.logger != nil {
		h.logger.InfoWithContext(ctx, "Telegram message sent", map[string]interface{}{
			"node_id": node.ID,
			"chat_id": chatID,
		})
	}

	return providerResponse, nil
}

// Compile-time interface compliance check
var _ engine.NodeHandler = (*TelegramHandler)(nil)
