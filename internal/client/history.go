package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tjfontaine/agent-stream-relay/internal/session"
)

// HistoryClient fetches persisted session history from the relay's REST
// surface. Its Loader feeds session cache hydration.
type HistoryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHistoryClient creates a history client for the relay at baseURL (an
// http:// or https:// endpoint).
func NewHistoryClient(baseURL string) *HistoryClient {
	return &HistoryClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SessionHistory returns the persisted transcript and tool-call history for
// sessionID. A session the relay has never persisted yields empty history.
func (h *HistoryClient) SessionHistory(ctx context.Context, sessionID string) ([]session.Message, []session.ToolCall, error) {
	var msgBody struct {
		Messages []session.Message `json:"messages"`
	}
	if err := h.getJSON(ctx, "/v1/sessions/"+sessionID+"/messages", &msgBody); err != nil {
		return nil, nil, err
	}

	var tcBody struct {
		ToolCalls []session.ToolCall `json:"tool_calls"`
	}
	if err := h.getJSON(ctx, "/v1/sessions/"+sessionID+"/tool-calls", &tcBody); err != nil {
		return nil, nil, err
	}

	return msgBody.Messages, tcBody.ToolCalls, nil
}

// Loader adapts the history client to session.LoadFunc.
func (h *HistoryClient) Loader() session.LoadFunc {
	return func(ctx context.Context, sessionID string) ([]session.Message, []session.ToolCall, error) {
		return h.SessionHistory(ctx, sessionID)
	}
}

func (h *HistoryClient) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create history request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Never-persisted session: empty history, not an error.
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("history fetch %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode history response: %w", err)
	}
	return nil
}
