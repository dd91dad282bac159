package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tjfontaine/agent-stream-relay/internal/event"
)

const (
	defaultRunPath = "/v1/runs"
	defaultTimeout = 120 * time.Second
)

// ClientOption configures the HTTP runner.
type ClientOption func(*HTTPRunner)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(r *HTTPRunner) {
		r.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(r *HTTPRunner) {
		r.httpClient = httpClient
	}
}

// HTTPRunner drives a remote agent runner over HTTP. The runner endpoint
// accepts a JSON body {session_id, message} and responds with a
// text/event-stream of event frames, terminated by a [DONE] marker.
type HTTPRunner struct {
	baseURL    string
	httpClient *http.Client
}

var _ Runner = (*HTTPRunner)(nil)

// NewHTTPRunner creates a runner client for the given base URL.
func NewHTTPRunner(baseURL string, opts ...ClientOption) *HTTPRunner {
	r := &HTTPRunner{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type runRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Run starts a turn and streams its events. The channel is closed when the
// upstream stream ends.
func (r *HTTPRunner) Run(ctx context.Context, sessionID, message string) (<-chan Result, error) {
	body, err := json.Marshal(runRequest{SessionID: sessionID, Message: message})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+defaultRunPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call agent runner: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("agent runner returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	out := make(chan Result)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		r.readStream(ctx, resp.Body, out)
	}()
	return out, nil
}

func (r *HTTPRunner) readStream(ctx context.Context, body io.Reader, out chan<- Result) {
	scanner := bufio.NewScanner(body)
	// Increase buffer size for potentially large tool results
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return
		}

		evt := event.Decode([]byte(data))
		select {
		case out <- Result{Event: evt}:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		out <- Result{Err: fmt.Errorf("stream read error: %w", err)}
	}
}
