package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/agent-stream-relay/internal/event"
	"github.com/tjfontaine/agent-stream-relay/internal/testutil"
)

func sseHandler(t *testing.T, lines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/runs" {
			t.Errorf("path = %s, want /v1/runs", r.URL.Path)
		}
		if accept := r.Header.Get("Accept"); accept != "text/event-stream" {
			t.Errorf("Accept = %q", accept)
		}

		var req runRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("request body not valid JSON: %v", err)
		}
		if req.SessionID == "" || req.Message == "" {
			t.Errorf("request body = %+v, want session_id and message", req)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
		}
	}
}

func collect(t *testing.T, events <-chan Result) []Result {
	t.Helper()
	var results []Result
	timeout := time.After(5 * time.Second)
	for {
		select {
		case res, open := <-events:
			if !open {
				return results
			}
			results = append(results, res)
		case <-timeout:
			t.Fatal("stream never closed")
		}
	}
}

func TestHTTPRunner_StreamsEvents(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`data: {"type":"tool_start","tool_id":"t1","tool_name":"lookup"}`,
		`data: {"type":"response","content":"found it"}`,
		`data: [DONE]`,
	}))
	defer srv.Close()

	runner := NewHTTPRunner(srv.URL)
	events, err := runner.Run(context.Background(), "s1", "find the thing")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	results := collect(t, events)
	if len(results) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(results), results)
	}
	if results[0].Event.Type != event.TypeToolStart || results[0].Event.ToolID != "t1" {
		t.Errorf("events[0] = %+v", results[0].Event)
	}
	if results[1].Event.Type != event.TypeResponse || results[1].Event.Content != "found it" {
		t.Errorf("events[1] = %+v", results[1].Event)
	}
}

func TestHTTPRunner_SkipsNonDataLines(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`: keepalive comment`,
		`event: message`,
		`data: {"type":"response","content":"ok"}`,
		`data: [DONE]`,
	}))
	defer srv.Close()

	runner := NewHTTPRunner(srv.URL)
	events, err := runner.Run(context.Background(), "s1", "hi")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	results := collect(t, events)
	if len(results) != 1 || results[0].Event.Type != event.TypeResponse {
		t.Errorf("results = %+v, want just the response", results)
	}
}

func TestHTTPRunner_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "runner overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	runner := NewHTTPRunner(srv.URL)
	_, err := runner.Run(context.Background(), "s1", "hi")
	if err == nil {
		t.Fatal("Run() error = nil, want status error")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "runner overloaded") {
		t.Errorf("error = %v, want status and body", err)
	}
}

func TestHTTPRunner_ServerUnreachable(t *testing.T) {
	runner := NewHTTPRunner("http://127.0.0.1:1")
	if _, err := runner.Run(context.Background(), "s1", "hi"); err == nil {
		t.Fatal("Run() error = nil, want connection failure")
	}
}

func TestHTTPRunner_ContextCancelClosesStream(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"response\",\"content\":\"partial\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	runner := NewHTTPRunner(srv.URL)
	events, err := runner.Run(ctx, "s1", "hi")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// First event arrives, then the caller gives up.
	select {
	case res := <-events:
		if res.Err != nil || res.Event.Content != "partial" {
			t.Fatalf("first result = %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first event never arrived")
	}
	cancel()

	select {
	case _, open := <-events:
		if open {
			// A racing error result is acceptable; the channel must still close.
			if _, open := <-events; open {
				t.Fatal("channel not closed after cancel")
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel never closed after cancel")
	}
}

func TestHTTPRunner_ReplaysRecordedRun(t *testing.T) {
	r, cleanup := testutil.NewVCRRecorder(t, "run_stream")
	defer cleanup()

	runner := NewHTTPRunner("http://agent-runner.test", WithHTTPClient(testutil.VCRHTTPClient(r)))
	events, err := runner.Run(context.Background(), "s-vcr", "what is the weather in oslo?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	results := collect(t, events)
	if len(results) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(results), results)
	}
	if results[0].Event.Type != event.TypeToolStart || results[0].Event.ToolName != "get_weather" {
		t.Errorf("events[0] = %+v", results[0].Event)
	}
	if results[1].Event.Type != event.TypeToolComplete {
		t.Errorf("events[1] = %+v", results[1].Event)
	}
	if results[2].Event.Type != event.TypeResponse || !strings.Contains(results[2].Event.Content, "Oslo") {
		t.Errorf("events[2] = %+v", results[2].Event)
	}
}
