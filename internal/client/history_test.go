package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tjfontaine/agent-stream-relay/internal/session"
)

func TestHistoryClient_SessionHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/sessions/s1/messages":
			w.Write([]byte(`{"session_id":"s1","messages":[{"id":"m1","role":"user","content":"hello"}]}`))
		case "/v1/sessions/s1/tool-calls":
			w.Write([]byte(`{"session_id":"s1","tool_calls":[{"id":"t1","name":"lookup","result":"found"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	hc := NewHistoryClient(srv.URL)
	messages, toolCalls, err := hc.SessionHistory(context.Background(), "s1")
	if err != nil {
		t.Fatalf("SessionHistory() error = %v", err)
	}
	if len(messages) != 1 || messages[0].Role != session.RoleUser || messages[0].Content != "hello" {
		t.Errorf("messages = %+v", messages)
	}
	if len(toolCalls) != 1 || toolCalls[0].Name != "lookup" {
		t.Errorf("toolCalls = %+v", toolCalls)
	}
}

func TestHistoryClient_NeverPersistedSessionIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	hc := NewHistoryClient(srv.URL)
	messages, toolCalls, err := hc.SessionHistory(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("SessionHistory() error = %v, want empty history for 404", err)
	}
	if len(messages) != 0 || len(toolCalls) != 0 {
		t.Errorf("history = %v / %v, want empty", messages, toolCalls)
	}
}

func TestHistoryClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	hc := NewHistoryClient(srv.URL)
	if _, _, err := hc.SessionHistory(context.Background(), "s1"); err == nil {
		t.Fatal("SessionHistory() error = nil, want server error")
	}
}

func TestHistoryClient_LoaderFeedsCacheHydration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/sessions/s1/messages":
			w.Write([]byte(`{"messages":[{"id":"m1","role":"assistant","content":"from history"}]}`))
		case "/v1/sessions/s1/tool-calls":
			w.Write([]byte(`{"tool_calls":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cache, err := session.NewCache(session.DefaultCacheSize, nil)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	loader := NewHistoryClient(srv.URL).Loader()
	if err := cache.Hydrate(context.Background(), loader, "s1"); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}

	messages := cache.Messages("s1")
	if len(messages) != 1 || messages[0].Content != "from history" {
		t.Errorf("hydrated messages = %+v", messages)
	}
}
