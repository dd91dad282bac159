package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/agent-stream-relay/internal/server"
	"github.com/tjfontaine/agent-stream-relay/internal/session"
	"github.com/tjfontaine/agent-stream-relay/internal/storage"
	"github.com/tjfontaine/agent-stream-relay/internal/storage/memory"
)

func newHistoryRouter(store storage.SessionStore) chi.Router {
	r := chi.NewRouter()
	NewHistoryHandler(store, testLogger()).Register(r)
	return r
}

func seedSession(t *testing.T, store storage.SessionStore, sessionID string) {
	t.Helper()
	err := store.SaveSession(context.Background(), sessionID, &storage.SessionState{
		SessionID: sessionID,
		Messages: []session.Message{
			{ID: "m1", Role: session.RoleUser, Content: "hello"},
			{ID: "m2", Role: session.RoleAssistant, Content: "hi there"},
		},
		ToolCalls: []session.ToolCall{
			{ID: "t1", Name: "lookup", Result: "found"},
		},
	})
	if err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
}

func TestHistory_Messages(t *testing.T) {
	store := memory.New()
	seedSession(t, store, "s1")
	router := newHistoryRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/sessions/s1/messages", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		SessionID string            `json:"session_id"`
		Messages  []session.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body.SessionID != "s1" {
		t.Errorf("session_id = %q", body.SessionID)
	}
	if len(body.Messages) != 2 || body.Messages[0].Content != "hello" {
		t.Errorf("messages = %+v", body.Messages)
	}
}

func TestHistory_ToolCalls(t *testing.T) {
	store := memory.New()
	seedSession(t, store, "s1")
	router := newHistoryRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/sessions/s1/tool-calls", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		ToolCalls []session.ToolCall `json:"tool_calls"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(body.ToolCalls) != 1 || body.ToolCalls[0].Name != "lookup" {
		t.Errorf("tool_calls = %+v", body.ToolCalls)
	}
}

func TestHistory_UnknownSession(t *testing.T) {
	router := newHistoryRouter(memory.New())

	for _, path := range []string{
		"/v1/sessions/nope/messages",
		"/v1/sessions/nope/tool-calls",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestHistory_EmptyTranscriptIsEmptyArray(t *testing.T) {
	store := memory.New()
	if err := store.SaveSession(context.Background(), "s-empty", &storage.SessionState{SessionID: "s-empty"}); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
	router := newHistoryRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/sessions/s-empty/messages", nil))

	// null would break history consumers expecting an array
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if string(raw["messages"]) != "[]" {
		t.Errorf("messages = %s, want []", raw["messages"])
	}
}

func TestHistory_ListSessions(t *testing.T) {
	store := memory.New()
	seedSession(t, store, "s1")
	seedSession(t, store, "s2")
	router := newHistoryRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Sessions []string `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(body.Sessions) != 2 {
		t.Errorf("sessions = %v, want 2 ids", body.Sessions)
	}
}

func TestHistory_DeleteSession(t *testing.T) {
	store := memory.New()
	seedSession(t, store, "s1")
	router := newHistoryRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/v1/sessions/s1", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/v1/sessions/s1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing uses fallback", "", 50},
		{"valid", "limit=10", 10},
		{"zero", "limit=0", 0},
		{"negative uses fallback", "limit=-5", 50},
		{"garbage uses fallback", "limit=abc", 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/sessions?"+tt.query, nil)
			if got := queryInt(r, "limit", 50); got != tt.want {
				t.Errorf("queryInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

// failingStore errors on every operation.
type failingStore struct{}

var errStoreDown = errors.New("store connection refused")

func (failingStore) SaveSession(context.Context, string, *storage.SessionState) error {
	return errStoreDown
}

func (failingStore) LoadSession(context.Context, string) (*storage.SessionState, error) {
	return nil, errStoreDown
}

func (failingStore) ListSessions(context.Context, storage.ListOptions) ([]string, error) {
	return nil, errStoreDown
}

func (failingStore) DeleteSession(context.Context, string) error {
	return errStoreDown
}

func TestHistory_StoreErrorReachesRequestLog(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	router := chi.NewRouter()
	router.Use(server.LoggingMiddleware(logger))
	NewHistoryHandler(failingStore{}, testLogger()).Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/sessions", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	out := buf.String()
	if !strings.Contains(out, "request completed") {
		t.Fatalf("completion record never logged: %s", out)
	}
	if !strings.Contains(out, errStoreDown.Error()) {
		t.Errorf("completion record missing the storage error: %s", out)
	}
}
