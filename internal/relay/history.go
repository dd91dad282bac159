package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/agent-stream-relay/internal/server"
	"github.com/tjfontaine/agent-stream-relay/internal/session"
	"github.com/tjfontaine/agent-stream-relay/internal/storage"
)

// HistoryHandler serves persisted session history over REST. Clients use it
// to hydrate their session cache when switching sessions.
type HistoryHandler struct {
	store  storage.SessionStore
	logger *slog.Logger
}

// NewHistoryHandler creates a history handler over the given store.
func NewHistoryHandler(store storage.SessionStore, logger *slog.Logger) *HistoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryHandler{store: store, logger: logger}
}

// Register mounts the history routes on the router.
func (h *HistoryHandler) Register(r chi.Router) {
	r.Get("/v1/sessions", h.ListSessions)
	r.Get("/v1/sessions/{sessionID}/messages", h.Messages)
	r.Get("/v1/sessions/{sessionID}/tool-calls", h.ToolCalls)
	r.Delete("/v1/sessions/{sessionID}", h.DeleteSession)
}

// ListSessions returns persisted session ids, most recent first.
func (h *HistoryHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	opts := storage.ListOptions{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	ids, err := h.store.ListSessions(r.Context(), opts)
	if err != nil {
		server.AddError(r.Context(), err)
		h.logger.Error("failed to list sessions", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

// Messages returns the session's persisted transcript.
func (h *HistoryHandler) Messages(w http.ResponseWriter, r *http.Request) {
	state, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	messages := state.Messages
	if messages == nil {
		messages = []session.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": state.SessionID,
		"messages":   messages,
	})
}

// ToolCalls returns the session's persisted tool-call history.
func (h *HistoryHandler) ToolCalls(w http.ResponseWriter, r *http.Request) {
	state, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	toolCalls := state.ToolCalls
	if toolCalls == nil {
		toolCalls = []session.ToolCall{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": state.SessionID,
		"tool_calls": toolCalls,
	})
}

// DeleteSession removes a session's persisted state.
func (h *HistoryHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	err := h.store.DeleteSession(r.Context(), sessionID)
	if errors.Is(err, storage.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		server.AddError(r.Context(), err)
		h.logger.Error("failed to delete session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HistoryHandler) loadSession(w http.ResponseWriter, r *http.Request) (*storage.SessionState, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	state, err := h.store.LoadSession(r.Context(), sessionID)
	if errors.Is(err, storage.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		server.AddError(r.Context(), err)
		h.logger.Error("failed to load session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	return state, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
