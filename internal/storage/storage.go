// Package storage defines the session persistence contract consumed by the
// relay's closing phase and by cache hydration.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tjfontaine/agent-stream-relay/internal/session"
)

// ErrSessionNotFound is returned when a session has no persisted state.
var ErrSessionNotFound = errors.New("session not found")

// SessionState is the durable form of one session's conversation.
type SessionState struct {
	SessionID string             `json:"session_id"`
	Messages  []session.Message  `json:"messages"`
	ToolCalls []session.ToolCall `json:"tool_calls"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ListOptions controls session listing pagination.
type ListOptions struct {
	Limit  int
	Offset int
}

// SessionStore persists session state. SaveSession replaces the stored state
// for a session id; it runs on every stream close, including abrupt
// disconnects, so implementations must tolerate repeated saves of the same
// session.
type SessionStore interface {
	SaveSession(ctx context.Context, sessionID string, state *SessionState) error
	LoadSession(ctx context.Context, sessionID string) (*SessionState, error)
	ListSessions(ctx context.Context, opts ListOptions) ([]string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
