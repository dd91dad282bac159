// Package session holds the in-memory view of per-session conversation
// state: ordered messages and tool calls keyed by session id.
package session

import "time"

// Message is one entry in a session's conversation transcript. Pending marks
// an optimistic placeholder that has not been confirmed by the server yet.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Pending   bool      `json:"pending,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolCall records a single tool invocation. Result stays nil while the
// invocation is in flight and is set exactly once when the matching
// completion arrives.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
}

// InFlight reports whether the tool call is still awaiting its result.
func (t *ToolCall) InFlight() bool {
	return t.Result == nil && t.Error == ""
}
