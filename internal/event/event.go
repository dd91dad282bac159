// Package event defines the frames exchanged between the relay and its
// clients, and the codec that puts them on the wire.
package event

import "time"

// Type discriminates stream frames.
type Type string

const (
	TypeToolStart    Type = "tool_start"
	TypeToolComplete Type = "tool_complete"
	TypeResponse     Type = "response"
	TypeError        Type = "error"
	TypeDone         Type = "done"
)

// ToolRef is a lightweight reference to a tool invocation, carried on
// response frames so clients can correlate the turn's tool activity.
type ToolRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Event is one frame of the server-to-client stream. All payload fields are
// optional; which ones are populated depends on Type. The producer is an
// external process with no static guarantees about payload shapes, so
// consumers must handle absent fields rather than assume them.
type Event struct {
	Type Type `json:"type"`

	// tool_start / tool_complete
	ToolID    string         `json:"tool_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`

	// response
	Content   string    `json:"content,omitempty"`
	ToolCalls []ToolRef `json:"tool_calls,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Terminal reports whether the frame ends the stream's logical lifecycle.
func (e *Event) Terminal() bool {
	return e.Type == TypeDone || e.Type == TypeError
}

// NewToolStart builds a tool_start frame.
func NewToolStart(toolID, toolName string, arguments map[string]any) *Event {
	return &Event{
		Type:      TypeToolStart,
		ToolID:    toolID,
		ToolName:  toolName,
		Arguments: arguments,
		Timestamp: time.Now(),
	}
}

// NewToolComplete builds a tool_complete frame.
func NewToolComplete(toolID, toolName string, result any) *Event {
	return &Event{
		Type:      TypeToolComplete,
		ToolID:    toolID,
		ToolName:  toolName,
		Result:    result,
		Timestamp: time.Now(),
	}
}

// NewResponse builds a response frame.
func NewResponse(content string, toolCalls []ToolRef) *Event {
	return &Event{
		Type:      TypeResponse,
		Content:   content,
		ToolCalls: toolCalls,
		Timestamp: time.Now(),
	}
}

// NewError builds an error frame with a human-readable message.
func NewError(message string) *Event {
	return &Event{Type: TypeError, Message: message}
}

// NewDone builds the done frame.
func NewDone() *Event {
	return &Event{Type: TypeDone}
}
