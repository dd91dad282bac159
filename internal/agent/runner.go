// Package agent abstracts the upstream agent runner that produces the event
// stream relayed to clients.
package agent

import (
	"context"

	"github.com/tjfontaine/agent-stream-relay/internal/event"
)

// Result carries one step of a run: either an event or a terminal error.
type Result struct {
	Event *event.Event
	Err   error
}

// Runner drives one agent turn for a session and yields its events in emit
// order. The returned channel is closed when the run is exhausted; a Result
// with Err set ends the run abnormally. Implementations must respect ctx
// cancellation and stop producing promptly.
type Runner interface {
	Run(ctx context.Context, sessionID, message string) (<-chan Result, error)
}
