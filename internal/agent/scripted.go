package agent

import (
	"context"

	"github.com/tjfontaine/agent-stream-relay/internal/event"
)

// ScriptedRunner replays a fixed sequence of events for every run. It backs
// tests and local development when no upstream runner is configured.
type ScriptedRunner struct {
	events []*event.Event
	err    error
}

var _ Runner = (*ScriptedRunner)(nil)

// NewScripted creates a runner that yields the given events in order.
func NewScripted(events ...*event.Event) *ScriptedRunner {
	return &ScriptedRunner{events: events}
}

// FailWith makes the run end with err after the scripted events are emitted.
func (s *ScriptedRunner) FailWith(err error) *ScriptedRunner {
	s.err = err
	return s
}

func (s *ScriptedRunner) Run(ctx context.Context, sessionID, message string) (<-chan Result, error) {
	out := make(chan Result)
	go func() {
		defer close(out)
		for _, evt := range s.events {
			select {
			case out <- Result{Event: evt}:
			case <-ctx.Done():
				return
			}
		}
		if s.err != nil {
			select {
			case out <- Result{Err: s.err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}
