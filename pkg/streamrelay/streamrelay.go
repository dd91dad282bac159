// Package streamrelay provides the public API for embedding the stream relay.
// This is the stable API for external consumers.
package streamrelay

import (
	"github.com/tjfontaine/agent-stream-relay/internal/agent"
	"github.com/tjfontaine/agent-stream-relay/internal/client"
	"github.com/tjfontaine/agent-stream-relay/internal/event"
	"github.com/tjfontaine/agent-stream-relay/internal/relay"
	"github.com/tjfontaine/agent-stream-relay/internal/storage"
	"github.com/tjfontaine/agent-stream-relay/internal/storage/memory"
	"github.com/tjfontaine/agent-stream-relay/internal/storage/sqldb"
)

// Relay is the WebSocket handler that drives one agent run per connection.
// See internal/relay.Relay for full documentation.
type Relay = relay.Relay

// Option is a functional option for configuring a Relay.
type Option = relay.Option

// New creates a relay handler. Mount it on any router:
//
//	rl := streamrelay.New(runner, store, logger)
//	mux.Handle("/v1/stream", rl)
var New = relay.New

// WithCheckOrigin overrides the WebSocket upgrader's origin check.
var WithCheckOrigin = relay.WithCheckOrigin

// HistoryHandler serves persisted session history over REST.
type HistoryHandler = relay.HistoryHandler

// NewHistoryHandler creates a history handler over a session store.
var NewHistoryHandler = relay.NewHistoryHandler

// Runner drives one agent turn per call.
type Runner = agent.Runner

// NewHTTPRunner creates a runner client for a remote agent endpoint.
var NewHTTPRunner = agent.NewHTTPRunner

// SessionStore persists session transcripts between turns.
type SessionStore = storage.SessionStore

// Storage backends
var (
	NewMemoryStore = memory.New
	NewSQLiteStore = sqldb.New
)

// Client opens streams against a relay endpoint.
type Client = client.Client

// Callbacks receives a stream's frames as typed callbacks.
type Callbacks = client.Callbacks

// NewClient creates a stream client for a ws:// or wss:// relay endpoint.
var NewClient = client.New

// Envelope is the request a stream client sends to open a turn.
type Envelope = event.Envelope

// Event is one frame of the stream protocol.
type Event = event.Event
