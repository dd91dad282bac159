// Package relay bridges the upstream agent runner's pull-based event stream
// to push-based WebSocket connections, one request per connection.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tjfontaine/agent-stream-relay/internal/agent"
	"github.com/tjfontaine/agent-stream-relay/internal/event"
	"github.com/tjfontaine/agent-stream-relay/internal/server"
	"github.com/tjfontaine/agent-stream-relay/internal/session"
	"github.com/tjfontaine/agent-stream-relay/internal/storage"
)

// state is the per-connection protocol state. Transitions only move forward:
// AwaitingRequest -> Streaming -> Closing -> Closed.
type state int

const (
	stateAwaitingRequest state = iota
	stateStreaming
	stateClosing
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateAwaitingRequest:
		return "awaiting_request"
	case stateStreaming:
		return "streaming"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

const (
	// envelopeTimeout bounds how long a connected client may take to send
	// its request envelope.
	envelopeTimeout = 10 * time.Second

	// persistTimeout bounds the session save in the closing phase. The save
	// runs on a background context so a dead client connection cannot
	// cancel it.
	persistTimeout = 5 * time.Second

	writeTimeout = 10 * time.Second
)

// Option configures a Relay.
type Option func(*Relay)

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(rl *Relay) {
		rl.upgrader.CheckOrigin = fn
	}
}

// Relay is the WebSocket handler that drives one agent run per connection.
type Relay struct {
	runner   agent.Runner
	store    storage.SessionStore
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a relay backed by the given runner and session store.
func New(runner agent.Runner, store storage.SessionStore, logger *slog.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	rl := &Relay{
		runner: runner,
		store:  store,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// ServeHTTP upgrades the connection and runs the stream lifecycle. The
// upgrade is acknowledged before any business logic so the client never
// waits on the runner to learn whether its connection was accepted.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		rl.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	sc := &streamConn{
		relay:  rl,
		conn:   conn,
		logger: rl.logger.With(slog.String("conn_id", uuid.New().String())),
		state:  stateAwaitingRequest,
		reqCtx: r.Context(),
	}
	sc.run()
}

// streamConn is the per-connection state machine.
type streamConn struct {
	relay  *Relay
	conn   *websocket.Conn
	logger *slog.Logger
	reqCtx context.Context

	state        state
	terminalSent bool

	// turn state accumulated while streaming, persisted in the closing phase
	sessionID string
	messages  []session.Message
	toolCalls []session.ToolCall
}

func (sc *streamConn) transition(to state) {
	sc.logger.Debug("state transition",
		slog.String("from", sc.state.String()),
		slog.String("to", to.String()),
	)
	sc.state = to
}

func (sc *streamConn) run() {
	defer sc.close()

	envelope, ok := sc.awaitRequest()
	if !ok {
		return
	}

	sc.transition(stateStreaming)
	sc.stream(envelope)
}

// awaitRequest blocks for the single request envelope. A malformed envelope
// gets an error frame and ends the connection.
func (sc *streamConn) awaitRequest() (*event.Envelope, bool) {
	sc.conn.SetReadDeadline(time.Now().Add(envelopeTimeout))
	_, data, err := sc.conn.ReadMessage()
	if err != nil {
		sc.logger.Info("client left before sending request", slog.String("error", err.Error()))
		return nil, false
	}
	sc.conn.SetReadDeadline(time.Time{})

	var envelope event.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		sc.sendTerminal(event.NewError("malformed request envelope"))
		return nil, false
	}
	if !envelope.Valid() {
		sc.sendTerminal(event.NewError("request envelope requires session_id and message"))
		return nil, false
	}

	sc.sessionID = envelope.SessionID
	sc.logger = sc.logger.With(slog.String("session_id", envelope.SessionID))
	// Tag the HTTP request log so the upgrade's completion record names the
	// session it served.
	server.AddLogField(sc.reqCtx, "session_id", envelope.SessionID)
	return &envelope, true
}

// stream drives the runner and forwards every event as its own frame. Events
// are written as they arrive; buffering frames before flushing would reorder
// perceived latency and defeat streaming.
func (sc *streamConn) stream(envelope *event.Envelope) {
	ctx, cancel := context.WithCancel(sc.reqCtx)
	defer cancel()

	// Seed the turn with prior persisted state so the closing-phase save
	// carries the whole transcript, then record the user's message.
	sc.loadPriorState(ctx)
	sc.messages = append(sc.messages, session.Message{
		ID:        uuid.New().String(),
		Role:      session.RoleUser,
		Content:   envelope.Message,
		CreatedAt: time.Now(),
	})

	// Read pump: the client never sends again after the envelope, so any
	// read completion means the peer closed or the connection dropped.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := sc.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events, err := sc.relay.runner.Run(ctx, envelope.SessionID, envelope.Message)
	if err != nil {
		sc.logger.Error("runner start failed", slog.String("error", err.Error()))
		sc.sendTerminal(event.NewError(fmt.Sprintf("agent runner unavailable: %v", err)))
		return
	}

	for {
		select {
		case res, open := <-events:
			if !open {
				// Producer exhausted: synthesize the single done frame.
				sc.sendTerminal(event.NewDone())
				return
			}
			if res.Err != nil {
				sc.logger.Error("runner error mid-stream", slog.String("error", res.Err.Error()))
				sc.sendTerminal(event.NewError(res.Err.Error()))
				return
			}
			sc.accumulate(res.Event)
			if !sc.sendFrame(res.Event) {
				return
			}
		case <-disconnected:
			// Expected whenever a client cancels; not an error.
			sc.logger.Info("client disconnected mid-stream")
			cancel()
			return
		case <-ctx.Done():
			sc.logger.Info("stream context cancelled")
			return
		}
	}
}

// loadPriorState seeds the turn's transcript from storage, best-effort. A
// fresh session simply has nothing persisted yet.
func (sc *streamConn) loadPriorState(ctx context.Context) {
	prior, err := sc.relay.store.LoadSession(ctx, sc.sessionID)
	if err != nil {
		if err != storage.ErrSessionNotFound {
			sc.logger.Warn("failed to load prior session state", slog.String("error", err.Error()))
		}
		return
	}
	sc.messages = prior.Messages
	sc.toolCalls = prior.ToolCalls
}

// accumulate folds a forwarded event into the turn state that the closing
// phase persists.
func (sc *streamConn) accumulate(evt *event.Event) {
	switch evt.Type {
	case event.TypeToolStart:
		sc.toolCalls = append(sc.toolCalls, session.ToolCall{
			ID:        evt.ToolID,
			Name:      evt.ToolName,
			Arguments: evt.Arguments,
			StartedAt: evt.Timestamp,
		})
	case event.TypeToolComplete:
		sc.resolveToolCall(evt)
	case event.TypeResponse:
		sc.messages = append(sc.messages, session.Message{
			ID:        uuid.New().String(),
			Role:      session.RoleAssistant,
			Content:   evt.Content,
			CreatedAt: time.Now(),
		})
	}
}

// resolveToolCall sets the result on the matching in-flight tool call,
// matching by invocation id first and by name plus first-unresolved second.
func (sc *streamConn) resolveToolCall(evt *event.Event) {
	for i := range sc.toolCalls {
		tc := &sc.toolCalls[i]
		if evt.ToolID != "" && tc.ID == evt.ToolID && tc.InFlight() {
			tc.Result = evt.Result
			return
		}
	}
	for i := range sc.toolCalls {
		tc := &sc.toolCalls[i]
		if tc.Name == evt.ToolName && tc.InFlight() {
			tc.Result = evt.Result
			return
		}
	}
	sc.logger.Warn("tool_complete with no matching tool_start",
		slog.String("tool_id", evt.ToolID),
		slog.String("tool_name", evt.ToolName),
	)
}

// sendFrame writes one frame immediately. Returns false on write failure,
// which means the client is gone.
func (sc *streamConn) sendFrame(evt *event.Event) bool {
	sc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := sc.conn.WriteMessage(websocket.TextMessage, event.Encode(evt)); err != nil {
		sc.logger.Info("frame write failed, client gone", slog.String("error", err.Error()))
		return false
	}
	return true
}

// sendTerminal writes the terminal frame at most once per connection.
func (sc *streamConn) sendTerminal(evt *event.Event) {
	if sc.terminalSent {
		return
	}
	sc.terminalSent = true
	sc.sendFrame(evt)
}

// close runs the closing phase: persist session state regardless of how
// streaming ended, then release the connection. Deferred from run so a
// mid-stream disconnect or runner panic cannot skip the save.
func (sc *streamConn) close() {
	if r := recover(); r != nil {
		sc.logger.Error("panic during stream", slog.Any("panic", r))
		sc.sendTerminal(event.NewError("internal relay error"))
	}

	sc.transition(stateClosing)

	if sc.sessionID != "" {
		// Decouple persistence from the (possibly dead) connection.
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		state := &storage.SessionState{
			SessionID: sc.sessionID,
			Messages:  sc.messages,
			ToolCalls: sc.toolCalls,
		}
		if err := sc.relay.store.SaveSession(ctx, sc.sessionID, state); err != nil {
			sc.logger.Error("failed to persist session state", slog.String("error", err.Error()))
		}
	}

	sc.conn.Close()
	sc.transition(stateClosed)
}
