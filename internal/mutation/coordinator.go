// Package mutation coordinates the "send message" operation: optimistic
// cache updates, per-session in-flight tracking, and reconcile-or-rollback
// once the stream's terminal outcome arrives.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/agent-stream-relay/internal/client"
	"github.com/tjfontaine/agent-stream-relay/internal/event"
	"github.com/tjfontaine/agent-stream-relay/internal/session"
)

// ErrSendInFlight is returned when a session already has an active send.
var ErrSendInFlight = errors.New("session already has a send in flight")

// Stream controls one opened stream.
type Stream interface {
	Cancel()
}

// Sender opens a stream for one send.
type Sender interface {
	Send(ctx context.Context, envelope event.Envelope, cb client.Callbacks) (Stream, error)
}

// ClientSender adapts client.Client to the Sender interface.
type ClientSender struct {
	Client *client.Client
}

func (s ClientSender) Send(ctx context.Context, envelope event.Envelope, cb client.Callbacks) (Stream, error) {
	h, err := s.Client.Send(ctx, envelope, cb)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// OnResult is invoked exactly once with the turn's outcome: nil on success,
// a descriptive error otherwise. The coordinator never retries a failed send;
// retrying a message send blindly risks duplicate side effects upstream.
type OnResult func(err error)

// turn is the state of one in-flight send. It captures the owning session id
// at send time, so every completion handler acts on the session the send was
// started for, not on whichever session is current when a frame arrives.
type turn struct {
	sessionID    string
	optimisticID string
	snapshot     []session.Message
	toolCalls    []session.ToolCall
	content      string
	handle       Stream

	// cancelRequested latches a Cancel that arrives while the stream is
	// still being opened, before handle is assigned.
	cancelRequested bool
}

// Coordinator is the single source of truth for which sessions have a send
// in flight. In-flight state is keyed by session id. A bare global "is
// loading" flag is exactly the bug class this exists to prevent: switching
// sessions mid-send must neither lose the owning session's indicator nor
// show a false one on the newly viewed session.
type Coordinator struct {
	mu       sync.Mutex
	inflight map[string]*turn

	cache  *session.Cache
	sender Sender
	logger *slog.Logger
}

// New creates a coordinator over the given cache and sender.
func New(cache *session.Cache, sender Sender, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		inflight: make(map[string]*turn),
		cache:    cache,
		sender:   sender,
		logger:   logger,
	}
}

// IsLoading reports whether the viewed session owns an in-flight send. The
// comparison joins on the session key; other sessions' sends never leak into
// this answer.
func (c *Coordinator) IsLoading(viewedSessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[viewedSessionID]
	return ok
}

// Send starts one send for sessionID. The optimistic user message is
// appended to the cache before any network round-trip; on failure it is
// rolled back to the snapshot taken here. Sends for different sessions
// proceed independently; a second send for the same session is rejected.
func (c *Coordinator) Send(ctx context.Context, sessionID, message string, onResult OnResult) error {
	c.mu.Lock()
	if _, exists := c.inflight[sessionID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSendInFlight, sessionID)
	}

	// Pending entry: snapshot, optimistic append, fresh per-turn state.
	t := &turn{
		sessionID:    sessionID,
		optimisticID: uuid.New().String(),
		snapshot:     c.cache.Messages(sessionID),
	}
	c.inflight[sessionID] = t
	c.mu.Unlock()

	optimistic := session.Message{
		ID:        t.optimisticID,
		Role:      session.RoleUser,
		Content:   message,
		Pending:   true,
		CreatedAt: time.Now(),
	}
	c.cache.AppendMessage(sessionID, optimistic)

	handle, err := c.sender.Send(ctx, event.Envelope{SessionID: sessionID, Message: message}, client.Callbacks{
		OnToolStart:    t.onToolStart,
		OnToolComplete: t.onToolComplete,
		OnResponse:     t.onResponse,
		OnDone:         func() { c.succeed(t, onResult) },
		OnError:        func(err error) { c.fail(t, err, onResult) },
	})
	if err != nil {
		c.fail(t, fmt.Errorf("failed to open stream: %w", err), onResult)
		return nil
	}

	c.mu.Lock()
	t.handle = handle
	pendingCancel := t.cancelRequested
	c.mu.Unlock()
	if pendingCancel {
		// A Cancel raced the dial; honor it now that the stream exists.
		handle.Cancel()
	}
	return nil
}

// Cancel aborts the in-flight send for sessionID, if any. The rollback and
// result delivery happen through the stream's terminal error callback. A
// cancel that lands while the stream is still dialing is latched and applied
// as soon as the handle exists.
func (c *Coordinator) Cancel(sessionID string) {
	c.mu.Lock()
	t, ok := c.inflight[sessionID]
	var handle Stream
	if ok {
		if t.handle == nil {
			t.cancelRequested = true
		}
		handle = t.handle
	}
	c.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
}

// onToolStart records a new in-flight tool call for this turn. Accumulation
// is per-turn: the list was cleared when the turn began, and grows across
// all of the turn's frames.
func (t *turn) onToolStart(evt *event.Event) {
	t.toolCalls = append(t.toolCalls, session.ToolCall{
		ID:        evt.ToolID,
		Name:      evt.ToolName,
		Arguments: evt.Arguments,
		StartedAt: evt.Timestamp,
	})
}

// onToolComplete resolves the matching tool call: by invocation id first,
// then by name plus first-unresolved. The result is set exactly once.
func (t *turn) onToolComplete(evt *event.Event) {
	for i := range t.toolCalls {
		tc := &t.toolCalls[i]
		if evt.ToolID != "" && tc.ID == evt.ToolID && tc.InFlight() {
			tc.Result = evt.Result
			return
		}
	}
	for i := range t.toolCalls {
		tc := &t.toolCalls[i]
		if tc.Name == evt.ToolName && tc.InFlight() {
			tc.Result = evt.Result
			return
		}
	}
}

func (t *turn) onResponse(evt *event.Event) {
	t.content = evt.Content
}

// succeed reconciles optimistic state with the authoritative outcome: the
// placeholder is confirmed in place, the assistant reply is appended, and
// the turn's tool calls are accumulated into the session's permanent
// history. Accumulate, never replace: the permanent list outlives turns.
func (c *Coordinator) succeed(t *turn, onResult OnResult) {
	if !c.finish(t) {
		return
	}

	messages := c.cache.Messages(t.sessionID)
	for _, msg := range messages {
		if msg.ID == t.optimisticID {
			confirmed := msg
			confirmed.Pending = false
			c.cache.ReplaceMessage(t.sessionID, t.optimisticID, confirmed)
			break
		}
	}

	if t.content != "" {
		c.cache.AppendMessage(t.sessionID, session.Message{
			ID:        uuid.New().String(),
			Role:      session.RoleAssistant,
			Content:   t.content,
			CreatedAt: time.Now(),
		})
	}
	c.cache.AppendToolCalls(t.sessionID, t.toolCalls...)

	if onResult != nil {
		onResult(nil)
	}
}

// fail rolls the session back to its pre-mutation snapshot and surfaces the
// error. No retry: the caller decides what happens next.
func (c *Coordinator) fail(t *turn, err error, onResult OnResult) {
	if !c.finish(t) {
		return
	}

	c.cache.RestoreMessages(t.sessionID, t.snapshot)
	c.logger.Warn("send failed, optimistic update rolled back",
		slog.String("session_id", t.sessionID),
		slog.String("error", err.Error()),
	)

	if onResult != nil {
		onResult(fmt.Errorf("send to session %s failed: %w", t.sessionID, err))
	}
}

// finish clears the in-flight entry for the turn's session. Returns false if
// the turn was already finished, making terminal handling idempotent.
func (c *Coordinator) finish(t *turn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.inflight[t.sessionID]
	if !ok || current != t {
		return false
	}
	delete(c.inflight, t.sessionID)
	return true
}
