// Package client dials the relay and presents its frame stream as typed
// callbacks with a single guaranteed terminal outcome.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tjfontaine/agent-stream-relay/internal/event"
)

var (
	// ErrCancelled is delivered to OnError when the caller cancels the
	// stream before a terminal frame arrives.
	ErrCancelled = errors.New("stream cancelled")

	// ErrStreamTimeout is delivered to OnError when no frame arrives within
	// the watchdog window. The relay cannot guarantee delivery of its own
	// close notification, so the client owns this timeout.
	ErrStreamTimeout = errors.New("no terminal frame received within timeout")
)

// DefaultStreamTimeout is the watchdog window between frames.
const DefaultStreamTimeout = 60 * time.Second

// Callbacks receives the stream's frames. Dispatch is synchronous per frame
// and in arrival order; exactly one of OnDone or OnError fires per stream.
// Nil callbacks are skipped.
type Callbacks struct {
	OnToolStart    func(evt *event.Event)
	OnToolComplete func(evt *event.Event)
	OnResponse     func(evt *event.Event)
	OnDone         func()
	OnError        func(err error)
}

// Option configures a Client.
type Option func(*Client)

// WithStreamTimeout sets the watchdog window between frames.
func WithStreamTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.streamTimeout = d
	}
}

// WithDialer sets a custom websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client opens streams against a relay endpoint.
type Client struct {
	url           string
	dialer        *websocket.Dialer
	streamTimeout time.Duration
	logger        *slog.Logger
}

// New creates a client for the relay at url (a ws:// or wss:// endpoint).
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:           url,
		dialer:        websocket.DefaultDialer,
		streamTimeout: DefaultStreamTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle controls one in-flight stream.
type Handle struct {
	conn      *websocket.Conn
	cancelled atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Cancel closes the underlying connection. After Cancel, the stream's
// terminal outcome is a single OnError(ErrCancelled) if no terminal frame
// was delivered yet; no other callbacks fire. Idempotent.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
	h.close()
}

// Done is closed once the terminal outcome has been dispatched.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) close() {
	h.closeOnce.Do(func() {
		h.conn.Close()
	})
}

// Send opens a connection, sends the request envelope, and dispatches frames
// to cb until the terminal outcome. The returned handle cancels the stream.
func (c *Client) Send(ctx context.Context, envelope event.Envelope, cb Callbacks) (*Handle, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	if err := conn.WriteJSON(envelope); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send request envelope: %w", err)
	}

	h := &Handle{conn: conn, done: make(chan struct{})}
	go c.readLoop(h, cb)
	return h, nil
}

// readLoop dispatches incoming frames in arrival order. It owns the terminal
// outcome: whatever ends the loop, exactly one of OnDone or OnError fires.
func (c *Client) readLoop(h *Handle, cb Callbacks) {
	defer close(h.done)
	defer h.close()

	for {
		// The watchdog is armed before every read: a stream whose relay
		// died mid-turn must not leave the caller waiting forever.
		h.conn.SetReadDeadline(time.Now().Add(c.streamTimeout))
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			c.dispatchTransportError(h, cb, err)
			return
		}

		evt := event.Decode(data)
		switch evt.Type {
		case event.TypeToolStart:
			if cb.OnToolStart != nil {
				cb.OnToolStart(evt)
			}
		case event.TypeToolComplete:
			if cb.OnToolComplete != nil {
				cb.OnToolComplete(evt)
			}
		case event.TypeResponse:
			if cb.OnResponse != nil {
				cb.OnResponse(evt)
			}
		case event.TypeDone:
			if cb.OnDone != nil {
				cb.OnDone()
			}
			return
		case event.TypeError:
			if cb.OnError != nil {
				cb.OnError(errors.New(errorMessage(evt)))
			}
			return
		default:
			// Best-effort decoding can yield frames without a usable
			// type; skip them rather than kill the stream.
			c.logger.Warn("skipping frame with unknown type", slog.String("type", string(evt.Type)))
		}
	}
}

// dispatchTransportError synthesizes the terminal outcome for a stream that
// ended without a terminal frame.
func (c *Client) dispatchTransportError(h *Handle, cb Callbacks, err error) {
	if cb.OnError == nil {
		return
	}
	if h.cancelled.Load() {
		cb.OnError(ErrCancelled)
		return
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		cb.OnError(ErrStreamTimeout)
		return
	}
	cb.OnError(fmt.Errorf("stream transport failed: %w", err))
}

func errorMessage(evt *event.Event) string {
	if evt.Message != "" {
		return evt.Message
	}
	return "stream ended with an unspecified error"
}
