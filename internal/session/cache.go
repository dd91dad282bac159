package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds how many sessions the cache holds before the least
// recently used one is evicted. Evicted sessions are rehydrated from storage
// on next access, so eviction loses nothing durable.
const DefaultCacheSize = 128

// entry is the cached state for one session.
type entry struct {
	messages  []Message
	toolCalls []ToolCall
}

// Cache is a bounded, session-keyed store of conversation state. All reads
// return copies; the only mutation paths are ApplyHydration, AppendMessage,
// ReplaceMessage, RestoreMessages and AppendToolCalls, so callers cannot
// alias internal slices across a session switch.
type Cache struct {
	mu       sync.RWMutex
	sessions *lru.Cache[string, *entry]
	logger   *slog.Logger
}

// NewCache creates a cache bounded to size sessions. Size <= 0 uses
// DefaultCacheSize.
func NewCache(size int, logger *slog.Logger) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	inner, err := lru.NewWithEvict(size, func(sessionID string, _ *entry) {
		logger.Debug("session evicted from cache", slog.String("session_id", sessionID))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &Cache{sessions: inner, logger: logger}, nil
}

// LoadFunc fetches a session's persisted history.
type LoadFunc func(ctx context.Context, sessionID string) ([]Message, []ToolCall, error)

// Hydrate fetches sessionID's history via load and applies it. The session id
// is bound here, at fetch initiation: if the caller's notion of "current
// session" changes while the fetch is outstanding, the result is still
// written into the slot it was requested for.
func (c *Cache) Hydrate(ctx context.Context, load LoadFunc, sessionID string) error {
	id := sessionID
	messages, toolCalls, err := load(ctx, id)
	if err != nil {
		return fmt.Errorf("hydrate session %s: %w", id, err)
	}
	c.ApplyHydration(id, messages)
	if len(toolCalls) > 0 {
		c.mu.Lock()
		c.get(id).toolCalls = append([]ToolCall(nil), toolCalls...)
		c.mu.Unlock()
	}
	return nil
}

// ApplyHydration replaces the stored message list for sessionID wholesale.
// Hydration never merges: partial merges across a session switch are how one
// session's transcript ends up in another session's slot.
func (c *Cache) ApplyHydration(sessionID string, messages []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(sessionID).messages = append([]Message(nil), messages...)
}

// AppendMessage appends one message to sessionID's transcript in place.
func (c *Cache) AppendMessage(sessionID string, msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.get(sessionID)
	e.messages = append(e.messages, msg)
}

// ReplaceMessage swaps the message with messageID for replacement, keeping
// its position. Returns false if no such message exists.
func (c *Cache) ReplaceMessage(sessionID, messageID string, replacement Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.get(sessionID)
	for i := range e.messages {
		if e.messages[i].ID == messageID {
			e.messages[i] = replacement
			return true
		}
	}
	return false
}

// RestoreMessages overwrites sessionID's transcript with a snapshot
// previously taken via Messages. Used for optimistic-update rollback.
func (c *Cache) RestoreMessages(sessionID string, snapshot []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(sessionID).messages = append([]Message(nil), snapshot...)
}

// AppendToolCalls accumulates calls into sessionID's permanent tool-call
// history. Accumulation never replaces the list.
func (c *Cache) AppendToolCalls(sessionID string, calls ...ToolCall) {
	if len(calls) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.get(sessionID)
	e.toolCalls = append(e.toolCalls, calls...)
}

// Messages returns a copy of sessionID's transcript.
func (c *Cache) Messages(sessionID string) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.sessions.Get(sessionID); ok {
		return append([]Message(nil), e.messages...)
	}
	return nil
}

// ToolCalls returns a copy of sessionID's tool-call history.
func (c *Cache) ToolCalls(sessionID string) []ToolCall {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.sessions.Get(sessionID); ok {
		return append([]ToolCall(nil), e.toolCalls...)
	}
	return nil
}

// Contains reports whether sessionID is currently cached.
func (c *Cache) Contains(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions.Contains(sessionID)
}

// Clear evicts sessionID from the cache.
func (c *Cache) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions.Remove(sessionID)
}

// Len returns the number of cached sessions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions.Len()
}

// get returns the entry for sessionID, creating it if absent. Callers hold mu.
func (c *Cache) get(sessionID string) *entry {
	if e, ok := c.sessions.Get(sessionID); ok {
		return e
	}
	e := &entry{}
	c.sessions.Add(sessionID, e)
	return e
}
