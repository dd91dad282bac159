// Package memory provides an in-memory SessionStore for tests and for
// deployments that opt out of durable persistence.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/agent-stream-relay/internal/session"
	"github.com/tjfontaine/agent-stream-relay/internal/storage"
)

// Store is an in-memory implementation of storage.SessionStore.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*storage.SessionState
}

var _ storage.SessionStore = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*storage.SessionState),
	}
}

func (s *Store) SaveSession(ctx context.Context, sessionID string, state *storage.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := &storage.SessionState{
		SessionID: sessionID,
		Messages:  append([]session.Message(nil), state.Messages...),
		ToolCalls: append([]session.ToolCall(nil), state.ToolCalls...),
		UpdatedAt: time.Now(),
	}
	s.sessions[sessionID] = stored
	return nil
}

func (s *Store) LoadSession(ctx context.Context, sessionID string) (*storage.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, exists := s.sessions[sessionID]
	if !exists {
		return nil, storage.ErrSessionNotFound
	}

	return &storage.SessionState{
		SessionID: stored.SessionID,
		Messages:  append([]session.Message(nil), stored.Messages...),
		ToolCalls: append([]session.ToolCall(nil), stored.ToolCalls...),
		UpdatedAt: stored.UpdatedAt,
	}, nil
}

// ListSessions returns session ids most recently updated first, matching the
// ordering contract of the SQL store.
func (s *Store) ListSessions(ctx context.Context, opts storage.ListOptions) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.sessions[ids[i]], s.sessions[ids[j]]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return ids[i] < ids[j]
	})

	// Simple pagination
	start := opts.Offset
	if start >= len(ids) {
		return []string{}, nil
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(ids) {
		end = len(ids)
	}
	return ids[start:end], nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return storage.ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}
