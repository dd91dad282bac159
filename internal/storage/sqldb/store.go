// Package sqldb is a SQL implementation of the session store backed by
// SQLite.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/agent-stream-relay/internal/session"
	"github.com/tjfontaine/agent-stream-relay/internal/storage"
)

// Store is a SQLite-backed implementation of storage.SessionStore.
type Store struct {
	db *sqlx.DB
}

var _ storage.SessionStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS tool_calls (
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			arguments TEXT,
			result TEXT,
			error TEXT,
			started_at TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, position),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, position)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveSession replaces the persisted state for sessionID in one transaction.
// The stored transcript mirrors the in-memory one exactly, so the simplest
// correct write is delete-and-reinsert rather than a diff.
func (s *Store) SaveSession(ctx context.Context, sessionID string, state *storage.SessionState) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, updated_at) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at=excluded.updated_at`,
		sessionID, now)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_calls WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear tool calls: %w", err)
	}

	for i, msg := range state.Messages {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, session_id, position, role, content, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, sessionID, i, msg.Role, msg.Content, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	for i, tc := range state.ToolCalls {
		args, err := marshalOrNull(tc.Arguments)
		if err != nil {
			return fmt.Errorf("failed to marshal tool arguments: %w", err)
		}
		result, err := marshalOrNull(tc.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal tool result: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tool_calls (id, session_id, position, name, arguments, result, error, started_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			tc.ID, sessionID, i, tc.Name, args, result, tc.Error, tc.StartedAt)
		if err != nil {
			return fmt.Errorf("failed to insert tool call: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadSession returns the persisted state for sessionID, or
// storage.ErrSessionNotFound if it was never saved.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (*storage.SessionState, error) {
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM sessions WHERE id = ?`, sessionID).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	state := &storage.SessionState{SessionID: sessionID, UpdatedAt: updatedAt}

	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, role, content, created_at FROM messages
		 WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var msg session.Message
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		state.Messages = append(state.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	tcRows, err := s.db.QueryxContext(ctx,
		`SELECT id, name, arguments, result, error, started_at FROM tool_calls
		 WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	defer tcRows.Close()
	for tcRows.Next() {
		var (
			tc           session.ToolCall
			args, result sql.NullString
			tcErr        sql.NullString
		)
		if err := tcRows.Scan(&tc.ID, &tc.Name, &args, &result, &tcErr, &tc.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		if args.Valid && args.String != "" {
			if err := json.Unmarshal([]byte(args.String), &tc.Arguments); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool arguments: %w", err)
			}
		}
		if result.Valid && result.String != "" {
			if err := json.Unmarshal([]byte(result.String), &tc.Result); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool result: %w", err)
			}
		}
		tc.Error = tcErr.String
		state.ToolCalls = append(state.ToolCalls, tc)
	}
	if err := tcRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tool calls: %w", err)
	}

	return state, nil
}

// ListSessions returns session ids ordered by most recent activity.
func (s *Store) ListSessions(ctx context.Context, opts storage.ListOptions) ([]string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteSession removes the session and its transcript.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return storage.ErrSessionNotFound
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func marshalOrNull(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
