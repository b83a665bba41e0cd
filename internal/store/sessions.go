// ABOUTME: Chat session and guest message persistence for the SQLite store
// ABOUTME: Sessions list newest first; messages list in creation order

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession inserts a chat session. The guest must exist.
func (s *SQLiteStore) CreateSession(ctx context.Context, cs *ChatSession) error {
	query := `
		INSERT INTO chat_sessions (id, guest_id, origin, created_at, last_message_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		cs.ID,
		cs.GuestID,
		cs.Origin,
		formatTime(cs.CreatedAt),
		formatTime(cs.LastMessageAt),
		cs.IsActive,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created session", "id", cs.ID, "guest_id", cs.GuestID, "origin", cs.Origin)
	return nil
}

const sessionColumns = `id, guest_id, origin, created_at, last_message_at, summary,
	summary_generated_at, top_intent, is_active`

func scanSession(row rowScanner) (*ChatSession, error) {
	var cs ChatSession
	var created, last string
	var summary, generated, intent sql.NullString
	if err := row.Scan(
		&cs.ID,
		&cs.GuestID,
		&cs.Origin,
		&created,
		&last,
		&summary,
		&generated,
		&intent,
		&cs.IsActive,
	); err != nil {
		return nil, err
	}

	var err error
	if cs.CreatedAt, err = parseTime("created_at", created); err != nil {
		return nil, err
	}
	if cs.LastMessageAt, err = parseTime("last_message_at", last); err != nil {
		return nil, err
	}
	if generated.Valid {
		t, err := parseTime("summary_generated_at", generated.String)
		if err != nil {
			return nil, err
		}
		cs.SummaryGeneratedAt = &t
	}
	cs.Summary = stringPtr(summary)
	cs.TopIntent = stringPtr(intent)
	return &cs, nil
}

// GetSession retrieves a session by id.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*ChatSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ?`, id)
	cs, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return cs, nil
}

// TouchSession sets last_message_at.
func (s *SQLiteStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET last_message_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGuestSessions returns a guest's sessions, newest first.
// If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListGuestSessions(ctx context.Context, guestID string, limit int) ([]*ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE guest_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		guestID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ChatSession
	for rows.Next() {
		cs, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

// UpdateSessionAnalysis stores the summary and top intent of a session.
func (s *SQLiteStore) UpdateSessionAnalysis(ctx context.Context, id, summary, intent string, at time.Time) (*ChatSession, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET summary = ?, top_intent = ?, summary_generated_at = ? WHERE id = ?`,
		summary, intent, formatTime(at), id)
	if err != nil {
		return nil, fmt.Errorf("updating session analysis: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.GetSession(ctx, id)
}

// SaveMessage saves a message to the database
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *GuestMessage) error {
	query := `
		INSERT INTO guest_messages (id, guest_id, session_id, sender, message_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	var sessionID any
	if msg.SessionID != "" {
		sessionID = msg.SessionID
	}
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.GuestID,
		sessionID,
		msg.Sender,
		msg.Text,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// GetSessionMessages returns a session's messages in creation order.
// If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]*GuestMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guest_id, session_id, sender, message_text, created_at
		FROM guest_messages
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?
	`, sessionID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*GuestMessage
	for rows.Next() {
		var m GuestMessage
		var created string
		if err := rows.Scan(&m.ID, &m.GuestID, &m.SessionID, &m.Sender, &m.Text, &created); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		if m.CreatedAt, err = parseTime("created_at", created); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}
