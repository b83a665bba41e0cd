// ABOUTME: Guest user persistence for the SQLite store
// ABOUTME: Guests are scoped to a widget and can be matched by email or phone

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateGuest inserts a guest. The widget must exist.
func (s *SQLiteStore) CreateGuest(ctx context.Context, g *Guest) error {
	query := `
		INSERT INTO guest_users (id, widget_id, name, email, phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		g.ID,
		g.WidgetID,
		g.Name,
		nullString(g.Email),
		nullString(g.Phone),
		formatTime(g.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting guest: %w", err)
	}

	s.logger.Debug("created guest", "id", g.ID, "widget_id", g.WidgetID)
	return nil
}

// GetGuest retrieves a guest by id.
// Returns ErrNotFound if the guest doesn't exist.
func (s *SQLiteStore) GetGuest(ctx context.Context, id string) (*Guest, error) {
	return s.queryGuest(ctx, `WHERE id = ?`, id)
}

// FindGuestByEmail returns the earliest guest of widgetID with the given email.
func (s *SQLiteStore) FindGuestByEmail(ctx context.Context, widgetID, email string) (*Guest, error) {
	return s.queryGuest(ctx, `WHERE widget_id = ? AND email = ? ORDER BY created_at LIMIT 1`, widgetID, email)
}

// FindGuestByPhone returns the earliest guest of widgetID with the given phone.
func (s *SQLiteStore) FindGuestByPhone(ctx context.Context, widgetID, phone string) (*Guest, error) {
	return s.queryGuest(ctx, `WHERE widget_id = ? AND phone = ? ORDER BY created_at LIMIT 1`, widgetID, phone)
}

func (s *SQLiteStore) queryGuest(ctx context.Context, where string, args ...any) (*Guest, error) {
	query := `SELECT id, widget_id, name, email, phone, created_at FROM guest_users ` + where

	var g Guest
	var email, phone sql.NullString
	var created string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&g.ID,
		&g.WidgetID,
		&g.Name,
		&email,
		&phone,
		&created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying guest: %w", err)
	}

	g.Email = stringPtr(email)
	g.Phone = stringPtr(phone)
	if g.CreatedAt, err = parseTime("created_at", created); err != nil {
		return nil, err
	}
	return &g, nil
}
