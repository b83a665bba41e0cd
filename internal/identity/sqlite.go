// ABOUTME: SQLite implementation of the Identity Store using modernc.org/sqlite
// ABOUTME: One row per widget key; the database file survives process restarts

package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/sten-widget/internal/widget"
)

// SQLiteStore persists identities in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the identity database at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "identity")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating identity directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening identity database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS guest_identities (
			storage_key TEXT PRIMARY KEY,
			guest_id    TEXT NOT NULL,
			saved_at    TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating identity schema: %w", err)
	}

	logger.Info("identity store initialized", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Load returns the identity for widgetID, or ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, widgetID string) (*widget.GuestIdentity, error) {
	var id widget.GuestIdentity
	err := s.db.QueryRowContext(ctx,
		`SELECT guest_id FROM guest_identities WHERE storage_key = ?`,
		StorageKey(widgetID),
	).Scan(&id.GuestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity: %w", err)
	}
	return &id, nil
}

// Save writes the identity for widgetID.
func (s *SQLiteStore) Save(ctx context.Context, widgetID string, id widget.GuestIdentity) error {
	if err := validate(id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guest_identities (storage_key, guest_id, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(storage_key) DO UPDATE SET guest_id = excluded.guest_id, saved_at = excluded.saved_at
	`, StorageKey(widgetID), id.GuestID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving identity: %w", err)
	}
	s.logger.Debug("saved guest identity", "widget_id", widgetID, "guest_id", id.GuestID)
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
