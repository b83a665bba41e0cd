// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides widget and guest persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS widgets (
			public_widget_id   TEXT PRIMARY KEY,
			owner_id           TEXT NOT NULL,
			business_name      TEXT NOT NULL DEFAULT '',
			agent_instruction  TEXT,
			theme              TEXT NOT NULL DEFAULT 'light',
			primary_color      TEXT NOT NULL DEFAULT '#000000',
			icon_url           TEXT,
			welcome_message    TEXT,
			initial_ai_message TEXT,
			send_initial_message_automatically INTEGER NOT NULL DEFAULT 1,
			created_at         TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS guest_users (
			id         TEXT PRIMARY KEY,
			widget_id  TEXT NOT NULL REFERENCES widgets(public_widget_id),
			name       TEXT NOT NULL,
			email      TEXT,
			phone      TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_guest_users_email ON guest_users(widget_id, email);
		CREATE INDEX IF NOT EXISTS idx_guest_users_phone ON guest_users(widget_id, phone);

		CREATE TABLE IF NOT EXISTS chat_sessions (
			id              TEXT PRIMARY KEY,
			guest_id        TEXT NOT NULL REFERENCES guest_users(id),
			origin          TEXT NOT NULL DEFAULT 'auto-start',
			created_at      TEXT NOT NULL,
			last_message_at TEXT NOT NULL,
			summary         TEXT,
			top_intent      TEXT,
			is_active       INTEGER NOT NULL DEFAULT 1,

			CHECK (origin IN ('auto-start', 'manual', 'resumed'))
		);

		CREATE INDEX IF NOT EXISTS idx_chat_sessions_guest ON chat_sessions(guest_id, created_at);

		CREATE TABLE IF NOT EXISTS guest_messages (
			id           TEXT PRIMARY KEY,
			guest_id     TEXT NOT NULL REFERENCES guest_users(id),
			session_id   TEXT REFERENCES chat_sessions(id),
			sender       TEXT NOT NULL,
			message_text TEXT NOT NULL,
			created_at   TEXT NOT NULL,

			CHECK (sender IN ('guest', 'ai'))
		);

		CREATE INDEX IF NOT EXISTS idx_guest_messages_session ON guest_messages(session_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "chat_sessions",
			column: "summary_generated_at",
			apply:  `ALTER TABLE chat_sessions ADD COLUMN summary_generated_at TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(
			`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column,
		).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "PRIMARY KEY constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(field, s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// CreateWidget inserts a widget. Returns ErrDuplicate if the public id is taken.
func (s *SQLiteStore) CreateWidget(ctx context.Context, w *Widget) error {
	query := `
		INSERT INTO widgets (public_widget_id, owner_id, business_name, agent_instruction, theme,
			primary_color, icon_url, welcome_message, initial_ai_message,
			send_initial_message_automatically, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		w.PublicID,
		w.OwnerID,
		w.BusinessName,
		nullString(w.AgentInstruction),
		w.Theme,
		w.PrimaryColor,
		nullString(w.IconURL),
		nullString(w.WelcomeMessage),
		nullString(w.InitialAIMessage),
		w.SendInitialAutomatically,
		formatTime(w.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting widget: %w", err)
	}

	s.logger.Debug("created widget", "public_widget_id", w.PublicID, "owner_id", w.OwnerID)
	return nil
}

const widgetColumns = `public_widget_id, owner_id, business_name, agent_instruction, theme,
	primary_color, icon_url, welcome_message, initial_ai_message,
	send_initial_message_automatically, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWidget(row rowScanner) (*Widget, error) {
	var w Widget
	var instruction, icon, welcome, initial sql.NullString
	var created string
	if err := row.Scan(
		&w.PublicID,
		&w.OwnerID,
		&w.BusinessName,
		&instruction,
		&w.Theme,
		&w.PrimaryColor,
		&icon,
		&welcome,
		&initial,
		&w.SendInitialAutomatically,
		&created,
	); err != nil {
		return nil, err
	}
	w.AgentInstruction = stringPtr(instruction)
	w.IconURL = stringPtr(icon)
	w.WelcomeMessage = stringPtr(welcome)
	w.InitialAIMessage = stringPtr(initial)

	var err error
	if w.CreatedAt, err = parseTime("created_at", created); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWidget retrieves a widget by its public id.
// Returns ErrNotFound if the widget doesn't exist.
func (s *SQLiteStore) GetWidget(ctx context.Context, publicID string) (*Widget, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+widgetColumns+` FROM widgets WHERE public_widget_id = ?`, publicID)
	w, err := scanWidget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying widget: %w", err)
	}
	return w, nil
}

// ListWidgets returns widgets ordered by creation time.
// If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListWidgets(ctx context.Context, limit int) ([]*Widget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+widgetColumns+` FROM widgets ORDER BY created_at LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying widgets: %w", err)
	}
	defer rows.Close()

	var widgets []*Widget
	for rows.Next() {
		w, err := scanWidget(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning widget row: %w", err)
		}
		widgets = append(widgets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating widget rows: %w", err)
	}
	return widgets, nil
}

var _ Store = (*SQLiteStore)(nil)
