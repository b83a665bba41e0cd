// Package store provides persistent storage for the widget service using SQLite.
//
// # Architecture
//
// A single Store interface covers the four entities the widget service keeps:
//
//   - Widget: an installed widget, its owner and the styling it serves
//   - Guest: an anonymous visitor, scoped to one widget
//   - ChatSession: one conversation of a guest, with an origin tag
//   - GuestMessage: one stored line of a session, from the guest or the AI
//
// SQLiteStore implements it on modernc.org/sqlite; MockStore implements it
// in memory for tests.
//
// # Ordering
//
// ListGuestSessions returns newest first. GetSessionMessages returns messages
// in creation order, falling back to insertion order when timestamps tie, so
// a guest message always precedes the reply stored for it.
//
// Timestamps are stored as fixed-width RFC 3339 strings with nanoseconds so
// that lexical order equals chronological order.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Database file locations:
//
//   - Production: /var/lib/sten-gateway/widgets.db
//   - Development: ~/.local/share/sten/widgets.db
//   - Testing: :memory: (in-memory database)
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicate: an entity with the same key already exists
//
// All methods accept context.Context for cancellation support.
//
// # Migrations
//
// Columns added after the first release are applied by runMigrations, which
// checks pragma_table_info before each ALTER TABLE and is safe to rerun.
package store
