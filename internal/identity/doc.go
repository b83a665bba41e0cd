// Package identity persists the guest identifier of each widget across reloads.
//
// # Overview
//
// The frame reads the identity once when it starts, before choosing the
// first view, and writes it once after a successful intake. Nothing expires
// it and the widget never deletes it.
//
// Records are keyed by StorageKey(widgetID), "sten_guest_<widgetID>", so one
// store can serve many widgets without their guests colliding.
//
// # Implementations
//
//   - SQLiteStore: a file-backed store using modernc.org/sqlite
//   - MemoryStore: a map-backed store for tests and ephemeral hosts
//
// Both return ErrNotFound from Load when no identity has been saved.
package identity
