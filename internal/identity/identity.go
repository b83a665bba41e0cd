// ABOUTME: Identity Store interface and the in-memory implementation
// ABOUTME: Keys guest identities by widget id using the sten_guest_ prefix

package identity

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/2389/sten-widget/internal/widget"
)

// KeyPrefix prefixes the widget id in every storage key.
const KeyPrefix = "sten_guest_"

// ErrNotFound is returned by Load when no identity exists for the widget.
var ErrNotFound = widget.ErrNotFound

// ErrInvalidIdentity is returned by Save for an empty guest id.
var ErrInvalidIdentity = errors.New("guest id is required")

// Store persists one GuestIdentity per widget id.
type Store interface {
	Load(ctx context.Context, widgetID string) (*widget.GuestIdentity, error)
	Save(ctx context.Context, widgetID string, id widget.GuestIdentity) error
	Close() error
}

// StorageKey returns the record key for a widget.
func StorageKey(widgetID string) string {
	return KeyPrefix + widgetID
}

func validate(id widget.GuestIdentity) error {
	if strings.TrimSpace(id.GuestID) == "" {
		return ErrInvalidIdentity
	}
	return nil
}

// MemoryStore keeps identities in a map.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]widget.GuestIdentity
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]widget.GuestIdentity)}
}

func (m *MemoryStore) Load(_ context.Context, widgetID string) (*widget.GuestIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.records[StorageKey(widgetID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &id, nil
}

func (m *MemoryStore) Save(_ context.Context, widgetID string, id widget.GuestIdentity) error {
	if err := validate(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[StorageKey(widgetID)] = id
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Keys returns the storage keys currently held, for diagnostics and tests.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	return keys
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
