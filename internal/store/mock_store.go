// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	widgets  map[string]*Widget         // keyed by public widget ID
	guests   map[string]*Guest          // keyed by guest ID
	sessions map[string]*ChatSession    // keyed by session ID
	messages map[string][]*GuestMessage // keyed by session ID
	seq      int
	order    map[string]int // insertion order, breaks timestamp ties
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		widgets:  make(map[string]*Widget),
		guests:   make(map[string]*Guest),
		sessions: make(map[string]*ChatSession),
		messages: make(map[string][]*GuestMessage),
		order:    make(map[string]int),
	}
}

func (m *MockStore) remember(id string) {
	m.seq++
	m.order[id] = m.seq
}

// CreateWidget stores a new widget.
func (m *MockStore) CreateWidget(ctx context.Context, w *Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.widgets[w.PublicID]; ok {
		return ErrDuplicate
	}
	c := *w
	m.widgets[c.PublicID] = &c
	m.remember(c.PublicID)
	return nil
}

// GetWidget retrieves a widget by public ID.
func (m *MockStore) GetWidget(ctx context.Context, publicID string) (*Widget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.widgets[publicID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *w
	return &result, nil
}

// ListWidgets returns widgets in creation order.
func (m *MockStore) ListWidgets(ctx context.Context, limit int) ([]*Widget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Widget, 0, len(m.widgets))
	for _, w := range m.widgets {
		c := *w
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].PublicID] < m.order[out[j].PublicID] })
	if l := clampLimit(limit); len(out) > l {
		out = out[:l]
	}
	return out, nil
}

// CreateGuest stores a new guest.
func (m *MockStore) CreateGuest(ctx context.Context, g *Guest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.guests[g.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := m.widgets[g.WidgetID]; !ok {
		return ErrNotFound
	}
	c := *g
	m.guests[c.ID] = &c
	m.remember(c.ID)
	return nil
}

// GetGuest retrieves a guest by ID.
func (m *MockStore) GetGuest(ctx context.Context, id string) (*Guest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.guests[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *g
	return &result, nil
}

// FindGuestByEmail returns the earliest guest of widgetID with the given email.
func (m *MockStore) FindGuestByEmail(ctx context.Context, widgetID, email string) (*Guest, error) {
	return m.findGuest(widgetID, func(g *Guest) bool { return g.Email != nil && *g.Email == email })
}

// FindGuestByPhone returns the earliest guest of widgetID with the given phone.
func (m *MockStore) FindGuestByPhone(ctx context.Context, widgetID, phone string) (*Guest, error) {
	return m.findGuest(widgetID, func(g *Guest) bool { return g.Phone != nil && *g.Phone == phone })
}

func (m *MockStore) findGuest(widgetID string, match func(*Guest) bool) (*Guest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *Guest
	for _, g := range m.guests {
		if g.WidgetID != widgetID || !match(g) {
			continue
		}
		if found == nil || m.order[g.ID] < m.order[found.ID] {
			found = g
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	result := *found
	return &result, nil
}

// CreateSession stores a new session.
func (m *MockStore) CreateSession(ctx context.Context, s *ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := m.guests[s.GuestID]; !ok {
		return ErrNotFound
	}
	c := *s
	m.sessions[c.ID] = &c
	m.remember(c.ID)
	return nil
}

// GetSession retrieves a session by ID.
func (m *MockStore) GetSession(ctx context.Context, id string) (*ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *s
	return &result, nil
}

// TouchSession sets last_message_at.
func (m *MockStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.LastMessageAt = at
	return nil
}

// ListGuestSessions returns a guest's sessions, newest first.
func (m *MockStore) ListGuestSessions(ctx context.Context, guestID string, limit int) ([]*ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ChatSession
	for _, s := range m.sessions {
		if s.GuestID == guestID {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return m.order[out[i].ID] > m.order[out[j].ID]
	})
	if l := clampLimit(limit); len(out) > l {
		out = out[:l]
	}
	return out, nil
}

// UpdateSessionAnalysis stores the summary and top intent of a session.
func (m *MockStore) UpdateSessionAnalysis(ctx context.Context, id, summary, intent string, at time.Time) (*ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Summary = &summary
	s.TopIntent = &intent
	s.SummaryGeneratedAt = &at
	result := *s
	return &result, nil
}

// SaveMessage stores a message.
func (m *MockStore) SaveMessage(ctx context.Context, msg *GuestMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.order[msg.ID]; ok {
		return ErrDuplicate
	}
	c := *msg
	m.messages[c.SessionID] = append(m.messages[c.SessionID], &c)
	m.remember(c.ID)
	return nil
}

// GetSessionMessages returns a session's messages in creation order.
func (m *MockStore) GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]*GuestMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[sessionID]
	out := make([]*GuestMessage, 0, len(msgs))
	for _, msg := range msgs {
		c := *msg
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if l := clampLimit(limit); len(out) > l {
		out = out[:l]
	}
	return out, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

var _ Store = (*MockStore)(nil)
