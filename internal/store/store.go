// ABOUTME: Store interface and data types for widget service persistence
// ABOUTME: Defines Widget, Guest, ChatSession and GuestMessage and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when creating an entity whose key already exists
var ErrDuplicate = errors.New("already exists")

// Session origins
const (
	OriginAutoStart = "auto-start"
	OriginManual    = "manual"
	OriginResumed   = "resumed"
)

// Message senders
const (
	SenderGuest = "guest"
	SenderAI    = "ai"
)

// Widget is an installed widget and the styling it serves to host pages.
type Widget struct {
	PublicID         string
	OwnerID          string
	BusinessName     string
	AgentInstruction *string
	Theme            string
	PrimaryColor     string
	IconURL          *string
	WelcomeMessage   *string
	InitialAIMessage *string
	// SendInitialAutomatically defaults to true for new widgets
	SendInitialAutomatically bool
	CreatedAt                time.Time
}

// Guest is an anonymous visitor identified through a widget's intake form.
type Guest struct {
	ID        string
	WidgetID  string
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
}

// ChatSession is one conversation thread of a guest.
type ChatSession struct {
	ID                 string
	GuestID            string
	Origin             string
	CreatedAt          time.Time
	LastMessageAt      time.Time
	Summary            *string
	SummaryGeneratedAt *time.Time
	TopIntent          *string
	IsActive           bool
}

// GuestMessage is a single stored line of a chat session.
type GuestMessage struct {
	ID        string
	GuestID   string
	SessionID string
	Sender    string
	Text      string
	CreatedAt time.Time
}

// Store defines the persistence operations of the widget service
type Store interface {
	// Widgets
	CreateWidget(ctx context.Context, w *Widget) error
	GetWidget(ctx context.Context, publicID string) (*Widget, error)
	ListWidgets(ctx context.Context, limit int) ([]*Widget, error)

	// Guests
	CreateGuest(ctx context.Context, g *Guest) error
	GetGuest(ctx context.Context, id string) (*Guest, error)
	FindGuestByEmail(ctx context.Context, widgetID, email string) (*Guest, error)
	FindGuestByPhone(ctx context.Context, widgetID, phone string) (*Guest, error)

	// Sessions
	CreateSession(ctx context.Context, s *ChatSession) error
	GetSession(ctx context.Context, id string) (*ChatSession, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	ListGuestSessions(ctx context.Context, guestID string, limit int) ([]*ChatSession, error)
	UpdateSessionAnalysis(ctx context.Context, id, summary, intent string, at time.Time) (*ChatSession, error)

	// Messages
	SaveMessage(ctx context.Context, msg *GuestMessage) error
	GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]*GuestMessage, error)

	// Close releases any resources held by the store
	Close() error
}

// clampLimit applies the default and maximum list sizes.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
