// ABOUTME: Domain types shared by launcher, frame, session engine and gateway
// ABOUTME: Defines Config, GuestIdentity, Session, Message, Origin and View

package widget

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPrimaryColor is used when a widget has no primary color configured.
const DefaultPrimaryColor = "#000000"

// DefaultIconURL is the stock launcher icon.
const DefaultIconURL = "https://api.iconify.design/lucide:message-circle.svg?color=white"

// DefaultWelcomeMessage is shown on the intake form when the widget has none.
const DefaultWelcomeMessage = "Hi there!"

// Config holds the styling and copy of a widget. It carries no session data.
type Config struct {
	WidgetID         string  `json:"public_widget_id"`
	Theme            string  `json:"theme"`
	PrimaryColor     string  `json:"primary_color"`
	IconURL          *string `json:"icon_url"`
	WelcomeMessage   *string `json:"welcome_message"`
	InitialAIMessage *string `json:"initial_ai_message"`

	SendInitialMessageAutomatically *bool `json:"send_initial_message_automatically,omitempty"`
}

// Color returns the primary color, falling back to DefaultPrimaryColor.
func (c Config) Color() string {
	if strings.TrimSpace(c.PrimaryColor) == "" {
		return DefaultPrimaryColor
	}
	return c.PrimaryColor
}

// Icon returns the launcher icon URL, falling back to DefaultIconURL.
func (c Config) Icon() string {
	if c.IconURL == nil || strings.TrimSpace(*c.IconURL) == "" {
		return DefaultIconURL
	}
	return *c.IconURL
}

// Welcome returns the intake welcome copy, falling back to DefaultWelcomeMessage.
func (c Config) Welcome() string {
	if c.WelcomeMessage == nil || strings.TrimSpace(*c.WelcomeMessage) == "" {
		return DefaultWelcomeMessage
	}
	return *c.WelcomeMessage
}

// GuestIdentity is the persisted identity of a guest for one widget.
type GuestIdentity struct {
	GuestID string `json:"guest_id"`
}

// Origin classifies how a session was created.
type Origin string

const (
	OriginAutoStart Origin = "auto-start"
	OriginManual    Origin = "manual"
	OriginResumed   Origin = "resumed"
)

// Valid reports whether o is one of the known origins.
func (o Origin) Valid() bool {
	switch o {
	case OriginAutoStart, OriginManual, OriginResumed:
		return true
	}
	return false
}

// ParseOrigin converts s into an Origin. An empty string yields OriginAutoStart.
func ParseOrigin(s string) (Origin, error) {
	if s == "" {
		return OriginAutoStart, nil
	}
	o := Origin(s)
	if !o.Valid() {
		return "", fmt.Errorf("unknown origin %q", s)
	}
	return o, nil
}

// Session is one conversation thread between a guest and the agent.
type Session struct {
	ID                 string     `json:"id"`
	Origin             Origin     `json:"origin"`
	CreatedAt          time.Time  `json:"created_at"`
	LastMessageAt      time.Time  `json:"last_message_at"`
	Summary            *string    `json:"summary,omitempty"`
	SummaryGeneratedAt *time.Time `json:"summary_generated_at,omitempty"`
	TopIntent          *string    `json:"top_intent,omitempty"`
}

// Label is the history list title: the summary, or the creation date.
func (s Session) Label() string {
	if s.Summary != nil && strings.TrimSpace(*s.Summary) != "" {
		return *s.Summary
	}
	return "Conversation " + s.CreatedAt.Format("2006-01-02")
}

// Sender identifies who wrote a message.
type Sender string

const (
	SenderGuest Sender = "guest"
	SenderAI    Sender = "ai"
)

// Message is a confirmed transcript line.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	GuestID   string    `json:"guest_id,omitempty"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"message_text"`
	CreatedAt time.Time `json:"created_at"`
}

// Exchange is a confirmed guest message paired with the agent reply to it.
type Exchange struct {
	Message  Message `json:"message"`
	Response Message `json:"response"`
}

// View is the mutually exclusive UI state of the frame.
type View string

const (
	ViewLoading    View = "loading"
	ViewIntakeForm View = "intake-form"
	ViewChat       View = "chat"
	ViewHistory    View = "history"
)

// GuestDetails is what the intake form collects.
type GuestDetails struct {
	Name  string  `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

// NewGuestDetails trims the inputs and turns empty contacts into nil.
func NewGuestDetails(name, email, phone string) GuestDetails {
	return GuestDetails{
		Name:  strings.TrimSpace(name),
		Email: optional(email),
		Phone: optional(phone),
	}
}

// Normalize trims every field and turns blank contacts into nil.
func (d GuestDetails) Normalize() GuestDetails {
	return NewGuestDetails(d.Name, deref(d.Email), deref(d.Phone))
}

// Validate requires a name and at least one non-blank email or phone.
func (d GuestDetails) Validate() error {
	n := d.Normalize()
	if n.Name == "" || (n.Email == nil && n.Phone == nil) {
		return NewError(ErrorValidation, "Please provide name and either email or phone.", nil)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
