// ABOUTME: Backend interface and wire types for the six widget contracts
// ABOUTME: Shared by the HTTP client, the session engine and the reference gateway

package backend

import (
	"context"

	"github.com/2389/sten-widget/internal/widget"
)

// StatusReady is the status a successful guest start reports.
const StatusReady = "ready"

// IdempotencyHeader carries the caller's dedupe key on send requests.
const IdempotencyHeader = "Idempotency-Key"

// StartGuestRequest is the intake submission. Validation happens client-side.
type StartGuestRequest struct {
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// StartGuestResponse identifies the guest.
type StartGuestResponse struct {
	GuestID       string `json:"guest_id"`
	WidgetOwnerID string `json:"widget_owner_id"`
	Status        string `json:"status"`
}

// InitSessionRequest creates a session with its first message.
type InitSessionRequest struct {
	GuestID string        `json:"guest_id"`
	Message string        `json:"message"`
	Origin  widget.Origin `json:"origin"`
}

// ChatRequest appends a message to an existing session.
type ChatRequest struct {
	Message string `json:"message"`
}

// Backend is everything the widget needs from the chat service.
type Backend interface {
	GetWidgetConfig(ctx context.Context, widgetID string) (*widget.Config, error)
	StartGuest(ctx context.Context, widgetID string, req StartGuestRequest) (*StartGuestResponse, error)
	InitSession(ctx context.Context, widgetID string, req InitSessionRequest, idempotencyKey string) (*widget.Exchange, error)
	AppendToSession(ctx context.Context, widgetID, sessionID string, req ChatRequest, idempotencyKey string) (*widget.Exchange, error)
	ListSessionHistory(ctx context.Context, guestID string) ([]widget.Session, error)
	GetSessionMessages(ctx context.Context, sessionID string) ([]widget.Message, error)
}

// ConfigSource is the subset of Backend the launcher uses.
type ConfigSource interface {
	GetWidgetConfig(ctx context.Context, widgetID string) (*widget.Config, error)
}

// StartGuestFromDetails converts intake form values into a request.
func StartGuestFromDetails(d widget.GuestDetails) StartGuestRequest {
	return StartGuestRequest{Name: d.Name, Email: d.Email, Phone: d.Phone}
}
