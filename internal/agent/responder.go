// ABOUTME: Responder interface and the built-in canned and function responders
// ABOUTME: Reply generation is opaque to the widget service

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultBusinessName is used when the widget owner has no business profile.
const DefaultBusinessName = "Sten"

// ErrEmptyReply is returned when a responder produces no text.
var ErrEmptyReply = errors.New("agent returned an empty reply")

// Request is everything a responder gets for one guest message.
type Request struct {
	Message      string  `json:"message"`
	OwnerID      string  `json:"user_id"`
	BusinessName string  `json:"business_name"`
	Instruction  *string `json:"custom_instruction,omitempty"`
	SessionID    string  `json:"session_id"`
}

// Responder generates the agent reply to a guest message.
type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, req Request) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// CannedResponder answers every message with a fixed acknowledgment.
type CannedResponder struct{}

func (CannedResponder) Respond(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := strings.TrimSpace(req.BusinessName)
	if name == "" {
		name = DefaultBusinessName
	}
	return fmt.Sprintf("Thanks for reaching out to %s! We received your message: %q", name, strings.TrimSpace(req.Message)), nil
}

var (
	_ Responder = CannedResponder{}
	_ Responder = ResponderFunc(nil)
	_ Responder = (*HTTPResponder)(nil)
)
