// ABOUTME: Service is the widget chat layer between HTTP handlers and storage
// ABOUTME: Guest messages are recorded before the agent is asked; history is the source of truth

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/sten-widget/internal/agent"
	"github.com/2389/sten-widget/internal/backend"
	"github.com/2389/sten-widget/internal/dedupe"
	"github.com/2389/sten-widget/internal/store"
	"github.com/2389/sten-widget/internal/widget"
)

// ErrInvalidRequest marks caller errors: missing fields or unknown values.
var ErrInvalidRequest = errors.New("invalid request")

// ErrWatchUnavailable is returned by Watch when no broadcaster is configured.
var ErrWatchUnavailable = errors.New("session watching is not enabled")

// ErrAgent wraps failures of the reply generator. The guest message is already stored.
var ErrAgent = errors.New("agent failed")

// NotFoundError reports a missing widget, guest or session.
// It matches widget.ErrNotFound with errors.Is.
type NotFoundError struct {
	What string
	ID   string
}

func (e *NotFoundError) Error() string {
	return e.What + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	return target == widget.ErrNotFound
}

func notFound(what, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{What: what, ID: id}
	}
	return fmt.Errorf("loading %s %s: %w", strings.ToLower(what), id, err)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Service serves the widget contracts on top of a Store and a Responder.
// It implements backend.Backend so hosts can run it in-process.
type Service struct {
	store     store.Store
	responder agent.Responder
	analyzer  Analyzer
	events    *MessageBroadcaster
	replays   *dedupe.Cache[*widget.Exchange]
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAnalyzer replaces the keyword analyzer used by Analyze.
func WithAnalyzer(a Analyzer) Option {
	return func(s *Service) { s.analyzer = a }
}

// WithBroadcaster publishes every stored message to b.
func WithBroadcaster(b *MessageBroadcaster) Option {
	return func(s *Service) { s.events = b }
}

// WithReplayCache remembers exchanges by idempotency key so duplicated sends
// return the first result instead of storing twice.
func WithReplayCache(c *dedupe.Cache[*widget.Exchange]) Option {
	return func(s *Service) { s.replays = c }
}

// WithClock sets the time source for stored timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator sets the id source for guests, sessions and messages.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// New creates a Service. A nil responder falls back to agent.CannedResponder.
func New(st store.Store, responder agent.Responder, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if responder == nil {
		responder = agent.CannedResponder{}
	}
	s := &Service{
		store:     st,
		responder: responder,
		analyzer:  KeywordAnalyzer{},
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
		logger:    logger.With("component", "conversation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Broadcaster returns the message broadcaster, or nil when none is set.
func (s *Service) Broadcaster() *MessageBroadcaster {
	return s.events
}

// Watch follows the messages stored for sessionID until ctx is done.
func (s *Service) Watch(ctx context.Context, sessionID string) (<-chan widget.Message, error) {
	if s.events == nil {
		return nil, ErrWatchUnavailable
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, notFound("Session", sessionID, err)
	}
	ch, _ := s.events.Subscribe(ctx, sessionID)
	return ch, nil
}

// GetWidgetConfig returns the public styling of a widget.
func (s *Service) GetWidgetConfig(ctx context.Context, widgetID string) (*widget.Config, error) {
	w, err := s.store.GetWidget(ctx, widgetID)
	if err != nil {
		return nil, notFound("Widget", widgetID, err)
	}
	return configFromWidget(w), nil
}

// StartGuest identifies a guest. An existing guest of the same widget is
// reused when the email matches, or else when the phone matches.
// No session is created here.
func (s *Service) StartGuest(ctx context.Context, widgetID string, req backend.StartGuestRequest) (*backend.StartGuestResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name is required")
	}

	w, err := s.store.GetWidget(ctx, widgetID)
	if err != nil {
		return nil, notFound("Widget", widgetID, err)
	}

	guest, err := s.findGuest(ctx, widgetID, req)
	if err != nil {
		return nil, err
	}
	if guest == nil {
		guest = &store.Guest{
			ID:        s.newID(),
			WidgetID:  widgetID,
			Name:      name,
			Email:     trimmed(req.Email),
			Phone:     trimmed(req.Phone),
			CreatedAt: s.now(),
		}
		if err := s.store.CreateGuest(ctx, guest); err != nil {
			return nil, fmt.Errorf("creating guest: %w", err)
		}
		s.logger.Info("guest created", "widget_id", widgetID, "guest_id", guest.ID)
	} else {
		s.logger.Debug("guest reused", "widget_id", widgetID, "guest_id", guest.ID)
	}

	return &backend.StartGuestResponse{
		GuestID:       guest.ID,
		WidgetOwnerID: w.OwnerID,
		Status:        backend.StatusReady,
	}, nil
}

func (s *Service) findGuest(ctx context.Context, widgetID string, req backend.StartGuestRequest) (*store.Guest, error) {
	var (
		g   *store.Guest
		err error
	)
	switch {
	case trimmed(req.Email) != nil:
		g, err = s.store.FindGuestByEmail(ctx, widgetID, *trimmed(req.Email))
	case trimmed(req.Phone) != nil:
		g, err = s.store.FindGuestByPhone(ctx, widgetID, *trimmed(req.Phone))
	default:
		return nil, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up guest: %w", err)
	}
	return g, nil
}

// InitSession creates a session for the guest and processes its first message.
func (s *Service) InitSession(ctx context.Context, widgetID string, req backend.InitSessionRequest, idempotencyKey string) (*widget.Exchange, error) {
	return s.replay(widgetID+"/init/"+idempotencyKey, idempotencyKey, func() (*widget.Exchange, error) {
		return s.initSession(ctx, widgetID, req)
	})
}

func (s *Service) initSession(ctx context.Context, widgetID string, req backend.InitSessionRequest) (*widget.Exchange, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, invalid("message is required")
	}
	origin, err := widget.ParseOrigin(string(req.Origin))
	if err != nil {
		return nil, invalid("%v", err)
	}

	w, err := s.store.GetWidget(ctx, widgetID)
	if err != nil {
		return nil, notFound("Widget", widgetID, err)
	}
	guest, err := s.store.GetGuest(ctx, req.GuestID)
	if err != nil {
		return nil, notFound("Guest", req.GuestID, err)
	}
	if guest.WidgetID != w.PublicID {
		return nil, &NotFoundError{What: "Guest", ID: req.GuestID}
	}

	now := s.now()
	cs := &store.ChatSession{
		ID:            s.newID(),
		GuestID:       guest.ID,
		Origin:        string(origin),
		CreatedAt:     now,
		LastMessageAt: now,
		IsActive:      true,
	}
	if err := s.store.CreateSession(ctx, cs); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	s.logger.Info("session created", "session_id", cs.ID, "guest_id", guest.ID, "origin", cs.Origin)

	return s.process(ctx, w, guest, cs.ID, req.Message)
}

// AppendToSession adds a message to an existing session and updates its
// last activity time.
func (s *Service) AppendToSession(ctx context.Context, widgetID, sessionID string, req backend.ChatRequest, idempotencyKey string) (*widget.Exchange, error) {
	return s.replay(widgetID+"/chat/"+sessionID+"/"+idempotencyKey, idempotencyKey, func() (*widget.Exchange, error) {
		return s.appendToSession(ctx, widgetID, sessionID, req)
	})
}

func (s *Service) appendToSession(ctx context.Context, widgetID, sessionID string, req backend.ChatRequest) (*widget.Exchange, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, invalid("message is required")
	}

	w, err := s.store.GetWidget(ctx, widgetID)
	if err != nil {
		return nil, notFound("Widget", widgetID, err)
	}
	cs, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, notFound("Session", sessionID, err)
	}
	guest, err := s.store.GetGuest(ctx, cs.GuestID)
	if err != nil {
		return nil, notFound("Guest", cs.GuestID, err)
	}
	if guest.WidgetID != w.PublicID {
		return nil, &NotFoundError{What: "Session", ID: sessionID}
	}

	if err := s.store.TouchSession(ctx, sessionID, s.now()); err != nil {
		return nil, notFound("Session", sessionID, err)
	}

	return s.process(ctx, w, guest, sessionID, req.Message)
}

// LegacyChat serves the old guest-scoped endpoint by starting an
// auto-start session for every message.
func (s *Service) LegacyChat(ctx context.Context, widgetID, guestID string, req backend.ChatRequest, idempotencyKey string) (*widget.Exchange, error) {
	return s.InitSession(ctx, widgetID, backend.InitSessionRequest{
		GuestID: guestID,
		Message: req.Message,
		Origin:  widget.OriginAutoStart,
	}, idempotencyKey)
}

// process records the guest message, asks the agent, then records the reply.
func (s *Service) process(ctx context.Context, w *store.Widget, guest *store.Guest, sessionID, text string) (*widget.Exchange, error) {
	guestMsg := &store.GuestMessage{
		ID:        s.newID(),
		GuestID:   guest.ID,
		SessionID: sessionID,
		Sender:    store.SenderGuest,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveMessage(ctx, guestMsg); err != nil {
		return nil, fmt.Errorf("recording guest message: %w", err)
	}
	s.publish(guestMsg)

	s.logger.Debug("guest message recorded", "session_id", sessionID, "message_id", guestMsg.ID)

	businessName := strings.TrimSpace(w.BusinessName)
	if businessName == "" {
		businessName = agent.DefaultBusinessName
	}
	reply, err := s.responder.Respond(ctx, agent.Request{
		Message:      text,
		OwnerID:      w.OwnerID,
		BusinessName: businessName,
		Instruction:  w.AgentInstruction,
		SessionID:    sessionID,
	})
	if err == nil && strings.TrimSpace(reply) == "" {
		err = agent.ErrEmptyReply
	}
	if err != nil {
		s.logger.Warn("agent reply failed", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAgent, err)
	}

	aiMsg := &store.GuestMessage{
		ID:        s.newID(),
		GuestID:   guest.ID,
		SessionID: sessionID,
		Sender:    store.SenderAI,
		Text:      reply,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveMessage(ctx, aiMsg); err != nil {
		return nil, fmt.Errorf("recording agent reply: %w", err)
	}
	s.publish(aiMsg)

	return &widget.Exchange{
		Message:  messageFromStore(guestMsg),
		Response: messageFromStore(aiMsg),
	}, nil
}

func (s *Service) publish(m *store.GuestMessage) {
	if s.events != nil {
		s.events.Publish(messageFromStore(m))
	}
}

// replay runs fn at most once per cache key while the key is remembered.
func (s *Service) replay(cacheKey, idempotencyKey string, fn func() (*widget.Exchange, error)) (*widget.Exchange, error) {
	if s.replays == nil || idempotencyKey == "" {
		return fn()
	}
	ex, replayed, err := s.replays.Do(cacheKey, fn)
	if replayed {
		s.logger.Debug("replayed exchange", "idempotency_key", idempotencyKey)
	}
	return ex, err
}

// ListSessionHistory returns the guest's sessions, most recent first.
func (s *Service) ListSessionHistory(ctx context.Context, guestID string) ([]widget.Session, error) {
	sessions, err := s.store.ListGuestSessions(ctx, guestID, 0)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	out := make([]widget.Session, 0, len(sessions))
	for _, cs := range sessions {
		out = append(out, sessionFromStore(cs))
	}
	return out, nil
}

// GetSessionMessages returns the messages of a session in creation order.
func (s *Service) GetSessionMessages(ctx context.Context, sessionID string) ([]widget.Message, error) {
	msgs, err := s.store.GetSessionMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	out := make([]widget.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageFromStore(m))
	}
	return out, nil
}

func configFromWidget(w *store.Widget) *widget.Config {
	send := w.SendInitialAutomatically
	return &widget.Config{
		WidgetID:                        w.PublicID,
		Theme:                           w.Theme,
		PrimaryColor:                    w.PrimaryColor,
		IconURL:                         w.IconURL,
		WelcomeMessage:                  w.WelcomeMessage,
		InitialAIMessage:                w.InitialAIMessage,
		SendInitialMessageAutomatically: &send,
	}
}

func sessionFromStore(cs *store.ChatSession) widget.Session {
	return widget.Session{
		ID:                 cs.ID,
		Origin:             widget.Origin(cs.Origin),
		CreatedAt:          cs.CreatedAt,
		LastMessageAt:      cs.LastMessageAt,
		Summary:            cs.Summary,
		SummaryGeneratedAt: cs.SummaryGeneratedAt,
		TopIntent:          cs.TopIntent,
	}
}

func messageFromStore(m *store.GuestMessage) widget.Message {
	return widget.Message{
		ID:        m.ID,
		SessionID: m.SessionID,
		GuestID:   m.GuestID,
		Sender:    widget.Sender(m.Sender),
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

var _ backend.Backend = (*Service)(nil)
