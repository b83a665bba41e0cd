// ABOUTME: In-memory Backend fake for session engine tests
// ABOUTME: Records calls and can block or fail individual contracts

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/2389/sten-widget/internal/backend"
	"github.com/2389/sten-widget/internal/widget"
)

type appendCall struct {
	WidgetID  string
	SessionID string
	Message   string
	Key       string
}

type fakeBackend struct {
	mu sync.Mutex

	guestID  string
	reply    string
	sessions []widget.Session
	messages map[string][]widget.Message

	startErr    error
	sendErr     error
	historyErr  error
	messagesErr error

	// sendGate, when set, blocks sends until a value is received.
	sendGate chan struct{}
	sendSeen chan struct{}
	// messagesGate, when set, blocks GetSessionMessages the same way.
	messagesGate chan struct{}
	messagesSeen chan struct{}

	startCalls   []backend.StartGuestRequest
	initCalls    []backend.InitSessionRequest
	initKeys     []string
	appendCalls  []appendCall
	historyCalls int
	messageCalls int
	nextSession  int
	nextMessage  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		guestID:  "g1",
		reply:    "Hello from the agent",
		messages: make(map[string][]widget.Message),
	}
}

func (f *fakeBackend) GetWidgetConfig(_ context.Context, widgetID string) (*widget.Config, error) {
	return &widget.Config{WidgetID: widgetID, Theme: "light"}, nil
}

func (f *fakeBackend) StartGuest(_ context.Context, _ string, req backend.StartGuestRequest) (*backend.StartGuestResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls = append(f.startCalls, req)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &backend.StartGuestResponse{GuestID: f.guestID, WidgetOwnerID: "owner-1", Status: backend.StatusReady}, nil
}

func (f *fakeBackend) InitSession(ctx context.Context, _ string, req backend.InitSessionRequest, key string) (*widget.Exchange, error) {
	f.mu.Lock()
	f.initCalls = append(f.initCalls, req)
	f.initKeys = append(f.initKeys, key)
	f.nextSession++
	sid := fmt.Sprintf("s%d", f.nextSession)
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.exchange(sid, req.GuestID, req.Message)
}

func (f *fakeBackend) AppendToSession(ctx context.Context, widgetID, sessionID string, req backend.ChatRequest, key string) (*widget.Exchange, error) {
	f.mu.Lock()
	f.appendCalls = append(f.appendCalls, appendCall{WidgetID: widgetID, SessionID: sessionID, Message: req.Message, Key: key})
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.exchange(sessionID, f.guestID, req.Message)
}

func (f *fakeBackend) ListSessionHistory(_ context.Context, _ string) ([]widget.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return append([]widget.Session(nil), f.sessions...), nil
}

func (f *fakeBackend) GetSessionMessages(ctx context.Context, sessionID string) ([]widget.Message, error) {
	f.mu.Lock()
	gate, seen := f.messagesGate, f.messagesSeen
	f.mu.Unlock()
	if err := block(ctx, gate, seen); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageCalls++
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	msgs, ok := f.messages[sessionID]
	if !ok {
		return nil, widget.ErrNotFound
	}
	return append([]widget.Message(nil), msgs...), nil
}

func (f *fakeBackend) wait(ctx context.Context) error {
	f.mu.Lock()
	gate, seen := f.sendGate, f.sendSeen
	f.mu.Unlock()
	return block(ctx, gate, seen)
}

// block signals seen and waits for gate. A nil gate returns immediately.
func block(ctx context.Context, gate, seen chan struct{}) error {
	if gate == nil {
		return nil
	}
	if seen != nil {
		seen <- struct{}{}
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeBackend) exchange(sessionID, guestID, text string) (*widget.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	now := time.Now()
	f.nextMessage += 2
	ex := &widget.Exchange{
		Message: widget.Message{
			ID: fmt.Sprintf("m%d", f.nextMessage-1), SessionID: sessionID, GuestID: guestID,
			Sender: widget.SenderGuest, Text: text, CreatedAt: now,
		},
		Response: widget.Message{
			ID: fmt.Sprintf("m%d", f.nextMessage), SessionID: sessionID, GuestID: guestID,
			Sender: widget.SenderAI, Text: f.reply, CreatedAt: now,
		},
	}
	f.messages[sessionID] = append(f.messages[sessionID], ex.Message, ex.Response)
	return ex, nil
}

func (f *fakeBackend) counts() (start, init, appends int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.startCalls), len(f.initCalls), len(f.appendCalls)
}

var _ backend.Backend = (*fakeBackend)(nil)
