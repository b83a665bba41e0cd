// ABOUTME: In-memory fan-out of persisted session messages to live watchers
// ABOUTME: Subscribers register per session id and receive each stored message

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/sten-widget/internal/widget"
)

// subscriberBufferSize is the channel buffer for each watcher.
const subscriberBufferSize = 64

// MessageBroadcaster provides in-memory pub/sub for stored session messages.
// Watchers (an owner dashboard, a second tab) follow a session without polling.
type MessageBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan widget.Message // sessionID -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewMessageBroadcaster creates a broadcaster. Pass nil logger for default.
func NewMessageBroadcaster(logger *slog.Logger) *MessageBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageBroadcaster{
		subscribers: make(map[string]map[string]chan widget.Message),
		logger:      logger.With("component", "message_broadcaster"),
	}
}

// Subscribe registers a watcher for messages of sessionID. The subscription
// is removed and its channel closed when ctx is cancelled.
func (b *MessageBroadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan widget.Message, string) {
	subID := uuid.New().String()
	ch := make(chan widget.Message, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[sessionID]; !ok {
		b.subscribers[sessionID] = make(map[string]chan widget.Message)
	}
	b.subscribers[sessionID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("watcher added", "session_id", sessionID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sessionID, subID)
	}()

	return ch, subID
}

// Publish delivers msg to every watcher of its session.
// Non-blocking: messages are dropped for watchers whose channels are full.
func (b *MessageBroadcaster) Publish(msg widget.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, ch := range b.subscribers[msg.SessionID] {
		select {
		case ch <- msg:
		default:
			b.logger.Debug("dropped message for slow watcher",
				"session_id", msg.SessionID,
				"sub_id", subID,
				"message_id", msg.ID)
		}
	}
}

// Watchers returns how many subscriptions sessionID currently has.
func (b *MessageBroadcaster) Watchers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[sessionID])
}

// Unsubscribe removes a subscription and closes its channel.
func (b *MessageBroadcaster) Unsubscribe(sessionID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sessionID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("watcher removed", "session_id", sessionID, "sub_id", subID)
}

// Close closes every watcher channel. Later subscriptions get a closed channel.
func (b *MessageBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sessionID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, sessionID)
	}
	b.closed = true
}
