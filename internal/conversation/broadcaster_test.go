// ABOUTME: Tests for MessageBroadcaster fan-out to session watchers
// ABOUTME: Covers delivery, isolation, unsubscribe, context cancellation and close

package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/sten-widget/internal/widget"
)

func makeMessage(id, sessionID string) widget.Message {
	return widget.Message{
		ID:        id,
		SessionID: sessionID,
		GuestID:   "g1",
		Sender:    widget.SenderGuest,
		Text:      "hello from " + id,
		CreatedAt: time.Now(),
	}
}

func receive(t *testing.T, ch <-chan widget.Message) widget.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "channel closed")
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return widget.Message{}
}

func TestBroadcaster_WatchersReceiveMessage(t *testing.T) {
	b := NewMessageBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), "s1")
	ch2, _ := b.Subscribe(t.Context(), "s1")
	assert.Equal(t, 2, b.Watchers("s1"))

	b.Publish(makeMessage("m1", "s1"))

	assert.Equal(t, "m1", receive(t, ch1).ID)
	assert.Equal(t, "m1", receive(t, ch2).ID)
}

func TestBroadcaster_SessionsAreIsolated(t *testing.T) {
	b := NewMessageBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), "s1")
	ch2, _ := b.Subscribe(t.Context(), "s2")

	b.Publish(makeMessage("m1", "s1"))

	assert.Equal(t, "m1", receive(t, ch1).ID)
	select {
	case m := <-ch2:
		t.Fatalf("s2 watcher got %s", m.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewMessageBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(t.Context(), "s1")
	b.Unsubscribe("s1", subID)

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Watchers("s1"))

	// Unknown ids are ignored.
	b.Unsubscribe("s1", subID)
	b.Unsubscribe("nope", "nope")
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewMessageBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(t.Context())
	ch, _ := b.Subscribe(ctx, "s1")
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Eventually(t, func() bool { return b.Watchers("s1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_SlowWatcherDropsInsteadOfBlocking(t *testing.T) {
	b := NewMessageBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "s1")
	for i := 0; i < subscriberBufferSize+10; i++ {
		b.Publish(makeMessage("m", "s1"))
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_CloseClosesAll(t *testing.T) {
	b := NewMessageBroadcaster(nil)

	ch1, _ := b.Subscribe(t.Context(), "s1")
	ch2, _ := b.Subscribe(t.Context(), "s2")
	b.Close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)

	late, _ := b.Subscribe(t.Context(), "s1")
	_, ok := <-late
	assert.False(t, ok)
}

func TestBroadcaster_ConcurrentPublish(t *testing.T) {
	b := NewMessageBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "s1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				b.Publish(makeMessage("m", "s1"))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ch, 32)
}
