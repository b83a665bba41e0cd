// ABOUTME: Tests for the frame host
// ABOUTME: Verifies config fallback, FOCUS handling per view, unknown messages and refocus

package frame

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/sten-widget/internal/backend"
	"github.com/2389/sten-widget/internal/bridge"
	"github.com/2389/sten-widget/internal/identity"
	"github.com/2389/sten-widget/internal/session"
	"github.com/2389/sten-widget/internal/widget"
)

type stubBackend struct {
	backend.Backend
	configErr error
}

func (s stubBackend) GetWidgetConfig(_ context.Context, id string) (*widget.Config, error) {
	if s.configErr != nil {
		return nil, s.configErr
	}
	return &widget.Config{WidgetID: id, PrimaryColor: "#00ff00"}, nil
}

func (s stubBackend) StartGuest(context.Context, string, backend.StartGuestRequest) (*backend.StartGuestResponse, error) {
	return &backend.StartGuestResponse{GuestID: "g1", Status: backend.StatusReady}, nil
}

type focusCall struct {
	Target    session.FocusTarget
	SelectAll bool
}

type recorder struct {
	mu    sync.Mutex
	calls []focusCall
}

func (r *recorder) Focus(target session.FocusTarget, selectAll bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, focusCall{target, selectAll})
}

func (r *recorder) snapshot() []focusCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]focusCall(nil), r.calls...)
}

func mount(t *testing.T, b backend.Backend, ids identity.Store) (*Frame, *bridge.Port, *recorder) {
	t.Helper()
	port := bridge.NewPort(4)
	rec := &recorder{}
	f, err := Mount(t.Context(), "w1", port, Options{Backend: b, Identity: ids, Focuser: rec})
	require.NoError(t, err)
	t.Cleanup(func() {
		port.Close()
		f.Close()
	})
	return f, port, rec
}

func runFrame(t *testing.T, f *Frame) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestMount_RequiresPortAndBackend(t *testing.T) {
	_, err := Mount(t.Context(), "w1", nil, Options{Backend: stubBackend{}})
	assert.Error(t, err)
	_, err = Mount(t.Context(), "w1", bridge.NewPort(1), Options{})
	assert.Error(t, err)
}

func TestMount_ConfigFailureFallsBackToIntake(t *testing.T) {
	ids := identity.NewMemoryStore()
	require.NoError(t, ids.Save(t.Context(), "w1", widget.GuestIdentity{GuestID: "g1"}))

	f, _, _ := mount(t, stubBackend{configErr: errors.New("offline")}, ids)

	snap := f.Engine().Snapshot()
	assert.Equal(t, widget.ViewIntakeForm, snap.View)
	assert.Equal(t, widget.DefaultPrimaryColor, snap.Config.Color())
}

func TestFocus_IntakeSelectsNameField(t *testing.T) {
	f, port, rec := mount(t, stubBackend{}, identity.NewMemoryStore())
	runFrame(t, f)

	require.NoError(t, port.Post(t.Context(), bridge.Focus()))

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, focusCall{session.FocusNameField, true}, rec.snapshot()[0])
}

func TestFocus_ChatFocusesMessageInput(t *testing.T) {
	ids := identity.NewMemoryStore()
	require.NoError(t, ids.Save(t.Context(), "w1", widget.GuestIdentity{GuestID: "g1"}))
	f, port, rec := mount(t, stubBackend{}, ids)
	runFrame(t, f)

	require.NoError(t, port.Post(t.Context(), bridge.Focus()))

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, focusCall{session.FocusMessageInput, false}, rec.snapshot()[0])
}

func TestRun_IgnoresUnknownAndMalformedMessages(t *testing.T) {
	f, port, rec := mount(t, stubBackend{}, identity.NewMemoryStore())
	runFrame(t, f)

	require.NoError(t, port.PostRaw(t.Context(), []byte(`{"type":"RESIZE"}`)))
	require.NoError(t, port.PostRaw(t.Context(), []byte(`garbage`)))
	require.NoError(t, port.Post(t.Context(), bridge.Focus()))

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, session.FocusNameField, rec.snapshot()[0].Target)
}

func TestRun_ReturnsWhenPortCloses(t *testing.T) {
	f, port, _ := mount(t, stubBackend{}, identity.NewMemoryStore())
	port.Close()
	assert.NoError(t, f.Run(t.Context()))
}

func TestRefocus_OnlyInChat(t *testing.T) {
	f, _, rec := mount(t, stubBackend{}, identity.NewMemoryStore())

	f.Refocus()
	assert.Empty(t, rec.snapshot(), "intake form ignores background clicks")

	require.NoError(t, f.Engine().SubmitIntake(t.Context(), widget.NewGuestDetails("Ann", "a@x.io", "")))
	f.Refocus()
	assert.Equal(t, []focusCall{{session.FocusMessageInput, false}}, rec.snapshot())
}
