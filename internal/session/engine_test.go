// ABOUTME: Tests for the session state machine
// ABOUTME: Covers view transitions, intake, send reconciliation, new chat and focus

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/sten-widget/internal/identity"
	"github.com/2389/sten-widget/internal/widget"
)

type harness struct {
	engine   *Engine
	backend  *fakeBackend
	identity *identity.MemoryStore
}

func newHarness(t *testing.T, withConfig bool) *harness {
	t.Helper()
	h := &harness{backend: newFakeBackend(), identity: identity.NewMemoryStore()}
	var cfg *widget.Config
	if withConfig {
		welcome := "Welcome to Acme"
		cfg = &widget.Config{WidgetID: "w1", Theme: "light", PrimaryColor: "#123456", WelcomeMessage: &welcome}
	}
	eng, err := New(Context{
		WidgetID:  "w1",
		Config:    cfg,
		Identity:  h.identity,
		Backend:   h.backend,
		NoticeTTL: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	h.engine = eng
	return h
}

// started returns a harness whose engine is in chat with guest g1.
func started(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, true)
	require.NoError(t, h.identity.Save(t.Context(), "w1", widget.GuestIdentity{GuestID: "g1"}))
	require.NoError(t, h.engine.Start(t.Context()))
	require.Equal(t, widget.ViewChat, h.engine.View())
	return h
}

func texts(s Snapshot) []string {
	out := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, e.Message().Text)
	}
	return out
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Context{Identity: identity.NewMemoryStore(), Backend: newFakeBackend()})
	assert.Error(t, err)
	_, err = New(Context{WidgetID: "w1", Backend: newFakeBackend()})
	assert.Error(t, err)
	_, err = New(Context{WidgetID: "w1", Identity: identity.NewMemoryStore()})
	assert.Error(t, err)
}

func TestStart_NoIdentityShowsIntake(t *testing.T) {
	h := newHarness(t, true)
	assert.Equal(t, widget.ViewLoading, h.engine.View())

	require.NoError(t, h.engine.Start(t.Context()))

	snap := h.engine.Snapshot()
	assert.Equal(t, widget.ViewIntakeForm, snap.View)
	assert.Equal(t, "Welcome to Acme", snap.Welcome)
	assert.Equal(t, FocusNameField, h.engine.Focus())
}

func TestStart_StoredIdentityGoesStraightToCleanChat(t *testing.T) {
	h := started(t)

	snap := h.engine.Snapshot()
	assert.Equal(t, "g1", snap.GuestID)
	assert.Empty(t, snap.Entries, "transcript starts empty")
	assert.Empty(t, snap.SessionID)
	assert.Equal(t, 0, h.backend.messageCalls, "no eager re-fetch")
	assert.Equal(t, FocusMessageInput, h.engine.Focus())
}

func TestStart_WithoutConfigIgnoresIdentity(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.identity.Save(t.Context(), "w1", widget.GuestIdentity{GuestID: "g1"}))

	require.NoError(t, h.engine.Start(t.Context()))

	snap := h.engine.Snapshot()
	assert.Equal(t, widget.ViewIntakeForm, snap.View)
	assert.Empty(t, snap.GuestID)
	assert.Equal(t, widget.DefaultWelcomeMessage, snap.Welcome)
	assert.Equal(t, widget.DefaultPrimaryColor, snap.Config.Color())
}

func TestStart_OnlyOnce(t *testing.T) {
	h := started(t)
	assert.ErrorIs(t, h.engine.Start(t.Context()), ErrWrongView)
}

func TestSubmitIntake_ValidPersistsOneIdentity(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.engine.Start(t.Context()))

	err := h.engine.SubmitIntake(t.Context(), widget.NewGuestDetails("Ann", "ann@example.com", ""))
	require.NoError(t, err)

	snap := h.engine.Snapshot()
	assert.Equal(t, widget.ViewChat, snap.View)
	assert.Equal(t, BusyNone, snap.Busy)
	assert.Empty(t, snap.Entries)
	assert.Empty(t, snap.SessionID)
	assert.Equal(t, "g1", snap.GuestID)

	assert.Equal(t, []string{"sten_guest_w1"}, h.identity.Keys())
	stored, err := h.identity.Load(t.Context(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "g1", stored.GuestID)

	start, _, _ := h.backend.counts()
	assert.Equal(t, 1, start)
}

func TestSubmitIntake_InvalidMakesNoNetworkCall(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.engine.Start(t.Context()))
	before := h.engine.Snapshot()

	err := h.engine.SubmitIntake(t.Context(), widget.NewGuestDetails("Ann", " ", ""))
	require.Error(t, err)
	assert.True(t, widget.IsKind(err, widget.ErrorValidation))

	start, _, _ := h.backend.counts()
	assert.Equal(t, 0, start)

	snap := h.engine.Snapshot()
	assert.Equal(t, before.View, snap.View)
	assert.Equal(t, before.Epoch, snap.Epoch)
	require.NotNil(t, snap.Notice)
	assert.True(t, snap.Notice.Inline)
	assert.Equal(t, "Please provide name and either email or phone.", snap.Notice.Text)
	assert.Empty(t, h.identity.Keys())
}

func TestSubmitIntake_BlankContactPointersMakeNoNetworkCall(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.engine.Start(t.Context()))

	empty, blank := "", "   "
	err := h.engine.SubmitIntake(t.Context(), widget.GuestDetails{Name: "Ann", Email: &empty, Phone: &blank})
	assert.True(t, widget.IsKind(err, widget.ErrorValidation))

	start, _, _ := h.backend.counts()
	assert.Equal(t, 0, start)
	assert.Equal(t, widget.ViewIntakeForm, h.engine.View())
	assert.Empty(t, h.identity.Keys())
}

func TestSubmitIntake_SendsNormalizedDetails(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.engine.Start(t.Context()))

	email, blank := " ann@example.com ", " "
	require.NoError(t, h.engine.SubmitIntake(t.Context(), widget.GuestDetails{Name: " Ann ", Email: &email, Phone: &blank}))

	require.Len(t, h.backend.startCalls, 1)
	req := h.backend.startCalls[0]
	assert.Equal(t, "Ann", req.Name)
	require.NotNil(t, req.Email)
	assert.Equal(t, "ann@example.com", *req.Email)
	assert.Nil(t, req.Phone)
}

func TestSubmitIntake_BackendFailureStaysOnIntake(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.engine.Start(t.Context()))
	h.backend.startErr = errors.New("connection refused")

	err := h.engine.SubmitIntake(t.Context(), widget.NewGuestDetails("Ann", "", "555-0100"))
	assert.True(t, widget.IsKind(err, widget.ErrorStart))

	snap := h.engine.Snapshot()
	assert.Equal(t, widget.ViewIntakeForm, snap.View)
	assert.Equal(t, BusyNone, snap.Busy, "busy state restored")
	require.NotNil(t, snap.Notice)
	assert.Equal(t, "Error starting chat. Please try again.", snap.Notice.Text)
	assert.False(t, snap.Notice.Inline)
	assert.Empty(t, h.identity.Keys())
}

func TestSubmitIntake_OnlyFromIntakeView(t *testing.T) {
	h := started(t)
	err := h.engine.SubmitIntake(t.Context(), widget.NewGuestDetails("Ann", "a@x.io", ""))
	assert.ErrorIs(t, err, ErrWrongView)
}

func TestSend_WorkedExample(t *testing.T) {
	h := started(t)
	h.backend.reply = "Hi! How can I help?"

	require.NoError(t, h.engine.Send(t.Context(), "Hi"))

	require.Len(t, h.backend.initCalls, 1)
	assert.Equal(t, "g1", h.backend.initCalls[0].GuestID)
	assert.Equal(t, "Hi", h.backend.initCalls[0].Message)
	assert.Equal(t, widget.OriginAutoStart, h.backend.initCalls[0].Origin)

	snap := h.engine.Snapshot()
	assert.Equal(t, "s1", snap.SessionID)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, widget.SenderGuest, snap.Entries[0].Message().Sender)
	assert.Equal(t, "Hi", snap.Entries[0].Message().Text)
	assert.Equal(t, widget.SenderAI, snap.Entries[1].Message().Sender)
	assert.Equal(t, "Hi! How can I help?", snap.Entries[1].Message().Text)

	require.NoError(t, h.engine.Send(t.Context(), "More?"))

	_, inits, appends := h.backend.counts()
	assert.Equal(t, 1, inits)
	require.Equal(t, 1, appends)
	assert.Equal(t, appendCall{WidgetID: "w1", SessionID: "s1", Message: "More?", Key: h.backend.appendCalls[0].Key}, h.backend.appendCalls[0])
	assert.Equal(t, []string{"Hi", "Hi! How can I help?", "More?", "Hi! How can I help?"}, texts(h.engine.Snapshot()))
	assert.NoError(t, h.engine.CheckTranscript())
}

func TestSend_UsesTempIDAsIdempotencyKey(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.identity.Save(t.Context(), "w1", widget.GuestIdentity{GuestID: "g1"}))
	eng, err := New(Context{
		WidgetID:  "w1",
		Config:    &widget.Config{WidgetID: "w1"},
		Identity:  h.identity,
		Backend:   h.backend,
		NewTempID: func() string { return "temp-fixed" },
	})
	require.NoError(t, err)
	defer eng.Close()
	require.NoError(t, eng.Start(t.Context()))

	require.NoError(t, eng.Send(t.Context(), "Hi"))
	assert.Equal(t, []string{"temp-fixed"}, h.backend.initKeys)
}

func TestSend_SuccessLeavesNoProvisionalEntry(t *testing.T) {
	h := started(t)
	require.NoError(t, h.engine.Send(t.Context(), "Hi"))

	for i, e := range h.engine.Snapshot().Entries {
		assert.False(t, e.IsProvisional(), "entry %d still provisional", i)
	}
}

func TestSend_FailureKeepsProvisionalAndAppendsNoReply(t *testing.T) {
	h := started(t)
	h.backend.sendErr = errors.New("503")

	err := h.engine.Send(t.Context(), "Hi")
	assert.True(t, widget.IsKind(err, widget.ErrorSend))

	snap := h.engine.Snapshot()
	require.Len(t, snap.Entries, 1)
	assert.True(t, snap.Entries[0].IsProvisional())
	assert.Equal(t, "Hi", snap.Entries[0].Message().Text)
	assert.Empty(t, snap.SessionID)
	assert.False(t, snap.Sending)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, widget.ErrorSend, snap.Notice.Kind)
	assert.Equal(t, "Failed to send message. Please try again.", snap.Notice.Text)

	// no automatic retry
	_, inits, _ := h.backend.counts()
	assert.Equal(t, 1, inits)
}

func TestSend_RejectsBlankInput(t *testing.T) {
	h := started(t)

	assert.ErrorIs(t, h.engine.Send(t.Context(), "   \n"), ErrEmptyMessage)

	_, inits, _ := h.backend.counts()
	assert.Equal(t, 0, inits)
	assert.Empty(t, h.engine.Snapshot().Entries)
}

func TestSend_RequiresIdentity(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.engine.Start(t.Context()))
	assert.ErrorIs(t, h.engine.Send(t.Context(), "Hi"), ErrWrongView)
}

func TestSend_RejectsOverlappingSend(t *testing.T) {
	h := started(t)
	h.backend.sendGate = make(chan struct{})
	h.backend.sendSeen = make(chan struct{}, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.engine.Send(context.Background(), "first"))
	}()
	<-h.backend.sendSeen

	assert.ErrorIs(t, h.engine.Send(t.Context(), "second"), ErrSendInFlight)
	snap := h.engine.Snapshot()
	assert.True(t, snap.Sending)
	assert.Equal(t, []string{"first"}, texts(snap), "provisional entry visible while pending")

	close(h.backend.sendGate)
	wg.Wait()

	assert.Equal(t, 2, len(h.engine.Snapshot().Entries))
	_, inits, _ := h.backend.counts()
	assert.Equal(t, 1, inits)
}

func TestSend_ResultDiscardedAfterNewChat(t *testing.T) {
	h := started(t)
	h.backend.sendGate = make(chan struct{})
	h.backend.sendSeen = make(chan struct{}, 1)

	errc := make(chan error, 1)
	go func() { errc <- h.engine.Send(context.Background(), "old") }()
	<-h.backend.sendSeen

	require.NoError(t, h.engine.NewChat())
	close(h.backend.sendGate)
	assert.ErrorIs(t, <-errc, ErrSuperseded)

	snap := h.engine.Snapshot()
	assert.Empty(t, snap.Entries)
	assert.Empty(t, snap.SessionID, "stale session id never bound")
	assert.False(t, snap.Sending)
}

func TestNewChat_ClearsAndUnbindsButKeepsIdentity(t *testing.T) {
	h := started(t)
	require.NoError(t, h.engine.Send(t.Context(), "Hi"))
	first := h.engine.Snapshot()
	require.Equal(t, "s1", first.SessionID)

	require.NoError(t, h.engine.NewChat())

	snap := h.engine.Snapshot()
	assert.Empty(t, snap.Entries)
	assert.Empty(t, snap.SessionID)
	assert.Equal(t, "g1", snap.GuestID)
	assert.Equal(t, widget.OriginManual, snap.NextOrigin)
	assert.Greater(t, snap.Epoch, first.Epoch)

	require.NoError(t, h.engine.Send(t.Context(), "Fresh start"))
	require.Len(t, h.backend.initCalls, 2)
	assert.Equal(t, widget.OriginManual, h.backend.initCalls[1].Origin)
	assert.Equal(t, "s2", h.engine.Snapshot().SessionID)
	assert.NotEqual(t, first.SessionID, h.engine.Snapshot().SessionID)

	stored, err := h.identity.Load(t.Context(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "g1", stored.GuestID)
}

func TestNewChat_RequiresChat(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.engine.Start(t.Context()))
	assert.ErrorIs(t, h.engine.NewChat(), ErrWrongView)
}

func TestFocusAndRefocus(t *testing.T) {
	h := newHarness(t, true)
	assert.Equal(t, FocusNone, h.engine.Focus(), "loading")
	assert.Equal(t, FocusNone, h.engine.Refocus())

	require.NoError(t, h.engine.Start(t.Context()))
	assert.Equal(t, FocusNameField, h.engine.Focus())
	assert.Equal(t, FocusNone, h.engine.Refocus())

	require.NoError(t, h.engine.SubmitIntake(t.Context(), widget.NewGuestDetails("Ann", "a@x.io", "")))
	assert.Equal(t, FocusMessageInput, h.engine.Focus())
	assert.Equal(t, FocusMessageInput, h.engine.Refocus())

	require.NoError(t, h.engine.ShowHistory(t.Context()))
	assert.Equal(t, FocusNone, h.engine.Focus())
}

func TestNotice_ExpiresAfterTTL(t *testing.T) {
	b := newFakeBackend()
	b.sendErr = errors.New("down")
	store := identity.NewMemoryStore()
	require.NoError(t, store.Save(t.Context(), "w1", widget.GuestIdentity{GuestID: "g1"}))
	eng, err := New(Context{WidgetID: "w1", Config: &widget.Config{}, Identity: store, Backend: b, NoticeTTL: 20 * time.Millisecond})
	require.NoError(t, err)
	defer eng.Close()
	require.NoError(t, eng.Start(t.Context()))

	_ = eng.Send(t.Context(), "Hi")
	require.NotNil(t, eng.Snapshot().Notice)

	assert.Eventually(t, func() bool { return eng.Snapshot().Notice == nil }, time.Second, 5*time.Millisecond)
}

func TestDismissNotice(t *testing.T) {
	h := started(t)
	h.backend.sendErr = errors.New("down")
	_ = h.engine.Send(t.Context(), "Hi")
	require.NotNil(t, h.engine.Snapshot().Notice)

	h.engine.DismissNotice()
	assert.Nil(t, h.engine.Snapshot().Notice)
}

func TestSubscribe_ReceivesSnapshots(t *testing.T) {
	h := newHarness(t, true)
	ch, _ := h.engine.Subscribe(t.Context())

	require.NoError(t, h.engine.Start(t.Context()))

	select {
	case snap := <-ch:
		assert.Equal(t, widget.ViewIntakeForm, snap.View)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}
