// ABOUTME: Session state machine owning view, identity, binding and transcript
// ABOUTME: Drives intake, send reconciliation, new chat and focus targeting

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/sten-widget/internal/backend"
	"github.com/2389/sten-widget/internal/identity"
	"github.com/2389/sten-widget/internal/transcript"
	"github.com/2389/sten-widget/internal/widget"
)

// DefaultNoticeTTL is how long a transient notice stays visible.
const DefaultNoticeTTL = 3 * time.Second

// Guest-facing failure copy.
const (
	startFailureText   = "Error starting chat. Please try again."
	sendFailureText    = "Failed to send message. Please try again."
	historyFailureText = "Could not load your conversations. Please try again."
	resumeFailureText  = "Could not load that conversation. Please try again."
)

var (
	// ErrWrongView is returned when an action is not available in the current view.
	ErrWrongView = errors.New("action not available in current view")
	// ErrBusy is returned while another intake, history or resume request is settling.
	ErrBusy = errors.New("another request is in progress")
	// ErrEmptyMessage is returned for blank input; nothing is sent.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSendInFlight is returned when a send is already pending.
	ErrSendInFlight = errors.New("a message is already being sent")
	// ErrSuperseded is returned when a result arrived after the binding changed.
	ErrSuperseded = errors.New("result discarded: conversation changed")
)

// Busy names the async transition currently settling.
type Busy string

const (
	BusyNone    Busy = ""
	BusyIntake  Busy = "intake"
	BusyHistory Busy = "history"
	BusyResume  Busy = "resume"
)

// FocusTarget is the control the frame should focus.
type FocusTarget string

const (
	FocusNone         FocusTarget = ""
	FocusNameField    FocusTarget = "name"
	FocusMessageInput FocusTarget = "message"
)

// Notice is a transient guest-facing message. Inline notices belong to the
// intake form rather than the notice area.
type Notice struct {
	ID     uint64
	Kind   widget.ErrorKind
	Text   string
	Inline bool
}

// Context is everything an Engine needs from the frame that hosts it.
type Context struct {
	WidgetID string
	// Config is nil when the frame could not load it.
	Config   *widget.Config
	Identity identity.Store
	Backend  backend.Backend
	Logger   *slog.Logger

	NoticeTTL time.Duration
	Now       func() time.Time
	NewTempID func() string
}

// Snapshot is a consistent copy of engine state for rendering.
type Snapshot struct {
	View       widget.View
	Busy       Busy
	Sending    bool
	GuestID    string
	SessionID  string
	NextOrigin widget.Origin
	Entries    []transcript.Entry
	History    []HistoryItem
	Notice     *Notice
	Config     widget.Config
	Welcome    string
	Epoch      uint64
}

// Engine is the session state machine of one frame.
type Engine struct {
	widgetID  string
	config    *widget.Config
	identity  identity.Store
	backend   backend.Backend
	logger    *slog.Logger
	noticeTTL time.Duration
	now       func() time.Time
	bcast     *Broadcaster

	mu          sync.Mutex
	view        widget.View
	busy        Busy
	sending     bool
	guest       *widget.GuestIdentity
	sessionID   string
	nextOrigin  widget.Origin
	transcript  *transcript.Transcript
	history     []widget.Session
	epoch       uint64
	notice      *Notice
	noticeSeq   uint64
	noticeTimer *time.Timer
}

// New builds an Engine in the loading view. Call Start to choose the first view.
func New(c Context) (*Engine, error) {
	if strings.TrimSpace(c.WidgetID) == "" {
		return nil, errors.New("session: widget id is required")
	}
	if c.Identity == nil {
		return nil, errors.New("session: identity store is required")
	}
	if c.Backend == nil {
		return nil, errors.New("session: backend is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.NoticeTTL <= 0 {
		c.NoticeTTL = DefaultNoticeTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	logger := c.Logger.With("component", "session", "widget_id", c.WidgetID)

	return &Engine{
		widgetID:   c.WidgetID,
		config:     c.Config,
		identity:   c.Identity,
		backend:    c.Backend,
		logger:     logger,
		noticeTTL:  c.NoticeTTL,
		now:        c.Now,
		bcast:      NewBroadcaster(logger),
		view:       widget.ViewLoading,
		nextOrigin: widget.OriginAutoStart,
		transcript: transcript.New(c.NewTempID),
	}, nil
}

// Start reads the stored identity once and leaves the loading view.
// Without a config the stored identity is ignored and intake is shown.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.view != widget.ViewLoading {
		e.mu.Unlock()
		return ErrWrongView
	}
	e.mu.Unlock()

	var guest *widget.GuestIdentity
	if e.config != nil {
		id, err := e.identity.Load(ctx, e.widgetID)
		switch {
		case err == nil:
			guest = id
		case errors.Is(err, identity.ErrNotFound):
		default:
			e.logger.Warn("failed to load guest identity", "error", err)
		}
	} else {
		e.logger.Warn("no widget config; showing intake with default copy")
	}

	e.update(func() {
		if guest != nil {
			e.guest = guest
			e.view = widget.ViewChat
			return
		}
		e.view = widget.ViewIntakeForm
	})
	e.logger.Info("session started", "view", e.View(), "returning_guest", guest != nil)
	return nil
}

// SubmitIntake validates the details, asks the backend for a guest identity,
// persists it and enters chat with an empty transcript.
func (e *Engine) SubmitIntake(ctx context.Context, d widget.GuestDetails) error {
	e.mu.Lock()
	if e.view != widget.ViewIntakeForm {
		e.mu.Unlock()
		return ErrWrongView
	}
	if e.busy != BusyNone {
		e.mu.Unlock()
		return ErrBusy
	}
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		var werr *widget.Error
		errors.As(err, &werr)
		e.setNoticeLocked(werr.Kind, werr.Reason, true)
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.bcast.Publish(snap)
		return err
	}
	e.busy = BusyIntake
	e.clearNoticeLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.bcast.Publish(snap)

	result := func() {}
	defer func() {
		e.update(func() {
			e.busy = BusyNone
			result()
		})
	}()

	resp, err := e.backend.StartGuest(ctx, e.widgetID, backend.StartGuestFromDetails(d))
	if err != nil {
		e.logger.Error("guest start failed", "error", err)
		werr := widget.NewError(widget.ErrorStart, startFailureText, err)
		result = func() { e.setNoticeLocked(werr.Kind, werr.Reason, false) }
		return werr
	}

	guest := widget.GuestIdentity{GuestID: resp.GuestID}
	if err := e.identity.Save(ctx, e.widgetID, guest); err != nil {
		e.logger.Error("failed to persist guest identity", "guest_id", guest.GuestID, "error", err)
	}

	result = func() {
		e.guest = &guest
		e.view = widget.ViewChat
		e.transcript.Clear()
		e.sessionID = ""
		e.nextOrigin = widget.OriginAutoStart
		e.history = nil
		e.epoch++
	}
	e.logger.Info("guest identified", "guest_id", guest.GuestID)
	return nil
}

// Send appends a provisional entry and delivers text to the backend: a new
// session when none is bound, otherwise the active one. On success the
// provisional entry is replaced by the confirmed message and the reply.
func (e *Engine) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	e.mu.Lock()
	if e.guest == nil || (e.view != widget.ViewChat && e.view != widget.ViewHistory) {
		e.mu.Unlock()
		return ErrWrongView
	}
	if e.sending {
		e.mu.Unlock()
		return ErrSendInFlight
	}
	origin := e.nextOrigin
	if e.view == widget.ViewHistory && e.sessionID == "" {
		origin = widget.OriginResumed
	}
	entry := e.transcript.AddProvisional(text, e.now())
	prevView := e.view
	e.sending = true
	e.view = widget.ViewChat
	epoch := e.epoch
	sessionID := e.sessionID
	guestID := e.guest.GuestID
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.bcast.Publish(snap)

	tempID := entry.TempID()
	var (
		ex  *widget.Exchange
		err error
	)
	if sessionID == "" {
		ex, err = e.backend.InitSession(ctx, e.widgetID, backend.InitSessionRequest{
			GuestID: guestID,
			Message: text,
			Origin:  origin,
		}, tempID)
	} else {
		ex, err = e.backend.AppendToSession(ctx, e.widgetID, sessionID, backend.ChatRequest{Message: text}, tempID)
	}

	var outcome error
	e.update(func() {
		e.sending = false
		if e.epoch != epoch {
			e.logger.Debug("discarding send result for superseded conversation", "temp_id", tempID)
			outcome = ErrSuperseded
			return
		}
		if err != nil {
			e.logger.Error("send failed", "session_id", sessionID, "temp_id", tempID, "error", err)
			werr := widget.NewError(widget.ErrorSend, sendFailureText, err)
			e.setNoticeLocked(werr.Kind, werr.Reason, false)
			if e.view == widget.ViewChat {
				e.view = prevView
			}
			outcome = werr
			return
		}
		if perr := e.transcript.Promote(tempID, *ex); perr != nil {
			e.logger.Warn("could not reconcile send", "error", perr)
			outcome = perr
			return
		}
		if e.sessionID == "" {
			e.sessionID = ex.Message.SessionID
			e.logger.Info("session bound", "session_id", e.sessionID, "origin", origin)
		}
	})
	return outcome
}

// NewChat clears the transcript and unbinds the session. The identity is kept
// and the next send creates a manual session.
func (e *Engine) NewChat() error {
	e.mu.Lock()
	if e.guest == nil || (e.view != widget.ViewChat && e.view != widget.ViewHistory) {
		e.mu.Unlock()
		return ErrWrongView
	}
	e.transcript.Clear()
	e.sessionID = ""
	e.nextOrigin = widget.OriginManual
	e.view = widget.ViewChat
	e.epoch++
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.bcast.Publish(snap)
	e.logger.Debug("new chat")
	return nil
}

// Focus returns the control a FOCUS command should focus in the current view.
func (e *Engine) Focus() FocusTarget {
	switch e.View() {
	case widget.ViewIntakeForm:
		return FocusNameField
	case widget.ViewChat:
		return FocusMessageInput
	default:
		return FocusNone
	}
}

// Refocus returns the target for a background click: the message input in chat.
func (e *Engine) Refocus() FocusTarget {
	if e.View() == widget.ViewChat {
		return FocusMessageInput
	}
	return FocusNone
}

// DismissNotice clears the current notice.
func (e *Engine) DismissNotice() {
	e.update(e.clearNoticeLocked)
}

// View returns the current view.
func (e *Engine) View() widget.View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe returns a channel of snapshots published after every change.
func (e *Engine) Subscribe(ctx context.Context) (<-chan Snapshot, string) {
	return e.bcast.Subscribe(ctx)
}

// CheckTranscript verifies the transcript invariants.
func (e *Engine) CheckTranscript() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.transcript.Check(); err != nil {
		return fmt.Errorf("session %q: %w", e.sessionID, err)
	}
	return nil
}

// Close stops the notice timer and closes subscriber channels.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.noticeTimer != nil {
		e.noticeTimer.Stop()
	}
	e.mu.Unlock()
	e.bcast.Close()
}

// update applies fn under the lock and publishes the resulting snapshot.
func (e *Engine) update(fn func()) {
	e.mu.Lock()
	fn()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.bcast.Publish(snap)
}

func (e *Engine) setNoticeLocked(kind widget.ErrorKind, text string, inline bool) {
	e.noticeSeq++
	id := e.noticeSeq
	e.notice = &Notice{ID: id, Kind: kind, Text: text, Inline: inline}
	if e.noticeTimer != nil {
		e.noticeTimer.Stop()
	}
	e.noticeTimer = time.AfterFunc(e.noticeTTL, func() {
		e.update(func() {
			if e.notice != nil && e.notice.ID == id {
				e.notice = nil
			}
		})
	})
}

func (e *Engine) clearNoticeLocked() {
	if e.noticeTimer != nil {
		e.noticeTimer.Stop()
		e.noticeTimer = nil
	}
	e.notice = nil
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		View:       e.view,
		Busy:       e.busy,
		Sending:    e.sending,
		SessionID:  e.sessionID,
		NextOrigin: e.nextOrigin,
		Entries:    e.transcript.Entries(),
		History:    historyItems(e.history),
		Epoch:      e.epoch,
	}
	if e.guest != nil {
		snap.GuestID = e.guest.GuestID
	}
	if e.notice != nil {
		n := *e.notice
		snap.Notice = &n
	}
	if e.config != nil {
		snap.Config = *e.config
	}
	snap.Welcome = snap.Config.Welcome()
	return snap
}
