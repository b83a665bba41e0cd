// ABOUTME: History browsing and session resumption for the session engine
// ABOUTME: Resume always reloads from the server and replaces the transcript wholesale

package session

import (
	"context"
	"fmt"

	"github.com/2389/sten-widget/internal/widget"
)

// HistoryItem is a past session with its display label.
type HistoryItem struct {
	Session widget.Session
	Label   string
}

func historyItems(sessions []widget.Session) []HistoryItem {
	if len(sessions) == 0 {
		return nil
	}
	items := make([]HistoryItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, HistoryItem{Session: s, Label: s.Label()})
	}
	return items
}

// ShowHistory fetches the guest's sessions and enters the history view.
// The list keeps the server's order.
func (e *Engine) ShowHistory(ctx context.Context) error {
	e.mu.Lock()
	if e.guest == nil || e.view != widget.ViewChat {
		e.mu.Unlock()
		return ErrWrongView
	}
	if e.busy != BusyNone {
		e.mu.Unlock()
		return ErrBusy
	}
	e.busy = BusyHistory
	guestID := e.guest.GuestID
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

	sessions, err := e.backend.ListSessionHistory(ctx, guestID)
	if err != nil {
		e.logger.Error("history fetch failed", "guest_id", guestID, "error", err)
		werr := widget.NewError(widget.ErrorHistoryFetch, historyFailureText, err)
		result = func() { e.setNoticeLocked(werr.Kind, werr.Reason, false) }
		return werr
	}

	result = func() {
		if e.view != widget.ViewChat {
			return
		}
		e.history = sessions
		e.view = widget.ViewHistory
	}
	return nil
}

// Resume loads the stored messages of sessionID, replaces the transcript
// with them and makes it the active session. A result arriving after
// NewChat or another resume is dropped with ErrSuperseded.
func (e *Engine) Resume(ctx context.Context, sessionID string) (err error) {
	e.mu.Lock()
	if e.view != widget.ViewHistory {
		e.mu.Unlock()
		return ErrWrongView
	}
	if e.busy != BusyNone {
		e.mu.Unlock()
		return ErrBusy
	}
	e.busy = BusyResume
	epoch := e.epoch
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

	msgs, err := e.backend.GetSessionMessages(ctx, sessionID)
	if err != nil {
		e.logger.Error("resume failed", "session_id", sessionID, "error", err)
		werr := widget.NewError(widget.ErrorResume, resumeFailureText, err)
		result = func() { e.setNoticeLocked(werr.Kind, werr.Reason, false) }
		return werr
	}

	result = func() {
		if e.epoch != epoch || e.view != widget.ViewHistory {
			e.logger.Debug("discarding resume result for superseded conversation", "session_id", sessionID)
			err = ErrSuperseded
			return
		}
		e.transcript.Replace(msgs)
		e.sessionID = sessionID
		e.view = widget.ViewChat
		e.epoch++
		e.logger.Info("session resumed", "session_id", sessionID, "messages", len(msgs))
	}
	return nil
}

// ResumeAt resumes the i-th session of the history list (zero based).
func (e *Engine) ResumeAt(ctx context.Context, i int) error {
	e.mu.Lock()
	if i < 0 || i >= len(e.history) {
		n := len(e.history)
		e.mu.Unlock()
		return fmt.Errorf("history item %d out of range (have %d)", i, n)
	}
	id := e.history[i].ID
	e.mu.Unlock()
	return e.Resume(ctx, id)
}

// Back leaves the history view without changing the transcript or binding.
func (e *Engine) Back() error {
	e.mu.Lock()
	if e.view != widget.ViewHistory {
		e.mu.Unlock()
		return ErrWrongView
	}
	e.view = widget.ViewChat
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.bcast.Publish(snap)
	return nil
}
