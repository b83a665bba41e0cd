// ABOUTME: Terminal rendering of session engine snapshots
// ABOUTME: Prints view changes, new transcript lines, history lists and notices

package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/sten-widget/internal/session"
	"github.com/2389/sten-widget/internal/widget"
)

// renderer turns snapshots into incremental terminal output.
type renderer struct {
	mu sync.Mutex
	w  io.Writer

	view    widget.View
	epoch   uint64
	started bool
	printed map[string]bool
	// pending counts provisional lines already shown, by text
	pending  map[string]int
	noticeID uint64
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, printed: make(map[string]bool), pending: make(map[string]int)}
}

func (r *renderer) Render(snap session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started || snap.View != r.view || snap.Epoch != r.epoch {
		if snap.Epoch != r.epoch || !r.started {
			r.printed = make(map[string]bool)
			r.pending = make(map[string]int)
		}
		r.started = true
		r.view = snap.View
		r.epoch = snap.Epoch
		r.header(snap)
	}

	if snap.View == widget.ViewChat {
		r.entries(snap)
	}

	if snap.Notice != nil && snap.Notice.ID != r.noticeID {
		r.noticeID = snap.Notice.ID
		fmt.Fprintln(r.w, color.YellowString("! %s", snap.Notice.Text))
	}
}

func (r *renderer) header(snap session.Snapshot) {
	gray := color.New(color.FgHiBlack)
	switch snap.View {
	case widget.ViewLoading:
		gray.Fprintln(r.w, "loading...")
	case widget.ViewIntakeForm:
		fmt.Fprintln(r.w, color.CyanString("── %s ──", snap.Welcome))
		gray.Fprintln(r.w, "Type your name to start a conversation.")
	case widget.ViewChat:
		label := "new conversation"
		if snap.SessionID != "" {
			label = "session " + snap.SessionID
		}
		fmt.Fprintln(r.w, color.CyanString("── chat (%s) ──", label))
		r.printed = make(map[string]bool)
		r.pending = make(map[string]int)
	case widget.ViewHistory:
		fmt.Fprintln(r.w, color.CyanString("── your conversations ──"))
		if len(snap.History) == 0 {
			gray.Fprintln(r.w, "  no past conversations")
		}
		for i, item := range snap.History {
			fmt.Fprintf(r.w, "  %d. %s %s\n", i+1, item.Label,
				gray.Sprint(item.Session.LastMessageAt.Local().Format("Jan 2 15:04")))
		}
		gray.Fprintln(r.w, "/resume N to continue one, /back to return")
	}
}

func (r *renderer) entries(snap session.Snapshot) {
	for _, e := range snap.Entries {
		key := e.Key()
		if r.printed[key] {
			continue
		}
		r.printed[key] = true
		msg := e.Message()

		if e.IsProvisional() {
			r.pending[msg.Text]++
			fmt.Fprintf(r.w, "%s %s %s\n", color.GreenString("you ›"), msg.Text, color.HiBlackString("(sending)"))
			continue
		}
		if msg.Sender == widget.SenderGuest {
			if r.pending[msg.Text] > 0 {
				r.pending[msg.Text]--
				continue
			}
			fmt.Fprintf(r.w, "%s %s\n", color.GreenString("you ›"), msg.Text)
			continue
		}
		fmt.Fprintf(r.w, "%s %s\n", color.MagentaString("ai  ›"), msg.Text)
	}
}

// Focus prints the cue for the control the frame focused.
func (r *renderer) Focus(target session.FocusTarget, selectAll bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch target {
	case session.FocusNameField:
		color.New(color.FgHiBlack).Fprintln(r.w, "(name field focused)")
	case session.FocusMessageInput:
		color.New(color.FgHiBlack).Fprintln(r.w, "(message input focused)")
	}
}
