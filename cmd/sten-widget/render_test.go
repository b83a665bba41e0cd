// ABOUTME: Tests for the terminal snapshot renderer
// ABOUTME: Builds transcripts through the transcript package and checks printed lines

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/2389/sten-widget/internal/session"
	"github.com/2389/sten-widget/internal/transcript"
	"github.com/2389/sten-widget/internal/widget"
)

func plain(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestRenderer_ProvisionalThenConfirmed(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	r := newRenderer(&buf)

	tr := transcript.New(func() string { return "temp-1" })
	pending := tr.AddProvisional("hello", time.Now())
	r.Render(session.Snapshot{View: widget.ViewChat, Epoch: 1, Entries: tr.Entries()})

	err := tr.Promote(pending.TempID(), widget.Exchange{
		Message:  widget.Message{ID: "m1", Sender: widget.SenderGuest, Text: "hello"},
		Response: widget.Message{ID: "m2", Sender: widget.SenderAI, Text: "hi, how can I help?"},
	})
	assert.NoError(t, err)
	r.Render(session.Snapshot{View: widget.ViewChat, Epoch: 1, Entries: tr.Entries()})

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "you › hello"))
	assert.Contains(t, out, "(sending)")
	assert.Contains(t, out, "ai  › hi, how can I help?")
}

func TestRenderer_EpochChangeReprints(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	r := newRenderer(&buf)

	msgs := []widget.Message{{ID: "m1", Sender: widget.SenderAI, Text: "welcome back"}}
	tr := transcript.New(nil)
	tr.Replace(msgs)

	r.Render(session.Snapshot{View: widget.ViewChat, Epoch: 1, SessionID: "s1", Entries: tr.Entries()})
	r.Render(session.Snapshot{View: widget.ViewChat, Epoch: 1, SessionID: "s1", Entries: tr.Entries()})
	assert.Equal(t, 1, strings.Count(buf.String(), "welcome back"))

	r.Render(session.Snapshot{View: widget.ViewChat, Epoch: 2, SessionID: "s1", Entries: tr.Entries()})
	assert.Equal(t, 2, strings.Count(buf.String(), "welcome back"))
	assert.Contains(t, buf.String(), "chat (session s1)")
}

func TestRenderer_HistoryAndNotice(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	r := newRenderer(&buf)

	summary := "Asked about shipping"
	r.Render(session.Snapshot{
		View: widget.ViewHistory,
		History: []session.HistoryItem{
			{Session: widget.Session{ID: "s1", Summary: &summary}, Label: summary},
		},
	})
	notice := &session.Notice{ID: 7, Text: "Could not load that conversation. Please try again."}
	r.Render(session.Snapshot{View: widget.ViewHistory, Notice: notice})
	r.Render(session.Snapshot{View: widget.ViewHistory, Notice: notice})

	out := buf.String()
	assert.Contains(t, out, "1. Asked about shipping")
	assert.Equal(t, 1, strings.Count(out, "! Could not load that conversation"))
}

func TestRenderer_IntakeHeader(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	r := newRenderer(&buf)
	r.Render(session.Snapshot{View: widget.ViewIntakeForm, Welcome: "Hi there!"})
	r.Focus(session.FocusNameField, true)

	out := buf.String()
	assert.Contains(t, out, "── Hi there! ──")
	assert.Contains(t, out, "(name field focused)")
}
