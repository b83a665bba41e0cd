// ABOUTME: Transcript of provisional and confirmed entries with temp-id reconciliation
// ABOUTME: Provisional entries are promoted to confirmed exchanges or left in place on failure

package transcript

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/sten-widget/internal/widget"
)

// TempIDPrefix prefixes every locally generated temporary id.
const TempIDPrefix = "temp-"

// ErrUnknownTempID is returned when promoting a temp id that is not in the transcript.
var ErrUnknownTempID = errors.New("unknown provisional entry")

type kind uint8

const (
	kindProvisional kind = iota + 1
	kindConfirmed
)

// Entry is one transcript line: Provisional{TempID} or Confirmed{ID}.
type Entry struct {
	kind   kind
	tempID string
	msg    widget.Message
}

// Provisional returns the temp id and true if the entry has not been acknowledged.
func (e Entry) Provisional() (string, bool) {
	return e.tempID, e.kind == kindProvisional
}

// Confirmed returns the server id and true if the entry is server-confirmed.
func (e Entry) Confirmed() (string, bool) {
	return e.msg.ID, e.kind == kindConfirmed
}

// IsProvisional reports whether the entry awaits acknowledgment.
func (e Entry) IsProvisional() bool { return e.kind == kindProvisional }

// TempID returns the temporary id, empty for confirmed entries.
func (e Entry) TempID() string { return e.tempID }

// Message returns the message payload. Provisional entries have an empty ID.
func (e Entry) Message() widget.Message { return e.msg }

// Key returns a stable identifier for rendering: temp id or server id.
func (e Entry) Key() string {
	if e.kind == kindProvisional {
		return e.tempID
	}
	return e.msg.ID
}

// Transcript is the ordered list of visible messages.
type Transcript struct {
	entries []Entry
	newID   func() string
}

// New creates an empty transcript. newID generates temp ids; nil uses uuids.
func New(newID func() string) *Transcript {
	if newID == nil {
		newID = func() string { return TempIDPrefix + uuid.New().String() }
	}
	return &Transcript{newID: newID}
}

// AddProvisional appends a guest entry with a fresh temp id and optimistic timestamp.
func (t *Transcript) AddProvisional(text string, at time.Time) Entry {
	id := t.newID()
	for t.indexOf(id) >= 0 {
		id = t.newID()
	}
	e := Entry{
		kind:   kindProvisional,
		tempID: id,
		msg: widget.Message{
			Sender:    widget.SenderGuest,
			Text:      text,
			CreatedAt: at,
		},
	}
	t.entries = append(t.entries, e)
	return e
}

// Promote removes the provisional entry and appends the confirmed guest message
// and then the agent reply. The transcript is untouched if tempID is unknown.
func (t *Transcript) Promote(tempID string, ex widget.Exchange) error {
	i := t.indexOf(tempID)
	if i < 0 {
		return fmt.Errorf("promoting %s: %w", tempID, ErrUnknownTempID)
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	t.entries = append(t.entries,
		Entry{kind: kindConfirmed, msg: ex.Message},
		Entry{kind: kindConfirmed, msg: ex.Response},
	)
	return nil
}

// Replace swaps the whole transcript for the given confirmed messages.
func (t *Transcript) Replace(msgs []widget.Message) {
	entries := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, Entry{kind: kindConfirmed, msg: m})
	}
	t.entries = entries
}

// Clear removes every entry.
func (t *Transcript) Clear() {
	t.entries = nil
}

// Len returns the number of entries.
func (t *Transcript) Len() int { return len(t.entries) }

// Pending returns the number of provisional entries.
func (t *Transcript) Pending() int {
	n := 0
	for _, e := range t.entries {
		if e.kind == kindProvisional {
			n++
		}
	}
	return n
}

// Entries returns a copy of the entries in order.
func (t *Transcript) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Messages returns the message payloads in order.
func (t *Transcript) Messages() []widget.Message {
	out := make([]widget.Message, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.msg)
	}
	return out
}

// Check verifies the transcript invariants: temp ids are unique and only
// guest messages are provisional.
func (t *Transcript) Check() error {
	seen := make(map[string]struct{}, len(t.entries))
	for i, e := range t.entries {
		switch e.kind {
		case kindProvisional:
			if _, dup := seen[e.tempID]; dup {
				return fmt.Errorf("entry %d: duplicate temp id %s", i, e.tempID)
			}
			seen[e.tempID] = struct{}{}
			if e.msg.Sender != widget.SenderGuest {
				return fmt.Errorf("entry %d: provisional entry from %s", i, e.msg.Sender)
			}
		case kindConfirmed:
		default:
			return fmt.Errorf("entry %d: untagged entry", i)
		}
	}
	return nil
}

func (t *Transcript) indexOf(tempID string) int {
	for i, e := range t.entries {
		if e.kind == kindProvisional && e.tempID == tempID {
			return i
		}
	}
	return -1
}
