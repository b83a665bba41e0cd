// Package transcript reconciles optimistic guest messages with server acknowledgments.
//
// A Transcript is an ordered list of entries. Each entry is either
// provisional (a local guest message with a temporary id, not yet
// acknowledged) or confirmed (a server message with a stable id).
//
//	tr := transcript.New(nil)
//	e := tr.AddProvisional("Hi", time.Now())
//	// ... backend acknowledges ...
//	err := tr.Promote(e.TempID(), exchange)
//
// Promote removes the provisional entry and appends the confirmed guest
// message followed by the agent reply. A temp id is never present twice, and
// provisional entries are only ever removed or promoted. Check verifies this.
//
// Transcript is not safe for concurrent use; the session engine serializes
// access to it.
package transcript
