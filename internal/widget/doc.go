// Package widget defines the shared domain types of the embeddable chat widget.
//
// # Overview
//
// Every other package speaks in these types: the launcher, the embedded frame,
// the session engine, the backend client and the reference gateway.
//
//   - Config: styling and copy for one widget, immutable per page load
//   - GuestIdentity: the persisted guest identifier for a widget
//   - Session: one bounded conversation thread, unbound until first ack
//   - Message: one confirmed transcript line (guest or ai)
//   - View: the single mutually exclusive UI state of the frame
//
// # Origins
//
// A session records how it was created:
//
//   - auto-start: first message on a clean slate
//   - manual: first message after an explicit "new chat"
//   - resumed: first message sent from the history view with no bound session
//
// # Errors
//
// Client-side failures are classified with ErrorKind and carried in *Error.
// Use IsKind to match them:
//
//	if widget.IsKind(err, widget.ErrorValidation) {
//		// show inline, nothing was sent
//	}
package widget
