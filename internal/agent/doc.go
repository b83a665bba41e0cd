// Package agent produces AI replies for widget conversations.
//
// # Overview
//
// The widget service treats reply generation as an opaque call: it hands a
// Responder the guest's message together with the widget owner's business
// context and stores whatever text comes back.
//
//	type Responder interface {
//	    Respond(ctx context.Context, req Request) (string, error)
//	}
//
// # Implementations
//
//   - CannedResponder: a deterministic local reply, used by default and in tests
//   - HTTPResponder: forwards the request as JSON to an external agent service
//   - ResponderFunc: adapts a plain function
//
// The session id is passed along so an external agent can keep one thread
// of context per conversation.
package agent
