// Package conversation implements the widget chat contracts on top of storage.
//
// # Overview
//
// The conversation package sits between the HTTP handlers and the store. It
// owns guest identification, session creation, message recording and the
// hand-off to the reply generator.
//
// # Service
//
//	svc := conversation.New(st, agent.CannedResponder{}, logger,
//		conversation.WithReplayCache(dedupe.New[*widget.Exchange](10*time.Minute, 10000)),
//		conversation.WithBroadcaster(conversation.NewMessageBroadcaster(logger)),
//	)
//
// Service implements backend.Backend, so a widget host can use it directly
// instead of going through HTTP.
//
// # Record First, Then Act
//
// When a guest message arrives:
//
//  1. The widget and guest (or session) are looked up
//  2. For a first message, a session is created with the requested origin
//  3. The guest message is stored
//  4. The responder is asked for a reply
//  5. The reply is stored and both lines are returned as one exchange
//
// If the responder fails, the guest message stays recorded and the call
// returns an error wrapping ErrAgent.
//
// # Guest Matching
//
// Starting a guest reuses an existing guest of the same widget when the email
// matches. Only when no email is given is the phone used for matching.
//
// # Analysis
//
// Analyze stores a short summary and one of Intents on a session. The summary
// becomes the session's label in the widget history list.
//
// # Watching Sessions
//
// MessageBroadcaster fans stored messages out to watchers of a session id.
// Delivery is non-blocking; slow watchers drop messages.
package conversation
