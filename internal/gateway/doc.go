// Package gateway serves the widget HTTP contracts for sten-gateway.
//
// # Overview
//
// The gateway owns the store, the conversation service and the HTTP
// server. Handlers decode JSON, call the service and map its errors onto
// status codes with a {"error": "..."} body.
//
// # Routes
//
//	GET  /widgets/config/{widgetID}
//	POST /widgets/guest/start/{widgetID}
//	POST /widgets/guest/session/init/{widgetID}
//	POST /widgets/chat/{widgetID}/session/{sessionID}
//	POST /widgets/chat/{widgetID}/{guestID}          (legacy, always a new session)
//	GET  /widgets/sessions/{guestID}/history
//	GET  /widgets/session/{sessionID}/messages
//	POST /widgets/session/{sessionID}/analyze
//	GET  /widgets/session/{sessionID}/stream         (Server-Sent Events)
//	GET  /health, /health/ready
//	GET  /metrics                                    (when metrics.enabled)
//
// # Sends
//
// Send endpoints honor the Idempotency-Key header: a repeated key returns
// the first exchange without storing the message again. Each guest (for
// session init) or session (for appends) has its own token bucket; excess
// sends get 429 with Retry-After.
//
// # Errors
//
//   - 400: malformed JSON or missing fields
//   - 404: unknown widget, guest or session ("Widget not found")
//   - 429: send rate exceeded
//   - 502: the agent failed after the guest message was stored
//   - 500: anything else
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks; shuts down within 5s of ctx cancel
package gateway
