// Package backend defines the request/response contracts between the widget
// and the chat service, and an HTTP client that speaks them.
//
// # Contracts
//
//	GetWidgetConfig(widgetID)                    GET  /widgets/config/{id}
//	StartGuest(widgetID, details)                POST /widgets/guest/start/{id}
//	InitSession(widgetID, guestID, text, origin) POST /widgets/guest/session/init/{id}
//	AppendToSession(widgetID, sessionID, text)   POST /widgets/chat/{id}/session/{sid}
//	ListSessionHistory(guestID)                  GET  /widgets/sessions/{guestID}/history
//	GetSessionMessages(sessionID)                GET  /widgets/session/{sid}/messages
//
// Bodies are snake_case JSON. A 404 maps to widget.ErrNotFound; any other
// non-2xx status becomes a *StatusError carrying the server message.
//
// Sends accept an idempotency key (the provisional temp id) which the client
// places in the Idempotency-Key header so a retried request is not stored twice.
package backend
