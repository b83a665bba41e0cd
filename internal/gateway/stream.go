// ABOUTME: Server-Sent Events stream of a session's stored messages
// ABOUTME: Lets a dashboard or second tab follow a conversation live

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/sten-widget/internal/conversation"
)

// keepaliveInterval spaces comment lines that keep idle proxies from closing the stream.
const keepaliveInterval = 25 * time.Second

func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, err := g.conversation.Watch(r.Context(), sessionID)
	if errors.Is(err, conversation.ErrWatchUnavailable) {
		g.sendJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	g.writeSSEEvent(w, "started", map[string]string{"session_id": sessionID})
	flusher.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				g.writeSSEEvent(w, "done", map[string]string{"session_id": sessionID})
				flusher.Flush()
				return
			}
			g.writeSSEEvent(w, "message", msg)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a Server-Sent Event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
