// ABOUTME: HTTP handlers for the widget contracts
// ABOUTME: Decode JSON, call the conversation service and map its errors to status codes

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/2389/sten-widget/internal/backend"
	"github.com/2389/sten-widget/internal/conversation"
)

// maxBodyBytes bounds request bodies; widget messages are short.
const maxBodyBytes = 64 << 10

func (g *Gateway) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := g.conversation.GetWidgetConfig(r.Context(), chi.URLParam(r, "widgetID"))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, cfg)
}

func (g *Gateway) handleStartGuest(w http.ResponseWriter, r *http.Request) {
	var req backend.StartGuestRequest
	if !g.decode(w, r, &req) {
		return
	}
	resp, err := g.conversation.StartGuest(r.Context(), chi.URLParam(r, "widgetID"), req)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleInitSession(w http.ResponseWriter, r *http.Request) {
	var req backend.InitSessionRequest
	if !g.decode(w, r, &req) {
		return
	}
	if !g.allow(w, "guest:"+req.GuestID) {
		return
	}
	ex, err := g.conversation.InitSession(r.Context(), chi.URLParam(r, "widgetID"), req, r.Header.Get(backend.IdempotencyHeader))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.metrics.exchanges.WithLabelValues("init").Inc()
	g.sendJSON(w, http.StatusOK, ex)
}

func (g *Gateway) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req backend.ChatRequest
	if !g.decode(w, r, &req) {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if !g.allow(w, "session:"+sessionID) {
		return
	}
	ex, err := g.conversation.AppendToSession(r.Context(), chi.URLParam(r, "widgetID"), sessionID, req, r.Header.Get(backend.IdempotencyHeader))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.metrics.exchanges.WithLabelValues("append").Inc()
	g.sendJSON(w, http.StatusOK, ex)
}

// handleLegacyChat keeps the guest-scoped chat endpoint working for old embeds.
func (g *Gateway) handleLegacyChat(w http.ResponseWriter, r *http.Request) {
	var req backend.ChatRequest
	if !g.decode(w, r, &req) {
		return
	}
	guestID := chi.URLParam(r, "guestID")
	if !g.allow(w, "guest:"+guestID) {
		return
	}
	ex, err := g.conversation.LegacyChat(r.Context(), chi.URLParam(r, "widgetID"), guestID, req, r.Header.Get(backend.IdempotencyHeader))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.metrics.exchanges.WithLabelValues("legacy").Inc()
	g.sendJSON(w, http.StatusOK, ex)
}

func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessions, err := g.conversation.ListSessionHistory(r.Context(), chi.URLParam(r, "guestID"))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, sessions)
}

func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := g.conversation.GetSessionMessages(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, msgs)
}

func (g *Gateway) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	s, err := g.conversation.Analyze(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, s)
}

// decode reads a JSON body into v, replying 400 on failure.
func (g *Gateway) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// allow applies the per-key send limiter, replying 429 when exceeded.
func (g *Gateway) allow(w http.ResponseWriter, key string) bool {
	if g.limiter.Allow(key) {
		return true
	}
	g.metrics.rateLimited.Inc()
	w.Header().Set("Retry-After", "1")
	g.sendJSONError(w, http.StatusTooManyRequests, "too many messages, slow down")
	return false
}

// sendServiceError maps conversation errors onto HTTP statuses.
func (g *Gateway) sendServiceError(w http.ResponseWriter, err error) {
	var nf *conversation.NotFoundError
	switch {
	case errors.As(err, &nf):
		g.sendJSONError(w, http.StatusNotFound, nf.Error())
	case errors.Is(err, conversation.ErrInvalidRequest):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrAgent):
		g.logger.Warn("agent failure", "error", err)
		g.sendJSONError(w, http.StatusBadGateway, "agent unavailable")
	default:
		g.logger.Error("request failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
