// ABOUTME: chi route table for the widget endpoints, health and metrics
// ABOUTME: Wires request id, real ip, recovery, logging, CORS and instrumentation

package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler builds the HTTP handler serving every gateway route.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(g.logger))
	r.Use(middleware.Recoverer)
	r.Use(g.metrics.instrument)
	r.Use(cors(g.config.CORS.AllowedOrigins))

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)
	if g.config.Metrics.Enabled {
		r.Method(http.MethodGet, g.config.Metrics.Path, g.metrics.handler())
	}

	r.Route("/widgets", func(wr chi.Router) {
		wr.Get("/config/{widgetID}", g.handleGetConfig)
		wr.Post("/guest/start/{widgetID}", g.handleStartGuest)
		wr.Post("/guest/session/init/{widgetID}", g.handleInitSession)
		wr.Post("/chat/{widgetID}/session/{sessionID}", g.handleAppend)
		wr.Post("/chat/{widgetID}/{guestID}", g.handleLegacyChat)
		wr.Get("/sessions/{guestID}/history", g.handleHistory)
		wr.Get("/session/{sessionID}/messages", g.handleMessages)
		wr.Post("/session/{sessionID}/analyze", g.handleAnalyze)
		wr.Get("/session/{sessionID}/stream", g.handleStream)
	})

	return r
}
