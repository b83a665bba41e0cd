// ABOUTME: Gateway orchestrator that serves the widget HTTP contracts
// ABOUTME: Owns the store, conversation service, replay cache and HTTP server lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/sten-widget/internal/agent"
	"github.com/2389/sten-widget/internal/config"
	"github.com/2389/sten-widget/internal/conversation"
	"github.com/2389/sten-widget/internal/dedupe"
	"github.com/2389/sten-widget/internal/store"
	"github.com/2389/sten-widget/internal/widget"
)

// Gateway serves the widget endpoints over HTTP.
type Gateway struct {
	config       *config.Config
	store        store.Store
	conversation *conversation.Service
	broadcaster  *conversation.MessageBroadcaster
	replays      *dedupe.Cache[*widget.Exchange]
	limiter      *limiterPool
	metrics      *metrics
	httpServer   *http.Server
	logger       *slog.Logger

	// listenAddr is set once Run has bound the listener
	listenAddr chan string
}

// Option customizes a Gateway.
type Option func(*options)

type options struct {
	store     store.Store
	responder agent.Responder
}

// WithStore uses s instead of opening config.Database.Path.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithResponder uses r instead of the responder selected by config.Agent.
func WithResponder(r agent.Responder) Option {
	return func(o *options) { o.responder = r }
}

// initStore opens the SQLite database named by the config.
func initStore(cfg *config.Config) (store.Store, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

// initResponder picks the HTTP agent when configured, canned replies otherwise.
func initResponder(cfg *config.Config, logger *slog.Logger) agent.Responder {
	if cfg.Agent.URL == "" {
		logger.Info("no agent.url configured, using canned replies")
		return agent.CannedResponder{}
	}
	logger.Info("using HTTP agent", "url", cfg.Agent.URL, "timeout", cfg.Agent.Timeout)
	return agent.NewHTTPResponder(cfg.Agent.URL, cfg.Agent.Timeout)
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := o.store
	if s == nil {
		var err error
		if s, err = initStore(cfg); err != nil {
			return nil, err
		}
	}
	responder := o.responder
	if responder == nil {
		responder = initResponder(cfg, logger)
	}

	broadcaster := conversation.NewMessageBroadcaster(logger)
	replays := dedupe.New[*widget.Exchange](cfg.Replay.TTL, cfg.Replay.MaxSize)
	convService := conversation.New(s, responder, logger,
		conversation.WithBroadcaster(broadcaster),
		conversation.WithReplayCache(replays),
	)

	gw := &Gateway{
		config:       cfg,
		store:        s,
		conversation: convService,
		broadcaster:  broadcaster,
		replays:      replays,
		limiter:      newLimiterPool(cfg.Limits.SendRPS, cfg.Limits.SendBurst),
		metrics:      newMetrics(),
		logger:       logger.With("component", "gateway"),
		listenAddr:   make(chan string, 1),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Service returns the conversation service behind the HTTP handlers.
func (g *Gateway) Service() *conversation.Service {
	return g.conversation
}

// Addr blocks until Run has bound its listener and returns the address.
func (g *Gateway) Addr(ctx context.Context) (string, error) {
	select {
	case addr := <-g.listenAddr:
		g.listenAddr <- addr
		return addr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}
	g.listenAddr <- ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases the store and caches.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.broadcaster.Close()
	g.replays.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the store answers queries.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.ListWidgets(r.Context(), 1); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
