// ABOUTME: Embedded frame host: owns one session Engine and consumes the inbound port
// ABOUTME: Applies FOCUS commands to the UI focuser according to the current view

// Package frame is the widget's isolated execution context. It loads its own
// config, builds the session Engine and reacts to commands from the launcher.
package frame

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/sten-widget/internal/backend"
	"github.com/2389/sten-widget/internal/bridge"
	"github.com/2389/sten-widget/internal/identity"
	"github.com/2389/sten-widget/internal/session"
)

// Focuser moves keyboard focus in the host UI. selectAll asks for the field
// content to be selected so typing replaces it.
type Focuser interface {
	Focus(target session.FocusTarget, selectAll bool)
}

// FocuserFunc adapts a function to Focuser.
type FocuserFunc func(target session.FocusTarget, selectAll bool)

func (f FocuserFunc) Focus(target session.FocusTarget, selectAll bool) { f(target, selectAll) }

// Options configures Mount.
type Options struct {
	Backend   backend.Backend
	Identity  identity.Store
	Focuser   Focuser
	Logger    *slog.Logger
	NoticeTTL time.Duration
}

// Frame is a mounted widget frame.
type Frame struct {
	widgetID string
	engine   *session.Engine
	port     *bridge.Port
	ui       Focuser
	logger   *slog.Logger

	closeOnce sync.Once
}

// Mount loads the widget config, builds the Engine and chooses the first view.
// A config failure is not fatal here: the engine falls back to intake with
// default copy.
func Mount(ctx context.Context, widgetID string, port *bridge.Port, opts Options) (*Frame, error) {
	if port == nil {
		return nil, errors.New("frame: port is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("frame: backend is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "frame", "widget_id", widgetID)

	cfg, err := opts.Backend.GetWidgetConfig(ctx, widgetID)
	if err != nil {
		logger.Error("failed to load widget config in frame", "error", err)
		cfg = nil
	}

	eng, err := session.New(session.Context{
		WidgetID:  widgetID,
		Config:    cfg,
		Identity:  opts.Identity,
		Backend:   opts.Backend,
		Logger:    opts.Logger,
		NoticeTTL: opts.NoticeTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("building session engine: %w", err)
	}
	if err := eng.Start(ctx); err != nil {
		eng.Close()
		return nil, fmt.Errorf("starting session engine: %w", err)
	}

	ui := opts.Focuser
	if ui == nil {
		ui = FocuserFunc(func(session.FocusTarget, bool) {})
	}

	return &Frame{
		widgetID: widgetID,
		engine:   eng,
		port:     port,
		ui:       ui,
		logger:   logger,
	}, nil
}

// Engine returns the frame's session engine.
func (f *Frame) Engine() *session.Engine { return f.engine }

// Run consumes the inbound port until ctx is done or the port closes.
func (f *Frame) Run(ctx context.Context) error {
	for {
		data, err := f.port.Receive(ctx)
		if errors.Is(err, bridge.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		f.handle(data)
	}
}

func (f *Frame) handle(data []byte) {
	msg, err := bridge.Decode(data)
	if err != nil {
		f.logger.Debug("ignoring malformed port message", "error", err)
		return
	}
	switch msg.Type {
	case bridge.TypeFocus:
		f.apply(f.engine.Focus())
	default:
		f.logger.Debug("ignoring port message", "type", msg.Type)
	}
}

// Refocus handles a click on the frame background.
func (f *Frame) Refocus() {
	f.apply(f.engine.Refocus())
}

func (f *Frame) apply(target session.FocusTarget) {
	switch target {
	case session.FocusNameField:
		f.ui.Focus(target, true)
	case session.FocusMessageInput:
		f.ui.Focus(target, false)
	}
}

// Close shuts the engine down.
func (f *Frame) Close() {
	f.closeOnce.Do(f.engine.Close)
}
