// ABOUTME: Host-side launcher: config load, closed-by-default affordance and lazy frame
// ABOUTME: Toggle flips open state and schedules a FOCUS command into the frame

package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/sten-widget/internal/backend"
	"github.com/2389/sten-widget/internal/bridge"
	"github.com/2389/sten-widget/internal/widget"
)

// DefaultFocusDelay is the wait between opening and posting FOCUS.
const DefaultFocusDelay = 100 * time.Millisecond

// Frame is the embedded context the launcher hosts.
type Frame interface {
	Run(ctx context.Context) error
	Close()
}

// FrameFactory constructs the frame for widgetID reading commands from port.
type FrameFactory func(ctx context.Context, widgetID string, port *bridge.Port) (Frame, error)

// Affordance is what the host renders for the launcher button.
type Affordance struct {
	Color   string
	IconURL string
	Open    bool
}

// Options configures Mount.
type Options struct {
	Config     backend.ConfigSource
	NewFrame   FrameFactory
	FocusDelay time.Duration
	PortBuffer int
	Logger     *slog.Logger

	// OnFrameError is called when building the frame fails after an open.
	OnFrameError func(error)
}

// Launcher is a mounted launcher.
type Launcher struct {
	widgetID     string
	config       widget.Config
	newFrame     FrameFactory
	onFrameError func(error)
	focusDelay   time.Duration
	logger       *slog.Logger
	port         *bridge.Port

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	open         bool
	frame        Frame
	constructing bool
	focusTimer   *time.Timer
	shutdown     bool
}

// Mount finds the directive in page and mounts the launcher for it.
func Mount(ctx context.Context, page io.Reader, opts Options) (*Launcher, error) {
	widgetID, err := FindWidgetID(page)
	if err != nil {
		logger(opts).Error("widget mount directive missing", "error", err)
		return nil, err
	}
	return MountWidget(ctx, widgetID, opts)
}

// MountWidget loads the config of widgetID and builds a closed launcher.
func MountWidget(ctx context.Context, widgetID string, opts Options) (*Launcher, error) {
	if opts.Config == nil {
		return nil, errors.New("launcher: config source is required")
	}
	if opts.NewFrame == nil {
		return nil, errors.New("launcher: frame factory is required")
	}
	log := logger(opts).With("component", "launcher", "widget_id", widgetID)

	cfg, err := opts.Config.GetWidgetConfig(ctx, widgetID)
	if err != nil {
		log.Error("failed to load widget config", "error", err)
		return nil, widget.NewError(widget.ErrorConfigLoad, "widget config unavailable", err)
	}

	delay := opts.FocusDelay
	if delay <= 0 {
		delay = DefaultFocusDelay
	}
	base, cancel := context.WithCancel(context.Background())

	log.Info("launcher mounted", "color", cfg.Color())
	return &Launcher{
		widgetID:     widgetID,
		config:       *cfg,
		newFrame:     opts.NewFrame,
		onFrameError: opts.OnFrameError,
		focusDelay:   delay,
		logger:       log,
		port:         bridge.NewPort(opts.PortBuffer),
		base:         base,
		cancel:       cancel,
	}, nil
}

func logger(opts Options) *slog.Logger {
	if opts.Logger == nil {
		return slog.Default()
	}
	return opts.Logger
}

// WidgetID returns the mounted widget id.
func (l *Launcher) WidgetID() string { return l.widgetID }

// Affordance returns the current launcher button state.
func (l *Launcher) Affordance() Affordance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Affordance{Color: l.config.Color(), IconURL: l.config.Icon(), Open: l.open}
}

// IsOpen reports whether the frame is shown.
func (l *Launcher) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// Toggle opens or closes the frame and returns the new state. It never waits
// on the frame: the first open builds it in the background, and FOCUS queues
// on the port until the frame starts reading. If construction fails the
// launcher closes again and OnFrameError is called.
func (l *Launcher) Toggle(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.shutdown {
		return false, errors.New("launcher: shut down")
	}

	if l.open {
		l.open = false
		l.stopFocusLocked()
		l.logger.Debug("launcher closed")
		return false, nil
	}

	if l.frame == nil && !l.constructing {
		l.constructing = true
		l.wg.Add(1)
		go l.construct()
	}

	l.open = true
	l.stopFocusLocked()
	l.focusTimer = time.AfterFunc(l.focusDelay, l.postFocus)
	l.logger.Debug("launcher opened")
	return true, nil
}

// construct builds the frame off-lock and starts its loop.
func (l *Launcher) construct() {
	defer l.wg.Done()

	f, err := l.newFrame(l.base, l.widgetID, l.port)

	l.mu.Lock()
	l.constructing = false
	if err != nil {
		l.open = false
		l.stopFocusLocked()
		stopping := l.shutdown
		l.mu.Unlock()
		if stopping {
			return
		}
		l.logger.Error("failed to construct frame", "error", err)
		if l.onFrameError != nil {
			l.onFrameError(fmt.Errorf("constructing frame: %w", err))
		}
		return
	}
	if l.shutdown {
		l.mu.Unlock()
		f.Close()
		return
	}
	l.frame = f
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		if err := f.Run(l.base); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("frame stopped", "error", err)
		}
	}()
}

// Open opens the frame if it is closed.
func (l *Launcher) Open(ctx context.Context) error {
	if l.IsOpen() {
		return nil
	}
	_, err := l.Toggle(ctx)
	return err
}

// Hide closes the frame if it is open.
func (l *Launcher) Hide(ctx context.Context) error {
	if !l.IsOpen() {
		return nil
	}
	_, err := l.Toggle(ctx)
	return err
}

func (l *Launcher) postFocus() {
	ctx, cancel := context.WithTimeout(l.base, time.Second)
	defer cancel()
	if err := l.port.Post(ctx, bridge.Focus()); err != nil {
		l.logger.Debug("focus command not delivered", "error", err)
	}
}

func (l *Launcher) stopFocusLocked() {
	if l.focusTimer != nil {
		l.focusTimer.Stop()
		l.focusTimer = nil
	}
}

// Shutdown closes the port and the frame and waits for the frame loop to exit.
func (l *Launcher) Shutdown() {
	l.mu.Lock()
	if l.shutdown {
		l.mu.Unlock()
		return
	}
	l.shutdown = true
	l.stopFocusLocked()
	f := l.frame
	l.mu.Unlock()

	l.cancel()
	l.port.Close()
	l.wg.Wait()
	if f != nil {
		f.Close()
	}
	l.logger.Debug("launcher shut down")
}
