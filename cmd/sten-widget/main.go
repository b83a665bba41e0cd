// ABOUTME: Entry point for sten-widget, a terminal host for the chat widget
// ABOUTME: Mounts the launcher, lazily builds the frame and drives the session from stdin

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/sten-widget/internal/backend"
	"github.com/2389/sten-widget/internal/bridge"
	"github.com/2389/sten-widget/internal/frame"
	"github.com/2389/sten-widget/internal/hostconfig"
	"github.com/2389/sten-widget/internal/identity"
	"github.com/2389/sten-widget/internal/launcher"
	"github.com/2389/sten-widget/internal/logging"
	"github.com/2389/sten-widget/internal/session"
	"github.com/2389/sten-widget/internal/widget"
)

const helpText = `Commands:
  /open          open the widget
  /close         close the widget
  /new           start a new conversation
  /history       list past conversations
  /resume N      continue conversation N from the list
  /back          leave the conversation list
  /dismiss       clear the current notice
  /quit          exit
Anything else is sent as a message.`

// getConfigPath returns the path to the widget host config file.
// Priority: STEN_WIDGET_CONFIG env var > XDG_CONFIG_HOME/sten/widget.toml > ~/.config/sten/widget.toml
func getConfigPath() string {
	if envPath := os.Getenv("STEN_WIDGET_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "widget.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "sten", "widget.toml")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*hostconfig.Config, error) {
	cfg, err := hostconfig.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return hostconfig.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func setupLogger(cfg hostconfig.LoggingConfig) (*slog.Logger, func(), error) {
	if cfg.File == "" {
		return logging.New(os.Stderr, cfg.Level, "text"), func() {}, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return logging.New(f, cfg.Level, "json"), func() { _ = f.Close() }, nil
}

func openIdentity(cfg hostconfig.IdentityConfig, logger *slog.Logger) (identity.Store, error) {
	if cfg.DBPath == "" {
		return identity.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}
	return identity.NewSQLiteStore(cfg.DBPath, logger)
}

// host wires the launcher to the terminal.
type host struct {
	launcher *launcher.Launcher
	render   *renderer
	out      io.Writer
	logger   *slog.Logger

	mu     sync.Mutex
	engine *session.Engine
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fset := flag.NewFlagSet("sten-widget", flag.ContinueOnError)
	configPath := fset.String("config", getConfigPath(), "path to widget.toml")
	widgetID := fset.String("widget", "", "public widget id (overrides config)")
	page := fset.String("page", "", "host page HTML carrying the mount directive")
	backendURL := fset.String("backend", "", "gateway base URL (overrides config)")
	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *widgetID != "" {
		cfg.Widget.ID = *widgetID
	}
	if *page != "" {
		cfg.Widget.PagePath = *page
	}
	if *backendURL != "" {
		cfg.Backend.URL = *backendURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	ids, err := openIdentity(cfg.Identity, logger)
	if err != nil {
		return err
	}
	defer ids.Close()

	client := backend.NewClient(cfg.Backend.URL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(logger),
	)

	h := &host{render: newRenderer(stdout), out: stdout, logger: logger}

	opts := launcher.Options{
		Config:     client,
		FocusDelay: cfg.UI.FocusDelay,
		Logger:     logger,
		NewFrame: func(fctx context.Context, id string, port *bridge.Port) (launcher.Frame, error) {
			f, err := frame.Mount(fctx, id, port, frame.Options{
				Backend:   client,
				Identity:  ids,
				Focuser:   h.render,
				Logger:    logger,
				NoticeTTL: cfg.UI.NoticeTTL,
			})
			if err != nil {
				return nil, err
			}
			h.attach(ctx, f.Engine())
			return f, nil
		},
	}

	opts.OnFrameError = func(err error) {
		fmt.Fprintln(stdout, color.RedString("✗ could not open the widget: %v", err))
	}

	l, err := mount(ctx, cfg.Widget, opts)
	if err != nil {
		return err
	}
	defer l.Shutdown()
	h.launcher = l

	aff := l.Affordance()
	fmt.Fprintf(stdout, "%s widget %s ready %s\n",
		color.CyanString("●"), l.WidgetID(), color.HiBlackString("(color %s, icon %s)", aff.Color, aff.IconURL))
	fmt.Fprintln(stdout, color.HiBlackString("Type /open to start, /help for commands."))

	return h.loop(ctx, stdin)
}

func mount(ctx context.Context, wc hostconfig.WidgetConfig, opts launcher.Options) (*launcher.Launcher, error) {
	if wc.ID != "" {
		return launcher.MountWidget(ctx, wc.ID, opts)
	}
	if wc.PagePath == "" {
		return nil, errors.New("no widget configured: set widget.id or widget.page, or pass -widget")
	}
	f, err := os.Open(wc.PagePath)
	if err != nil {
		return nil, fmt.Errorf("opening host page: %w", err)
	}
	defer f.Close()
	return launcher.Mount(ctx, f, opts)
}

// attach renders the engine's current state and follows its snapshots.
func (h *host) attach(ctx context.Context, eng *session.Engine) {
	h.mu.Lock()
	h.engine = eng
	h.mu.Unlock()

	ch, _ := eng.Subscribe(ctx)
	h.render.Render(eng.Snapshot())
	go func() {
		for snap := range ch {
			h.render.Render(snap)
		}
	}()
}

func (h *host) current() *session.Engine {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine
}

func (h *host) loop(ctx context.Context, stdin io.Reader) error {
	reader := bufio.NewReader(stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := reader.ReadString('\n')
			if line = strings.TrimRight(line, "\r\n"); line != "" || err == nil {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	next := func() (string, bool) {
		select {
		case <-ctx.Done():
			return "", false
		case line, ok := <-lines:
			return line, ok
		}
	}

	for {
		line, ok := next()
		if !ok {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := h.command(ctx, line); quit {
				return nil
			}
			continue
		}
		h.text(ctx, line, next)
	}
}

// command runs a slash command and reports whether the host should exit.
func (h *host) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	eng := h.current()

	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(h.out, helpText)
	case "/open":
		h.report(h.launcher.Open(ctx))
	case "/close":
		h.report(h.launcher.Hide(ctx))
		if !h.launcher.IsOpen() {
			fmt.Fprintln(h.out, color.HiBlackString("widget closed"))
		}
	case "/new":
		if h.ready(eng) {
			h.report(eng.NewChat())
		}
	case "/history":
		if h.ready(eng) {
			go func() { h.report(eng.ShowHistory(ctx)) }()
		}
	case "/resume":
		if !h.ready(eng) {
			break
		}
		if len(fields) != 2 {
			fmt.Fprintln(h.out, "usage: /resume N")
			break
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			fmt.Fprintln(h.out, "usage: /resume N")
			break
		}
		go func() { h.report(eng.ResumeAt(ctx, n-1)) }()
	case "/back":
		if h.ready(eng) {
			h.report(eng.Back())
		}
	case "/dismiss":
		if h.ready(eng) {
			eng.DismissNotice()
		}
	default:
		fmt.Fprintf(h.out, "unknown command %s, try /help\n", fields[0])
	}
	return false
}

// text handles a non-command line according to the current view.
func (h *host) text(ctx context.Context, line string, next func() (string, bool)) {
	eng := h.current()
	if !h.ready(eng) {
		return
	}

	switch eng.View() {
	case widget.ViewIntakeForm:
		fmt.Fprint(h.out, "Email: ")
		email, _ := next()
		fmt.Fprint(h.out, "Phone (if no email): ")
		phone, _ := next()
		details := widget.NewGuestDetails(line, email, phone)
		go func() { h.report(eng.SubmitIntake(ctx, details)) }()
	case widget.ViewChat, widget.ViewHistory:
		go func() { h.report(eng.Send(ctx, line)) }()
	default:
		fmt.Fprintln(h.out, color.HiBlackString("still loading"))
	}
}

// ready reports whether eng can take input, explaining why not otherwise.
func (h *host) ready(eng *session.Engine) bool {
	switch {
	case !h.launcher.IsOpen():
		fmt.Fprintln(h.out, color.HiBlackString("the widget is closed, /open it first"))
		return false
	case eng == nil:
		fmt.Fprintln(h.out, color.HiBlackString("still loading"))
		return false
	}
	return true
}

// report prints errors the engine does not already surface as a notice.
func (h *host) report(err error) {
	if err == nil || errors.Is(err, session.ErrSuperseded) {
		return
	}
	var werr *widget.Error
	if errors.As(err, &werr) {
		h.logger.Debug("widget error", "kind", werr.Kind, "error", err)
		return
	}
	fmt.Fprintln(h.out, color.RedString("✗ %v", err))
}
