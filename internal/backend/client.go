// ABOUTME: HTTP implementation of Backend against the widget service
// ABOUTME: Maps 404 to widget.ErrNotFound and other failures to StatusError

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/sten-widget/internal/widget"
)

// DefaultTimeout bounds each backend request.
const DefaultTimeout = 30 * time.Second

// StatusError captures a non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: status %d from %s: %s", e.StatusCode, e.URL, e.Message)
}

// Client talks to the widget service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "backend")
	return c
}

func (c *Client) GetWidgetConfig(ctx context.Context, widgetID string) (*widget.Config, error) {
	var cfg widget.Config
	if err := c.do(ctx, http.MethodGet, "/widgets/config/"+url.PathEscape(widgetID), nil, "", &cfg); err != nil {
		return nil, fmt.Errorf("fetching widget config: %w", err)
	}
	return &cfg, nil
}

func (c *Client) StartGuest(ctx context.Context, widgetID string, req StartGuestRequest) (*StartGuestResponse, error) {
	var resp StartGuestResponse
	if err := c.do(ctx, http.MethodPost, "/widgets/guest/start/"+url.PathEscape(widgetID), req, "", &resp); err != nil {
		return nil, fmt.Errorf("starting guest: %w", err)
	}
	if resp.GuestID == "" {
		return nil, errors.New("starting guest: response has no guest_id")
	}
	return &resp, nil
}

func (c *Client) InitSession(ctx context.Context, widgetID string, req InitSessionRequest, idempotencyKey string) (*widget.Exchange, error) {
	var ex widget.Exchange
	if err := c.do(ctx, http.MethodPost, "/widgets/guest/session/init/"+url.PathEscape(widgetID), req, idempotencyKey, &ex); err != nil {
		return nil, fmt.Errorf("initializing session: %w", err)
	}
	if ex.Message.SessionID == "" {
		return nil, errors.New("initializing session: response has no session_id")
	}
	return &ex, nil
}

func (c *Client) AppendToSession(ctx context.Context, widgetID, sessionID string, req ChatRequest, idempotencyKey string) (*widget.Exchange, error) {
	path := "/widgets/chat/" + url.PathEscape(widgetID) + "/session/" + url.PathEscape(sessionID)
	var ex widget.Exchange
	if err := c.do(ctx, http.MethodPost, path, req, idempotencyKey, &ex); err != nil {
		return nil, fmt.Errorf("appending to session: %w", err)
	}
	return &ex, nil
}

func (c *Client) ListSessionHistory(ctx context.Context, guestID string) ([]widget.Session, error) {
	var sessions []widget.Session
	if err := c.do(ctx, http.MethodGet, "/widgets/sessions/"+url.PathEscape(guestID)+"/history", nil, "", &sessions); err != nil {
		return nil, fmt.Errorf("listing session history: %w", err)
	}
	return sessions, nil
}

func (c *Client) GetSessionMessages(ctx context.Context, sessionID string) ([]widget.Message, error) {
	var msgs []widget.Message
	if err := c.do(ctx, http.MethodGet, "/widgets/session/"+url.PathEscape(sessionID)+"/messages", nil, "", &msgs); err != nil {
		return nil, fmt.Errorf("fetching session messages: %w", err)
	}
	return msgs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, idempotencyKey string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		return widget.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, URL: endpoint, Message: errorMessage(data)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// errorMessage extracts {"error": ...} or {"detail": ...} from an error body.
func errorMessage(data []byte) string {
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	return strings.TrimSpace(string(data))
}

var _ Backend = (*Client)(nil)
