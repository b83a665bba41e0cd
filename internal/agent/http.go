// ABOUTME: HTTP responder that forwards guest messages to an external agent service
// ABOUTME: Posts the Request as JSON and reads {"response": "..."} back

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPResponder calls an external agent over HTTP.
type HTTPResponder struct {
	url    string
	client *http.Client
}

// NewHTTPResponder creates a responder posting to url.
func NewHTTPResponder(url string, timeout time.Duration) *HTTPResponder {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPResponder{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
	}
}

type replyBody struct {
	Response string `json:"response"`
}

func (h *HTTPResponder) Respond(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling agent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("agent returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var reply replyBody
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decoding agent reply: %w", err)
	}
	if strings.TrimSpace(reply.Response) == "" {
		return "", ErrEmptyReply
	}
	return reply.Response, nil
}
