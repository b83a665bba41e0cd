// ABOUTME: Tests for the HTTP backend client
// ABOUTME: Uses httptest servers to verify paths, bodies, headers and error mapping

package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/sten-widget/internal/widget"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestGetWidgetConfig(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/widgets/config/w1", r.URL.Path)
		w.Write([]byte(`{"public_widget_id":"w1","theme":"light","primary_color":"#ff0000","icon_url":null,"welcome_message":"Hello"}`))
	})

	cfg, err := c.GetWidgetConfig(t.Context(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "w1", cfg.WidgetID)
	assert.Equal(t, "#ff0000", cfg.Color())
	assert.Equal(t, widget.DefaultIconURL, cfg.Icon())
	assert.Equal(t, "Hello", cfg.Welcome())
}

func TestGetWidgetConfig_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]string{"error": "widget not found"})
	})

	_, err := c.GetWidgetConfig(t.Context(), "nope")
	assert.ErrorIs(t, err, widget.ErrNotFound)
}

func TestStartGuest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/widgets/guest/start/w1", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Ann", req["name"])
		assert.Equal(t, "a@x.io", req["email"])
		_, hasPhone := req["phone"]
		assert.False(t, hasPhone, "absent contacts are omitted")
		writeJSON(t, w, http.StatusOK, StartGuestResponse{GuestID: "g1", WidgetOwnerID: "u1", Status: StatusReady})
	})

	resp, err := c.StartGuest(t.Context(), "w1", StartGuestFromDetails(widget.NewGuestDetails("Ann", "a@x.io", "")))
	require.NoError(t, err)
	assert.Equal(t, "g1", resp.GuestID)
	assert.Equal(t, StatusReady, resp.Status)
}

func TestStartGuest_MissingGuestID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]string{"status": "ready"})
	})

	_, err := c.StartGuest(t.Context(), "w1", StartGuestRequest{Name: "Ann"})
	assert.ErrorContains(t, err, "no guest_id")
}

func TestInitSession_SendsOriginAndIdempotencyKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/widgets/guest/session/init/w1", r.URL.Path)
		assert.Equal(t, "temp-1", r.Header.Get(IdempotencyHeader))
		var req InitSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, InitSessionRequest{GuestID: "g1", Message: "Hi", Origin: widget.OriginManual}, req)
		writeJSON(t, w, http.StatusOK, widget.Exchange{
			Message:  widget.Message{ID: "m1", SessionID: "s1", Sender: widget.SenderGuest, Text: "Hi"},
			Response: widget.Message{ID: "m2", SessionID: "s1", Sender: widget.SenderAI, Text: "Hello!"},
		})
	})

	ex, err := c.InitSession(t.Context(), "w1", InitSessionRequest{GuestID: "g1", Message: "Hi", Origin: widget.OriginManual}, "temp-1")
	require.NoError(t, err)
	assert.Equal(t, "s1", ex.Message.SessionID)
	assert.Equal(t, "Hello!", ex.Response.Text)
}

func TestInitSession_RequiresSessionID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, widget.Exchange{})
	})

	_, err := c.InitSession(t.Context(), "w1", InitSessionRequest{GuestID: "g1", Message: "Hi"}, "")
	assert.ErrorContains(t, err, "no session_id")
}

func TestAppendToSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/widgets/chat/w1/session/s1", r.URL.Path)
		assert.Empty(t, r.Header.Get(IdempotencyHeader))
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "More", req.Message)
		writeJSON(t, w, http.StatusOK, widget.Exchange{
			Message:  widget.Message{ID: "m3", SessionID: "s1", Text: "More"},
			Response: widget.Message{ID: "m4", SessionID: "s1", Text: "Sure"},
		})
	})

	ex, err := c.AppendToSession(t.Context(), "w1", "s1", ChatRequest{Message: "More"}, "")
	require.NoError(t, err)
	assert.Equal(t, "m3", ex.Message.ID)
}

func TestListSessionHistoryAndMessages(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/widgets/sessions/g1/history":
			writeJSON(t, w, http.StatusOK, []widget.Session{{ID: "s2", Origin: widget.OriginManual, CreatedAt: created}, {ID: "s1"}})
		case "/widgets/session/s1/messages":
			writeJSON(t, w, http.StatusOK, []widget.Message{{ID: "m1", Text: "Hi"}, {ID: "m2", Text: "Hello!"}})
		default:
			http.NotFound(w, r)
		}
	})

	sessions, err := c.ListSessionHistory(t.Context(), "g1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s2", sessions[0].ID)
	assert.True(t, created.Equal(sessions[0].CreatedAt))

	msgs, err := c.GetSessionMessages(t.Context(), "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	_, err = c.GetSessionMessages(t.Context(), "missing")
	assert.ErrorIs(t, err, widget.ErrNotFound)
}

func TestStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
	})

	_, err := c.ListSessionHistory(t.Context(), "g1")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "boom", se.Message)
}

func TestWithTimeout(t *testing.T) {
	c := NewClient("http://localhost", WithTimeout(2*time.Second))
	assert.Equal(t, 2*time.Second, c.httpClient.Timeout)

	c = NewClient("http://localhost", WithTimeout(0))
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestErrorMessage_PlainText(t *testing.T) {
	assert.Equal(t, "bad gateway", errorMessage([]byte("bad gateway\n")))
}
