package robot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/teslashibe/go-luckycat/internal/log"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/", WithLogger(log.Discard()))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestClient_Status(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
		idle bool
	}{
		{"idle", `{"status": 0}`, 0, true},
		{"speaking", `{"status": 1}`, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/status" {
					t.Errorf("expected /status, got %s", r.URL.Path)
				}
				w.Write([]byte(tt.body))
			})

			s, err := c.Status(context.Background())
			if err != nil {
				t.Fatalf("Status failed: %v", err)
			}
			if s.Status != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, s.Status)
			}
			if s.Idle() != tt.idle {
				t.Errorf("expected idle %v, got %v", tt.idle, s.Idle())
			}
		})
	}
}

func TestClient_Speak(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tts" {
			t.Errorf("expected POST /tts, got %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("text"); got != "你好" {
			t.Errorf("expected text query 你好, got %q", got)
		}

		var body struct {
			Text string `json:"text"`
			Lang string `json:"lang"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Text != "你好" || body.Lang != "yue-HK" {
			t.Errorf("unexpected body %+v", body)
		}
	})

	if err := c.Speak(context.Background(), "你好", "yue-HK"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
}

func TestClient_Reset(t *testing.T) {
	var called atomic.Bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called.Store(r.Method == http.MethodGet && r.URL.Path == "/reset")
	})

	if err := c.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if !called.Load() {
		t.Error("expected GET /reset")
	}
}

func TestClient_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})

	_, err := c.Status(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", statusErr.StatusCode)
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(""); err != ErrMissingBaseURL {
		t.Errorf("expected ErrMissingBaseURL, got %v", err)
	}
}

func TestMock_DefaultsToIdle(t *testing.T) {
	m := &Mock{}

	s, err := m.Status(context.Background())
	if err != nil || !s.Idle() {
		t.Errorf("expected idle status, got %+v, %v", s, err)
	}
	m.Speak(context.Background(), "hi", "en")
	if calls := m.SpeakCalls(); len(calls) != 1 || calls[0].Text != "hi" {
		t.Errorf("unexpected speak calls %+v", calls)
	}
}
