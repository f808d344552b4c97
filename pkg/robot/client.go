package robot

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

	"github.com/teslashibe/go-luckycat/internal/httpc"
)

// DefaultTimeout bounds each robot request so a stalled robot cannot block
// a turn.
const DefaultTimeout = 2 * time.Second

// ErrMissingBaseURL indicates the robot URL was not provided.
var ErrMissingBaseURL = errors.New("robot: base URL is required")

// StatusError is a non-2xx response from the robot.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("robot: %s returned HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client implements Controller over HTTP.
type Client struct {
	BaseURL string

	http   *http.Client
	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) {
		cl.logger = l
	}
}

// NewClient creates a client for the robot at baseURL, e.g.
// "http://192.168.1.20:3000".
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    httpc.NewClient(DefaultTimeout),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "robot.client")
	return c, nil
}

// Status returns the robot status. Status 0 means idle.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status
	resp, err := c.do(ctx, http.MethodGet, "/status", nil, nil)
	if err != nil {
		return s, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return s, fmt.Errorf("decode status: %w", err)
	}
	return s, nil
}

// Speak posts text to /tts. The text and language travel both as a JSON
// body and as query parameters, which older firmware reads.
func (c *Client) Speak(ctx context.Context, text, lang string) error {
	body, err := json.Marshal(struct {
		Text string `json:"text"`
		Lang string `json:"lang"`
	}{text, lang})
	if err != nil {
		return fmt.Errorf("marshal tts: %w", err)
	}

	query := url.Values{"text": {text}, "lang": {lang}}
	resp, err := c.do(ctx, http.MethodPost, "/tts", query, bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.logger.Debug("tts requested", "chars", len(text), "lang", lang)
	return nil
}

// Reset clears the robot status.
func (c *Client) Reset(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/reset", nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.logger.Info("robot reset")
	return nil
}

// do issues a request and returns the response on 2xx. The caller closes
// the body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Endpoint: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}
