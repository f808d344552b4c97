package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-luckycat/internal/httpc"
	"github.com/teslashibe/go-luckycat/pkg/history"
	"github.com/teslashibe/go-luckycat/pkg/metrics"
)

// Defaults for the chat server.
const (
	DefaultBaseURL       = "https://chat.idthk.net/"
	DefaultChatPath      = "api/postchat/"
	DefaultPromptSetPath = "api/promptset/"
	DefaultTimeout       = 60 * time.Second
)

// Config configures a chat server Client.
type Config struct {
	BaseURL       string
	ChatPath      string
	PromptSetPath string

	// Username and Password are sent as HTTP basic auth.
	Username string
	Password string

	// Directive is appended to the history of every request.
	Directive string

	// Mode is used when PromptSet is nil. With a PromptSet the mode is
	// always ModeSelect.
	Mode      Mode
	PromptSet *int

	Timeout time.Duration

	// Transport overrides the HTTP transport beneath basic auth.
	Transport http.RoundTripper

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		ChatPath:      DefaultChatPath,
		PromptSetPath: DefaultPromptSetPath,
		Directive:     DefaultDirective,
		Mode:          ModeUserDefault,
		Timeout:       DefaultTimeout,
	}
}

// Client calls the chat server.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a chat server client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("chat: invalid base URL: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if cfg.ChatPath == "" {
		cfg.ChatPath = DefaultChatPath
	}
	if cfg.PromptSetPath == "" {
		cfg.PromptSetPath = DefaultPromptSetPath
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeUserDefault
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := httpc.NewBasicAuthClient(cfg.Timeout, cfg.Username, cfg.Password)
	if cfg.Transport != nil {
		client.Transport = &httpc.BasicAuthTransport{
			Username: cfg.Username,
			Password: cfg.Password,
			Base:     cfg.Transport,
		}
	}

	return &Client{
		cfg:     cfg,
		base:    base,
		http:    client,
		logger:  cfg.Logger.With("component", "chat.client", "base_url", base.String()),
		metrics: cfg.Metrics,
	}, nil
}

// NewRequest builds the request for text. The directive is appended to a
// copy of hist.
func (c *Client) NewRequest(text string, hist []history.Entry) *Request {
	req := &Request{
		Message:        text,
		MessageHistory: withDirective(hist, c.cfg.Directive),
		Mode:           c.cfg.Mode,
	}
	if c.cfg.PromptSet != nil {
		set := *c.cfg.PromptSet
		req.Mode = ModeSelect
		req.Set = &set
	}
	return req
}

// Reply implements Backend.
func (c *Client) Reply(ctx context.Context, text string, hist []history.Entry) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	resp, err := c.Post(ctx, c.NewRequest(text, hist))
	if err != nil {
		c.metrics.ChatError("server")
		return "", err
	}

	reply, err := resp.Reply()
	if err != nil {
		c.metrics.ChatError("server")
		return "", err
	}

	c.logger.Debug("chat reply",
		"finished_reason", resp.Choices[0].FinishedReason,
		"chars", len(reply),
	)
	return reply, nil
}

// Post sends one postchat request.
func (c *Client) Post(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var resp Response
	if err := c.do(ctx, http.MethodPost, c.cfg.ChatPath, bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PromptSets lists the prompt sets available to the account.
func (c *Client) PromptSets(ctx context.Context) ([]PromptSet, error) {
	var sets []PromptSet
	if err := c.do(ctx, http.MethodGet, c.cfg.PromptSetPath, nil, &sets); err != nil {
		return nil, err
	}
	return sets, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("chat: invalid path %q: %w", path, err)
	}
	endpoint := c.base.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return NewAPIError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ Backend = (*Client)(nil)
