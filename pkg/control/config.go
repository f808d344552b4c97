package control

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-luckycat/pkg/metrics"
)

// Config holds configuration for a Channel.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://192.168.1.20:3000/control.
	URL string

	// Header is sent with every handshake.
	Header http.Header

	// ReconnectDelay is the fixed wait before every re-dial.
	ReconnectDelay time.Duration

	// HandshakeTimeout bounds a single dial.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// PingInterval is how often keepalive pings are sent. Zero disables
	// pings and the read deadline.
	PingInterval time.Duration

	// PongWait is how long the connection may stay silent before it is
	// considered dead. Only used when PingInterval > 0.
	PongWait time.Duration

	// MaxMessageSize caps inbound frames.
	MaxMessageSize int64

	// SendBuffer is the number of outbound frames queued per connection.
	SendBuffer int

	// SubscriberBuffer is the channel size of each Messages subscription.
	SubscriberBuffer int

	// Logger is the structured logger to use.
	Logger *slog.Logger

	// Metrics receives connection and frame counters. Optional.
	Metrics *metrics.Metrics
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ReconnectDelay:   time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		PongWait:         60 * time.Second,
		MaxMessageSize:   64 * 1024,
		SendBuffer:       32,
		SubscriberBuffer: 32,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrMissingURL
	}
	return nil
}

// Option is a functional option for configuring a Channel.
type Option func(*Config)

// WithURL sets the endpoint URL.
func WithURL(url string) Option {
	return func(c *Config) {
		c.URL = url
	}
}

// WithHeader sets the handshake headers.
func WithHeader(h http.Header) Option {
	return func(c *Config) {
		c.Header = h
	}
}

// WithReconnectDelay sets the fixed delay between dial attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Config) {
		c.ReconnectDelay = d
	}
}

// WithKeepalive sets the ping interval and pong wait.
func WithKeepalive(ping, pongWait time.Duration) Option {
	return func(c *Config) {
		c.PingInterval = ping
		c.PongWait = pongWait
	}
}

// WithBuffers sets the outbound queue and subscription channel sizes.
func WithBuffers(send, subscriber int) Option {
	return func(c *Config) {
		c.SendBuffer = send
		c.SubscriberBuffer = subscriber
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}
