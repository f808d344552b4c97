package turn

import (
	"log/slog"

	"github.com/teslashibe/go-luckycat/pkg/history"
	"github.com/teslashibe/go-luckycat/pkg/metrics"
	"github.com/teslashibe/go-luckycat/pkg/stt"
)

// Config holds Orchestrator configuration.
type Config struct {
	// Language is sent with every speak command.
	Language string

	// History is the conversation buffer. A buffer of
	// history.DefaultCapacity is created when nil.
	History *history.Buffer

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Language: stt.DefaultLanguage,
	}
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Config)

// WithLanguage sets the speak language.
func WithLanguage(lang string) Option {
	return func(c *Config) {
		c.Language = lang
	}
}

// WithHistory sets the conversation buffer.
func WithHistory(h *history.Buffer) Option {
	return func(c *Config) {
		c.History = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
