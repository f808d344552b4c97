package stt

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-luckycat/pkg/metrics"
)

// DefaultLanguage is the recognition language used when none is configured.
const DefaultLanguage = "yue-HK"

// Config holds Session configuration.
type Config struct {
	// Language is the recognition language tag.
	Language string

	// VADThreshold is the RMS level (0..1) counted as voice. Zero disables
	// silence detection and leaves ending the capture to the caller.
	VADThreshold float64

	// VADSilence is how long the level must stay below VADThreshold after
	// voice was heard before the capture is stopped.
	VADSilence time.Duration

	// UtteranceBuffer is the capacity of each Capture's channel.
	UtteranceBuffer int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Language:        DefaultLanguage,
		VADSilence:      800 * time.Millisecond,
		UtteranceBuffer: 16,
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithLanguage sets the recognition language.
func WithLanguage(lang string) Option {
	return func(c *Config) {
		c.Language = lang
	}
}

// WithVAD enables silence detection.
func WithVAD(threshold float64, silence time.Duration) Option {
	return func(c *Config) {
		c.VADThreshold = threshold
		c.VADSilence = silence
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
