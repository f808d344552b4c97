// Package metrics groups the Prometheus instruments exported by go-luckycat.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "luckycat"

// Metrics holds every instrument.
type Metrics struct {
	TurnState         prometheus.Gauge
	Turns             *prometheus.CounterVec
	PhaseDuration     *prometheus.HistogramVec
	ControlConnected  prometheus.Gauge
	ControlReconnects prometheus.Counter
	ControlFrames     *prometheus.CounterVec
	ControlDropped    *prometheus.CounterVec
	RecognizerErrors  prometheus.Counter
	ChatErrors        *prometheus.CounterVec
}

// New registers all instruments on reg. Use prometheus.DefaultRegisterer
// in production and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TurnState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "turn_state",
			Help:      "Current turn state (0 ready, 1 listening, 2 thinking, 3 speaking).",
		}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "turns_total",
			Help:      "Completed turns by outcome.",
		}, []string{"outcome"}),
		PhaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "turn_phase_seconds",
			Help:      "Time spent per turn phase.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"phase"}),
		ControlConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "control_connected",
			Help:      "1 while the robot control channel is connected.",
		}),
		ControlReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "control_reconnects_total",
			Help:      "Reconnect attempts made by the control channel.",
		}),
		ControlFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "control_frames_total",
			Help:      "Control frames by direction and feature.",
		}, []string{"direction", "feature"}),
		ControlDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "control_dropped_total",
			Help:      "Control frames dropped by reason.",
		}, []string{"reason"}),
		RecognizerErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "recognizer_errors_total",
			Help:      "Errors reported by the speech recognizer.",
		}),
		ChatErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chat_errors_total",
			Help:      "Chat backend failures by backend.",
		}, []string{"backend"}),
	}
}

// SetTurnState records the numeric turn state.
func (m *Metrics) SetTurnState(state int) {
	if m == nil {
		return
	}
	m.TurnState.Set(float64(state))
}

// TurnFinished counts a turn by outcome.
func (m *Metrics) TurnFinished(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

// ObservePhase records how long a turn phase took.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// SetConnected records the control channel connection state.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.ControlConnected.Set(1)
		return
	}
	m.ControlConnected.Set(0)
}

// Reconnect counts a reconnect attempt.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.ControlReconnects.Inc()
}

// Frame counts a control frame. direction is "in" or "out".
func (m *Metrics) Frame(direction, feature string) {
	if m == nil {
		return
	}
	m.ControlFrames.WithLabelValues(direction, feature).Inc()
}

// Dropped counts a dropped control frame.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.ControlDropped.WithLabelValues(reason).Inc()
}

// RecognizerError counts a recognizer failure.
func (m *Metrics) RecognizerError() {
	if m == nil {
		return
	}
	m.RecognizerErrors.Inc()
}

// ChatError counts a chat backend failure.
func (m *Metrics) ChatError(backend string) {
	if m == nil {
		return
	}
	m.ChatErrors.WithLabelValues(backend).Inc()
}

// Handler serves the metrics registered on g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
