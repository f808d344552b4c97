package audioio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BufferMultiplier scales the device minimum buffer into the ring size.
const BufferMultiplier = 10

// ErrRecorderClosed is returned by Start after Close.
var ErrRecorderClosed = errors.New("audioio: recorder closed")

// Listener receives captured audio. Any field may be nil.
type Listener struct {
	// OnVoiceStart is called once when capture begins.
	OnVoiceStart func()

	// OnVoice receives each drained block of mono PCM16. The slice is
	// owned by the callee.
	OnVoice func(data []byte)

	// OnVoiceEnd is called once after the final block when capture stops.
	OnVoiceEnd func()
}

// Recorder drains a microphone into a Listener at a fixed period.
type Recorder struct {
	source     Source
	logger     *slog.Logger
	sampleRate int
	bufferSize int
	period     time.Duration
	ring       *RingBuffer

	mu       sync.Mutex
	running  bool
	closed   bool
	listener Listener
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRecorder checks capture permission, selects the first supported rate
// from SampleRateCandidates and opens the device. The ring holds
// BufferMultiplier times the device minimum buffer and is drained each time
// half of it could have filled.
func NewRecorder(mic Microphone, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audioio.recorder")

	if !mic.Permitted() {
		return nil, ErrPermissionDenied
	}

	rate, minBuf, err := ProbeSampleRate(mic, SampleRateCandidates)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.SampleRate = rate
	cfg.Channels = 1
	cfg.BufferDuration = bytesToDuration(minBuf, rate)
	if cfg.BufferDuration <= 0 {
		cfg.BufferDuration = 20 * time.Millisecond
	}

	src, err := mic.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	bufferSize := minBuf * BufferMultiplier
	r := &Recorder{
		source:     src,
		logger:     logger,
		sampleRate: rate,
		bufferSize: bufferSize,
		period:     bytesToDuration(bufferSize/2, rate),
		ring:       NewRingBuffer(bufferSize),
	}
	if r.period <= 0 {
		r.period = cfg.BufferDuration
	}

	logger.Info("recorder ready",
		"sample_rate", rate,
		"buffer_bytes", bufferSize,
		"drain_period", r.period,
	)
	return r, nil
}

// Start begins capture. It is a no-op while already running.
func (r *Recorder) Start(ctx context.Context, l Listener) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRecorderClosed
	}
	if r.running {
		r.mu.Unlock()
		return nil
	}

	r.ring.Reset()
	if err := r.source.Start(ctx); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("start capture: %w", err)
	}

	r.running = true
	r.listener = l
	r.stopCh = make(chan struct{})
	stream := r.source.Stream()
	stopCh := r.stopCh

	r.wg.Add(2)
	go r.fillLoop(stream)
	go r.drainLoop(stopCh, l)
	r.mu.Unlock()

	if l.OnVoiceStart != nil {
		l.OnVoiceStart()
	}
	return nil
}

// fillLoop copies device chunks into the ring until the source stops.
func (r *Recorder) fillLoop(stream <-chan AudioChunk) {
	defer r.wg.Done()

	for chunk := range stream {
		if lost := r.ring.Write(chunk.Bytes()); lost > 0 {
			r.logger.Debug("ring overrun", "bytes_lost", lost)
		}
	}
}

func (r *Recorder) drainLoop(stopCh <-chan struct{}, l Listener) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			r.drain(l)
		}
	}
}

// drain hands everything buffered to the listener.
func (r *Recorder) drain(l Listener) {
	n := r.ring.Len()
	if n == 0 {
		return
	}
	data := make([]byte, n)
	data = data[:r.ring.Read(data)]
	if len(data) > 0 && l.OnVoice != nil {
		l.OnVoice(data)
	}
}

// Stop ends capture, flushes buffered audio and calls OnVoiceEnd.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopCh)
	l := r.listener
	r.listener = Listener{}
	r.mu.Unlock()

	err := r.source.Stop()
	r.wg.Wait()

	r.drain(l)
	if l.OnVoiceEnd != nil {
		l.OnVoiceEnd()
	}
	return err
}

// Close stops capture and releases the device.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	stopErr := r.Stop()
	return errors.Join(stopErr, r.source.Close())
}

// Running reports whether capture is active.
func (r *Recorder) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// SampleRate returns the negotiated rate in Hz.
func (r *Recorder) SampleRate() int { return r.sampleRate }

// BufferSize returns the ring capacity in bytes.
func (r *Recorder) BufferSize() int { return r.bufferSize }

// Period returns the drain interval.
func (r *Recorder) Period() time.Duration { return r.period }

// Overrun returns the number of bytes lost because the ring was full.
func (r *Recorder) Overrun() int64 { return r.ring.Overrun() }
