package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-luckycat/pkg/audioio"
	"github.com/teslashibe/go-luckycat/pkg/metrics"
)

// Session couples a microphone with a recognizer. It is created once and
// re-armed with Start for every capture.
type Session struct {
	config     *Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	mic        audioio.Microphone
	recognizer Recognizer

	mu       sync.Mutex
	state    State
	recorder *audioio.Recorder
	capture  *Capture // running capture
	last     *Capture // most recent capture, possibly still delivering
}

// NewSession creates a Session in the Initializing state.
func NewSession(mic audioio.Microphone, recognizer Recognizer, opts ...Option) *Session {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.UtteranceBuffer <= 0 {
		cfg.UtteranceBuffer = 16
	}

	return &Session{
		config:     cfg,
		logger:     cfg.Logger.With("component", "stt.session"),
		metrics:    cfg.Metrics,
		mic:        mic,
		recognizer: recognizer,
	}
}

// Init acquires the microphone and binds the recognizer. On failure every
// acquired resource is released, the session becomes Released and an
// *InitError is returned. Init on a Ready session is a no-op.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReleased:
		return ErrReleased
	case StateInitializing:
	default:
		return nil
	}

	recorder, err := audioio.NewRecorder(s.mic, s.logger)
	if err != nil {
		return s.failInitLocked(audioErrorKind(err), err)
	}
	s.recorder = recorder

	if err := s.recognizer.Bind(ctx); err != nil {
		return s.failInitLocked(KindBackend, err)
	}

	s.state = StateReady
	s.logger.Info("session ready",
		"sample_rate", recorder.SampleRate(),
		"language", s.config.Language,
	)
	return nil
}

func (s *Session) failInitLocked(kind InitErrorKind, cause error) error {
	if err := s.releaseLocked(); err != nil {
		s.logger.Warn("cleanup after failed init", "error", err)
	}
	s.logger.Error("session init failed", "kind", kind, "error", cause)
	return &InitError{Kind: kind, Cause: cause}
}

func audioErrorKind(err error) InitErrorKind {
	switch {
	case errors.Is(err, audioio.ErrPermissionDenied):
		return KindPermission
	case errors.Is(err, audioio.ErrNoSampleRate):
		return KindSampleRate
	default:
		return KindDevice
	}
}

// Start begins a capture. It fails with ErrNotReady unless the session is
// Ready, leaving any running capture untouched. Cancelling ctx interrupts
// the capture.
func (s *Session) Start(ctx context.Context) (*Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReleased:
		return nil, ErrReleased
	case StateReady:
	default:
		return nil, ErrNotReady
	}

	stream, err := s.recognizer.Open(ctx, StreamConfig{
		SampleRate: s.recorder.SampleRate(),
		Language:   s.config.Language,
	})
	if err != nil {
		s.metrics.RecognizerError()
		return nil, fmt.Errorf("open recognition stream: %w", err)
	}

	c := newCapture(s, stream, s.recorder.SampleRate())
	if err := s.recorder.Start(ctx, audioio.Listener{OnVoice: c.onVoice}); err != nil {
		stream.Cancel()
		return nil, fmt.Errorf("start recorder: %w", err)
	}

	s.state = StateRunning
	s.capture = c
	s.last = c
	c.stopOnCancel = context.AfterFunc(ctx, func() { s.interrupt(c) })

	go c.run()

	s.logger.Debug("capture started")
	return c, nil
}

// Stop ends the running capture gracefully: buffered audio is flushed to
// the recognizer and its remaining results are still delivered.
func (s *Session) Stop() error {
	return s.stopCapture(nil)
}

// stopCapture stops target, or the running capture when target is nil.
func (s *Session) stopCapture(target *Capture) error {
	s.mu.Lock()
	c := s.capture
	if s.state != StateRunning || c == nil || (target != nil && target != c) {
		s.mu.Unlock()
		return nil
	}
	s.capture = nil
	s.state = StateReady
	c.stopOnCancel()
	err := s.recorder.Stop()
	s.mu.Unlock()

	c.stream.Finish()
	s.logger.Debug("capture stopped")
	return err
}

// Interrupt ends the current capture immediately. Its Utterances channel
// closes without a final result and later results are discarded.
func (s *Session) Interrupt() {
	s.interrupt(nil)
}

func (s *Session) interrupt(target *Capture) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.last
	if c == nil || (target != nil && target != c) {
		return
	}
	c.halt()
	if s.capture == c {
		s.capture = nil
		s.state = StateReady
		if err := s.recorder.Stop(); err != nil {
			s.logger.Warn("stop recorder", "error", err)
		}
	}
	c.stream.Cancel()
	c.stopOnCancel()
}

// captureEnded returns the session to Ready after a capture finished on
// its own (final result or recognizer error).
func (s *Session) captureEnded(c *Capture) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture != c {
		return
	}
	s.capture = nil
	s.state = StateReady
	c.stopOnCancel()
	if err := s.recorder.Stop(); err != nil {
		s.logger.Warn("stop recorder", "error", err)
	}
}

// Release stops any capture and releases the microphone and recognizer.
// Further calls are no-ops.
func (s *Session) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReleased {
		return nil
	}
	return s.releaseLocked()
}

func (s *Session) releaseLocked() error {
	var errs []error

	if c := s.last; c != nil {
		c.halt()
		c.stream.Cancel()
		c.stopOnCancel()
	}
	s.capture = nil

	if s.recorder != nil {
		errs = append(errs, s.recorder.Close())
		s.recorder = nil
	}
	errs = append(errs, s.recognizer.Close())

	s.state = StateReleased
	s.logger.Info("session released")
	return errors.Join(errs...)
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SampleRate returns the negotiated capture rate, or 0 before Init.
func (s *Session) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recorder == nil {
		return 0
	}
	return s.recorder.SampleRate()
}

// Capture is one single-pass transcript sequence.
type Capture struct {
	session    *Session
	stream     RecognitionStream
	logger     *slog.Logger
	sampleRate int

	out          chan Utterance
	done         chan struct{}
	halted       chan struct{}
	haltOnce     sync.Once
	closeOnce    sync.Once
	stopOnCancel func() bool

	emitMu  sync.Mutex
	stopped bool

	mu          sync.Mutex
	interrupted bool
	err         error

	// touched only by the recorder drain path
	heardVoice bool
	quiet      time.Duration
	vadFired   atomic.Bool
}

func newCapture(s *Session, stream RecognitionStream, sampleRate int) *Capture {
	return &Capture{
		session:      s,
		stream:       stream,
		logger:       s.logger,
		sampleRate:   sampleRate,
		out:          make(chan Utterance, s.config.UtteranceBuffer),
		done:         make(chan struct{}),
		halted:       make(chan struct{}),
		stopOnCancel: func() bool { return false },
	}
}

// Utterances returns the transcript channel. It is closed after the final
// utterance, on Interrupt, or when the recognizer fails.
func (c *Capture) Utterances() <-chan Utterance {
	return c.out
}

// Done is closed once the capture has released its recognition stream.
func (c *Capture) Done() <-chan struct{} {
	return c.done
}

// Err returns the recognizer error that ended the capture, if any. It is
// meaningful after Utterances is closed.
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Interrupted reports whether the capture ended through Interrupt.
func (c *Capture) Interrupted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupted
}

func (c *Capture) halt() {
	c.haltOnce.Do(func() { close(c.halted) })
	c.emitMu.Lock()
	c.stopped = true
	c.emitMu.Unlock()
	c.mu.Lock()
	c.interrupted = true
	c.mu.Unlock()
}

func (c *Capture) isHalted() bool {
	select {
	case <-c.halted:
		return true
	default:
		return false
	}
}

// run forwards recognizer events until the stream ends.
func (c *Capture) run() {
	defer close(c.done)

	events := c.stream.Events()
	for {
		select {
		case <-c.halted:
			c.finish(nil)
			c.drain(events)
			return

		case ev, ok := <-events:
			if !ok {
				c.finish(nil)
				c.session.captureEnded(c)
				return
			}
			if ev.Err != nil {
				c.logger.Warn("recognition failed", "error", ev.Err)
				c.session.metrics.RecognizerError()
				c.finish(ev.Err)
				c.session.captureEnded(c)
				c.drain(events)
				return
			}
			if !c.emit(ev.Utterance) {
				c.finish(nil)
				c.drain(events)
				return
			}
			if ev.Utterance.IsFinal {
				c.finish(nil)
				c.session.captureEnded(c)
				c.drain(events)
				return
			}
		}
	}
}

// emit delivers u unless the capture was interrupted first.
func (c *Capture) emit(u Utterance) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	if c.stopped {
		return false
	}
	select {
	case c.out <- u:
		return true
	case <-c.halted:
		return false
	}
}

func (c *Capture) finish(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.out)
	})
}

// drain cancels the stream and discards what is left of it.
func (c *Capture) drain(events <-chan Event) {
	c.stream.Cancel()
	for range events {
	}
}

// onVoice feeds one drained audio block to the recognizer.
func (c *Capture) onVoice(data []byte) {
	if c.isHalted() {
		return
	}
	if err := c.stream.Write(data); err != nil && !errors.Is(err, ErrStreamClosed) {
		c.logger.Warn("recognizer rejected audio", "error", err)
	}
	c.detectSilence(data)
}

// detectSilence stops the capture after VADSilence of quiet audio that
// follows voice.
func (c *Capture) detectSilence(data []byte) {
	cfg := c.session.config
	if cfg.VADThreshold <= 0 || c.vadFired.Load() {
		return
	}

	samples := audioio.PCM16(data)
	if audioio.RMS(samples) >= cfg.VADThreshold {
		c.heardVoice = true
		c.quiet = 0
		return
	}
	if !c.heardVoice {
		return
	}

	c.quiet += time.Duration(len(samples)) * time.Second / time.Duration(c.sampleRate)
	if c.quiet >= cfg.VADSilence && c.vadFired.CompareAndSwap(false, true) {
		c.logger.Debug("silence detected, stopping capture", "quiet", c.quiet)
		go c.session.stopCapture(c)
	}
}
