package stt

import (
	"context"
	"sync"
	"time"
)

// MockRecognizer is a scripted Recognizer for testing.
type MockRecognizer struct {
	// BindFunc overrides Bind when set.
	BindFunc func(ctx context.Context) error

	// Partials are emitted, in order, on the first Write of each stream.
	Partials []string

	// Final is emitted when a stream is finished.
	Final string

	// FinalAfter makes every stream finish on its own this long after Open.
	FinalAfter time.Duration

	mu      sync.Mutex
	bound   bool
	closed  bool
	streams []*MockStream
}

// Bind implements Recognizer.
func (m *MockRecognizer) Bind(ctx context.Context) error {
	if m.BindFunc != nil {
		if err := m.BindFunc(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.bound = true
	m.mu.Unlock()
	return nil
}

// Open implements Recognizer.
func (m *MockRecognizer) Open(ctx context.Context, cfg StreamConfig) (RecognitionStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.bound {
		return nil, ErrNotBound
	}

	s := &MockStream{
		Config:   cfg,
		partials: m.Partials,
		final:    m.Final,
		events:   make(chan Event, 64),
	}
	if m.FinalAfter > 0 {
		s.timer = time.AfterFunc(m.FinalAfter, s.Finish)
	}
	m.streams = append(m.streams, s)
	return s, nil
}

// Close implements Recognizer.
func (m *MockRecognizer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.bound = false
	return nil
}

// Closed reports whether Close was called.
func (m *MockRecognizer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Streams returns every stream opened so far.
func (m *MockRecognizer) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.streams...)
}

// Last returns the most recently opened stream, or nil.
func (m *MockRecognizer) Last() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// MockStream is the RecognitionStream returned by MockRecognizer. Tests
// drive it with Emit and Fail.
type MockStream struct {
	Config StreamConfig

	partials []string
	final    string
	timer    *time.Timer

	mu        sync.Mutex
	written   int
	closed    bool
	finished  bool
	cancelled bool
	events    chan Event
}

// Write implements RecognitionStream.
func (s *MockStream) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if s.written == 0 {
		for _, p := range s.partials {
			s.sendLocked(Event{Utterance: Utterance{Text: p}})
		}
	}
	s.written += len(pcm)
	return nil
}

// Finish implements RecognitionStream by emitting the scripted final.
func (s *MockStream) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.finished = true
	s.sendLocked(Event{Utterance: Utterance{Text: s.final, IsFinal: true}})
	s.closeLocked()
}

// Cancel implements RecognitionStream.
func (s *MockStream) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.cancelled = true
	s.closeLocked()
}

// Events implements RecognitionStream.
func (s *MockStream) Events() <-chan Event {
	return s.events
}

// Emit delivers u. A final utterance closes the stream.
func (s *MockStream) Emit(u Utterance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.sendLocked(Event{Utterance: u})
	if u.IsFinal {
		s.closeLocked()
	}
}

// Fail delivers err and closes the stream.
func (s *MockStream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.sendLocked(Event{Err: err})
	s.closeLocked()
}

// Written returns the number of audio bytes received.
func (s *MockStream) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Finished reports whether Finish was called before Cancel.
func (s *MockStream) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Cancelled reports whether the stream was cancelled while open.
func (s *MockStream) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *MockStream) sendLocked(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *MockStream) closeLocked() {
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.events)
}

var (
	_ Recognizer        = (*MockRecognizer)(nil)
	_ RecognitionStream = (*MockStream)(nil)
)
