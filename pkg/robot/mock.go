package robot

import (
	"context"
	"sync"
)

// SpeakCall records one Speak invocation.
type SpeakCall struct {
	Text string
	Lang string
}

// Mock is a Controller for testing.
type Mock struct {
	StatusFunc func(ctx context.Context) (Status, error)
	SpeakFunc  func(ctx context.Context, text, lang string) error
	ResetFunc  func(ctx context.Context) error

	mu          sync.Mutex
	statusCalls int
	speakCalls  []SpeakCall
	resetCalls  int
}

// Status implements StatusReader. Without StatusFunc the robot is idle.
func (m *Mock) Status(ctx context.Context) (Status, error) {
	m.mu.Lock()
	m.statusCalls++
	m.mu.Unlock()

	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return Status{Status: StatusIdle}, nil
}

// Speak implements Speaker.
func (m *Mock) Speak(ctx context.Context, text, lang string) error {
	m.mu.Lock()
	m.speakCalls = append(m.speakCalls, SpeakCall{Text: text, Lang: lang})
	m.mu.Unlock()

	if m.SpeakFunc != nil {
		return m.SpeakFunc(ctx, text, lang)
	}
	return nil
}

// Reset implements Resetter.
func (m *Mock) Reset(ctx context.Context) error {
	m.mu.Lock()
	m.resetCalls++
	m.mu.Unlock()

	if m.ResetFunc != nil {
		return m.ResetFunc(ctx)
	}
	return nil
}

// StatusCalls returns the number of Status calls.
func (m *Mock) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

// SpeakCalls returns every recorded Speak call.
func (m *Mock) SpeakCalls() []SpeakCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SpeakCall(nil), m.speakCalls...)
}

// ResetCalls returns the number of Reset calls.
func (m *Mock) ResetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetCalls
}
