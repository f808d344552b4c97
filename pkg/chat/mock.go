package chat

import (
	"context"
	"sync"

	"github.com/teslashibe/go-luckycat/pkg/history"
)

// MockCall records one Reply invocation.
type MockCall struct {
	Text    string
	History []history.Entry
}

// Mock is a Backend for testing.
type Mock struct {
	// ReplyFunc overrides the canned reply when set.
	ReplyFunc func(ctx context.Context, text string, hist []history.Entry) (string, error)

	// Response is returned when ReplyFunc is nil.
	Response string

	mu    sync.Mutex
	calls []MockCall
}

// Reply implements Backend.
func (m *Mock) Reply(ctx context.Context, text string, hist []history.Entry) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Text: text, History: append([]history.Entry(nil), hist...)})
	m.mu.Unlock()

	if m.ReplyFunc != nil {
		return m.ReplyFunc(ctx, text, hist)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.Response, nil
}

// Calls returns every recorded call.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

var _ Backend = (*Mock)(nil)
