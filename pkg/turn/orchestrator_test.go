package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-luckycat/internal/log"
	"github.com/teslashibe/go-luckycat/pkg/audioio"
	"github.com/teslashibe/go-luckycat/pkg/chat"
	"github.com/teslashibe/go-luckycat/pkg/control"
	"github.com/teslashibe/go-luckycat/pkg/history"
	"github.com/teslashibe/go-luckycat/pkg/stt"
)

type speakCall struct {
	text string
	lang string
}

type fakeSpeaker struct {
	mu      sync.Mutex
	calls   []speakCall
	onSpeak func(text, lang string) error
}

func (f *fakeSpeaker) Speak(text, lang string) error {
	f.mu.Lock()
	f.calls = append(f.calls, speakCall{text, lang})
	f.mu.Unlock()
	if f.onSpeak != nil {
		return f.onSpeak(text, lang)
	}
	return nil
}

func (f *fakeSpeaker) Calls() []speakCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]speakCall(nil), f.calls...)
}

// fakeSource hands out buffered subscriptions and records them.
type fakeSource struct {
	mu   sync.Mutex
	subs []chan control.Message
}

func (f *fakeSource) Messages(ctx context.Context) <-chan control.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan control.Message, 8)
	f.subs = append(f.subs, ch)
	return ch
}

func (f *fakeSource) push(msg control.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// drop closes every subscription, as a lost connection would.
func (f *fakeSource) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}

func (f *fakeSource) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

var (
	started = &control.PlaybackStatus{State: control.PlaybackStarting}
	ended   = &control.PlaybackStatus{State: control.PlaybackEnded}
)

type harness struct {
	orch       *Orchestrator
	session    *stt.Session
	recognizer *stt.MockRecognizer
	backend    *chat.Mock
	speaker    *fakeSpeaker
	source     *fakeSource
}

// newHarness wires an orchestrator to a mock microphone and recognizer.
// The event waiter completes as soon as the reply is spoken.
func newHarness(t *testing.T, rec *stt.MockRecognizer, backend *chat.Mock) *harness {
	t.Helper()

	mic := &audioio.MockMicrophone{
		Logger:  log.Discard(),
		Options: []audioio.MockSourceOption{audioio.WithSineWave(440, 0.5)},
	}
	session := stt.NewSession(mic, rec, stt.WithLogger(log.Discard()))
	require.NoError(t, session.Init(context.Background()))
	t.Cleanup(func() { session.Release() })

	source := &fakeSource{}
	speaker := &fakeSpeaker{onSpeak: func(string, string) error {
		source.push(started)
		source.push(ended)
		return nil
	}}
	waiter := &EventWaiter{Source: source, Timeout: 2 * time.Second, Logger: log.Discard()}

	orch := New(session, backend, speaker, waiter,
		WithLanguage("yue-HK"),
		WithHistory(history.New(6)),
		WithLogger(log.Discard()),
	)
	t.Cleanup(func() { orch.Close() })

	return &harness{
		orch:       orch,
		session:    session,
		recognizer: rec,
		backend:    backend,
		speaker:    speaker,
		source:     source,
	}
}

func TestTalk_Success(t *testing.T) {
	h := newHarness(t,
		&stt.MockRecognizer{Partials: []string{"turn"}, Final: "turn left", FinalAfter: 50 * time.Millisecond},
		&chat.Mock{Response: "OK, turning left"},
	)

	res, err := h.orch.Talk(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, "turn left", res.Utterance)
	assert.Equal(t, "OK, turning left", res.Reply)
	assert.NotEmpty(t, res.TurnID)
	assert.Equal(t, StateReady, h.orch.State())

	assert.Equal(t, []history.Entry{
		history.User("turn left"),
		history.Assistant("OK, turning left"),
	}, h.orch.History())

	assert.Equal(t, []speakCall{{"OK, turning left", "yue-HK"}}, h.speaker.Calls())

	calls := h.backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "turn left", calls[0].Text)
	assert.Empty(t, calls[0].History)

	status := h.orch.Status()
	assert.Equal(t, "turn left", status.LastUtterance)
	assert.Equal(t, "OK, turning left", status.LastReply)
	assert.True(t, status.CanTalk)
}

func TestTalk_HistoryCarriesToNextTurn(t *testing.T) {
	backend := &chat.Mock{}
	replies := []string{"R1", "R2"}
	backend.ReplyFunc = func(ctx context.Context, text string, hist []history.Entry) (string, error) {
		return replies[len(backend.Calls())-1], nil
	}
	h := newHarness(t, &stt.MockRecognizer{Final: "U", FinalAfter: 30 * time.Millisecond}, backend)

	_, err := h.orch.Talk(context.Background())
	require.NoError(t, err)
	_, err = h.orch.Talk(context.Background())
	require.NoError(t, err)

	calls := backend.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []history.Entry{history.User("U"), history.Assistant("R1")}, calls[1].History)

	hist := h.orch.History()
	require.Len(t, hist, 4)
	assert.Equal(t, []history.Entry{history.User("U"), history.Assistant("R2")}, hist[2:])
}

func TestTalk_EmptyUtterance(t *testing.T) {
	h := newHarness(t,
		&stt.MockRecognizer{Final: "   ", FinalAfter: 30 * time.Millisecond},
		&chat.Mock{Response: "unused"},
	)

	res, err := h.orch.Talk(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeEmpty, res.Outcome)
	assert.Empty(t, h.backend.Calls())
	assert.Empty(t, h.orch.History())
	assert.Empty(t, h.speaker.Calls())
	assert.Equal(t, StateReady, h.orch.State())
}

func TestTalk_BackendError(t *testing.T) {
	boom := errors.New("server down")
	h := newHarness(t,
		&stt.MockRecognizer{Final: "hello", FinalAfter: 30 * time.Millisecond},
		&chat.Mock{ReplyFunc: func(context.Context, string, []history.Entry) (string, error) {
			return "", boom
		}},
	)

	res, err := h.orch.Talk(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Empty(t, h.orch.History())
	assert.Empty(t, h.speaker.Calls())
	assert.Equal(t, StateReady, h.orch.State())
	assert.Equal(t, "", h.orch.Status().LastReply)
}

func TestTalk_BusyIsIgnored(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t,
		&stt.MockRecognizer{Final: "hello", FinalAfter: 30 * time.Millisecond},
		&chat.Mock{ReplyFunc: func(ctx context.Context, text string, hist []history.Entry) (string, error) {
			<-release
			return "hi", nil
		}},
	)

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Talk(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return h.orch.State() == StateThinking }, 2*time.Second, 5*time.Millisecond)

	_, err := h.orch.Talk(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, StateThinking, h.orch.State())
	assert.Len(t, h.backend.Calls(), 1)
	assert.Len(t, h.recognizer.Streams(), 1)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, h.orch.State())
}

func TestTalk_CancelWhileListening(t *testing.T) {
	h := newHarness(t, &stt.MockRecognizer{Final: "never"}, &chat.Mock{Response: "unused"})

	done := make(chan Result, 1)
	go func() {
		res, err := h.orch.Talk(context.Background())
		assert.ErrorIs(t, err, context.Canceled)
		done <- res
	}()

	require.Eventually(t, func() bool {
		return h.orch.State() == StateListening && h.session.State() == stt.StateRunning
	}, 2*time.Second, 5*time.Millisecond)

	h.orch.Cancel()

	select {
	case res := <-done:
		assert.Equal(t, OutcomeCancelled, res.Outcome)
	case <-time.After(3 * time.Second):
		t.Fatal("turn did not end after cancel")
	}

	assert.Equal(t, StateReady, h.orch.State())
	assert.Equal(t, stt.StateReady, h.session.State())
	assert.True(t, h.recognizer.Last().Cancelled())
	assert.Empty(t, h.backend.Calls())
}

func TestTalk_CancelWhileSpeaking(t *testing.T) {
	h := newHarness(t,
		&stt.MockRecognizer{Final: "sing", FinalAfter: 30 * time.Millisecond},
		&chat.Mock{Response: "la la la"},
	)
	// The robot never reports the end of playback.
	h.speaker.onSpeak = nil

	done := make(chan Result, 1)
	go func() {
		res, _ := h.orch.Talk(context.Background())
		done <- res
	}()

	require.Eventually(t, func() bool { return h.orch.State() == StateSpeaking }, 2*time.Second, 5*time.Millisecond)
	h.orch.Cancel()

	res := <-done
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, StateReady, h.orch.State())
	assert.Len(t, h.orch.History(), 2)
}

func TestTalk_StopEndsCaptureGracefully(t *testing.T) {
	h := newHarness(t, &stt.MockRecognizer{Final: "stop here"}, &chat.Mock{Response: "done"})

	done := make(chan Result, 1)
	go func() {
		res, err := h.orch.Talk(context.Background())
		assert.NoError(t, err)
		done <- res
	}()

	require.Eventually(t, func() bool { return h.session.State() == stt.StateRunning }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, h.orch.Stop())

	res := <-done
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, "stop here", res.Utterance)
}

func TestTalk_RecognitionError(t *testing.T) {
	h := newHarness(t, &stt.MockRecognizer{}, &chat.Mock{Response: "unused"})

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Talk(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return h.recognizer.Last() != nil }, 2*time.Second, 5*time.Millisecond)
	boom := errors.New("recognizer offline")
	h.recognizer.Last().Fail(boom)

	assert.ErrorIs(t, <-done, boom)
	assert.Empty(t, h.backend.Calls())
	assert.Equal(t, StateReady, h.orch.State())
}

func TestWatch_ReportsTransitions(t *testing.T) {
	h := newHarness(t,
		&stt.MockRecognizer{Final: "hi", FinalAfter: 30 * time.Millisecond},
		&chat.Mock{Response: "hello"},
	)

	var (
		mu     sync.Mutex
		states []State
	)
	stop := h.orch.Watch(func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		if len(states) == 0 || states[len(states)-1] != s.State {
			states = append(states, s.State)
		}
	})

	_, err := h.orch.Talk(context.Background())
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []State{StateListening, StateThinking, StateSpeaking, StateReady}, states)
	mu.Unlock()

	stop()
	_, err = h.orch.Talk(context.Background())
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, states, 4)
	mu.Unlock()
}

func TestTrigger(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t,
		&stt.MockRecognizer{Final: "hi", FinalAfter: 30 * time.Millisecond},
		&chat.Mock{ReplyFunc: func(ctx context.Context, text string, hist []history.Entry) (string, error) {
			select {
			case <-release:
				return "hello", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}},
	)

	id, err := h.orch.Trigger(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, h.orch.Status().TurnID)

	_, err = h.orch.Trigger(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.Eventually(t, func() bool { return len(h.orch.History()) == 2 && h.orch.State() == StateReady }, 3*time.Second, 5*time.Millisecond)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "listening", StateListening.String())
	assert.Equal(t, "thinking", StateThinking.String())
	assert.Equal(t, "speaking", StateSpeaking.String())
	assert.Equal(t, "unknown", State(9).String())
}
