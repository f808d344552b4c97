package stt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/teslashibe/go-luckycat/internal/log"
	"github.com/teslashibe/go-luckycat/pkg/audioio"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

func newTestSession(t *testing.T, mic *audioio.MockMicrophone, rec *MockRecognizer, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	s := NewSession(mic, rec, opts...)
	t.Cleanup(func() { s.Release() })
	return s
}

func loudMic() *audioio.MockMicrophone {
	return &audioio.MockMicrophone{
		Logger:  log.Discard(),
		Options: []audioio.MockSourceOption{audioio.WithSineWave(440, 0.5)},
	}
}

// collect reads every utterance until the capture closes its channel.
func collect(t *testing.T, c *Capture) []Utterance {
	t.Helper()

	var out []Utterance
	timeout := time.After(3 * time.Second)
	for {
		select {
		case u, ok := <-c.Utterances():
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatal("timed out waiting for capture to end")
		}
	}
}

func waitDone(t *testing.T, c *Capture) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("capture did not finish")
	}
}

func TestSession_InitReady(t *testing.T) {
	s := newTestSession(t, loudMic(), &MockRecognizer{})

	assert.Equal(t, StateInitializing, s.State())
	require.NoError(t, s.Init(context.Background()))
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, 16000, s.SampleRate())

	// Second Init is a no-op.
	require.NoError(t, s.Init(context.Background()))
}

func TestSession_InitFailures(t *testing.T) {
	bindErr := errors.New("service unavailable")

	tests := []struct {
		name string
		mic  *audioio.MockMicrophone
		rec  *MockRecognizer
		kind InitErrorKind
	}{
		{
			name: "permission denied",
			mic:  &audioio.MockMicrophone{Denied: true},
			rec:  &MockRecognizer{},
			kind: KindPermission,
		},
		{
			name: "no sample rate",
			mic:  &audioio.MockMicrophone{Rates: []int{8000}},
			rec:  &MockRecognizer{},
			kind: KindSampleRate,
		},
		{
			name: "device open failure",
			mic: &audioio.MockMicrophone{OpenFunc: func(audioio.Config) (audioio.Source, error) {
				return nil, errors.New("busy")
			}},
			rec:  &MockRecognizer{},
			kind: KindDevice,
		},
		{
			name: "backend bind failure",
			mic:  &audioio.MockMicrophone{},
			rec:  &MockRecognizer{BindFunc: func(context.Context) error { return bindErr }},
			kind: KindBackend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, tt.mic, tt.rec)

			err := s.Init(context.Background())
			require.Error(t, err)
			assert.True(t, IsInitError(err, tt.kind), "expected %v, got %v", tt.kind, err)
			assert.Equal(t, StateReleased, s.State())
			assert.True(t, tt.rec.Closed(), "recognizer should be released")

			_, err = s.Start(context.Background())
			assert.ErrorIs(t, err, ErrReleased)
		})
	}

	t.Run("bind failure keeps cause", func(t *testing.T) {
		s := newTestSession(t, &audioio.MockMicrophone{}, &MockRecognizer{
			BindFunc: func(context.Context) error { return bindErr },
		})
		assert.ErrorIs(t, s.Init(context.Background()), bindErr)
	})
}

func TestSession_StartBeforeInit(t *testing.T) {
	s := newTestSession(t, loudMic(), &MockRecognizer{})

	_, err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSession_StartTwiceIsNoop(t *testing.T) {
	rec := &MockRecognizer{Final: "hello"}
	s := newTestSession(t, loudMic(), rec)
	require.NoError(t, s.Init(context.Background()))

	c, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, s.State())

	_, err = s.Start(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, StateRunning, s.State())
	assert.Len(t, rec.Streams(), 1)

	require.NoError(t, s.Stop())
	collect(t, c)
	waitDone(t, c)
}

func TestSession_StopDeliversFinal(t *testing.T) {
	rec := &MockRecognizer{Partials: []string{"turn"}, Final: "turn left"}
	s := newTestSession(t, loudMic(), rec, WithLanguage("en-US"))
	require.NoError(t, s.Init(context.Background()))

	c, err := s.Start(context.Background())
	require.NoError(t, err)

	stream := rec.Last()
	require.NotNil(t, stream)
	assert.Equal(t, "en-US", stream.Config.Language)
	assert.Equal(t, 16000, stream.Config.SampleRate)

	require.Eventually(t, func() bool { return stream.Written() > 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.Equal(t, StateReady, s.State())

	got := collect(t, c)
	waitDone(t, c)

	require.Len(t, got, 2)
	assert.Equal(t, Utterance{Text: "turn"}, got[0])
	assert.Equal(t, Utterance{Text: "turn left", IsFinal: true}, got[1])
	assert.True(t, stream.Finished())
	assert.NoError(t, c.Err())
	assert.False(t, c.Interrupted())
}

func TestSession_FinalAutoStops(t *testing.T) {
	rec := &MockRecognizer{}
	s := newTestSession(t, loudMic(), rec)
	require.NoError(t, s.Init(context.Background()))

	c, err := s.Start(context.Background())
	require.NoError(t, err)

	rec.Last().Emit(Utterance{Text: "go forward", IsFinal: true})

	got := collect(t, c)
	waitDone(t, c)

	assert.Equal(t, []Utterance{{Text: "go forward", IsFinal: true}}, got)
	assert.Equal(t, StateReady, s.State())

	// The session is re-armed for the next capture.
	c2, err := s.Start(context.Background())
	require.NoError(t, err)
	s.Interrupt()
	collect(t, c2)
	waitDone(t, c2)
}

func TestSession_Interrupt(t *testing.T) {
	rec := &MockRecognizer{}
	s := newTestSession(t, loudMic(), rec)
	require.NoError(t, s.Init(context.Background()))

	c, err := s.Start(context.Background())
	require.NoError(t, err)
	stream := rec.Last()

	stream.Emit(Utterance{Text: "hel"})
	select {
	case u := <-c.Utterances():
		assert.Equal(t, "hel", u.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("expected partial utterance")
	}

	s.Interrupt()
	assert.Equal(t, StateReady, s.State())

	stream.Emit(Utterance{Text: "hello", IsFinal: true})

	got := collect(t, c)
	waitDone(t, c)

	for _, u := range got {
		assert.False(t, u.IsFinal, "no final utterance after interrupt")
	}
	assert.True(t, c.Interrupted())
	assert.True(t, stream.Cancelled())
	assert.NoError(t, c.Err())
}

func TestSession_ContextCancelInterrupts(t *testing.T) {
	rec := &MockRecognizer{Final: "never"}
	s := newTestSession(t, loudMic(), rec)
	require.NoError(t, s.Init(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	c, err := s.Start(ctx)
	require.NoError(t, err)

	cancel()

	got := collect(t, c)
	waitDone(t, c)

	assert.Empty(t, got)
	assert.True(t, c.Interrupted())
	assert.Equal(t, StateReady, s.State())
}

func TestSession_RecognizerError(t *testing.T) {
	rec := &MockRecognizer{}
	s := newTestSession(t, loudMic(), rec)
	require.NoError(t, s.Init(context.Background()))

	c, err := s.Start(context.Background())
	require.NoError(t, err)

	boom := errors.New("quota exceeded")
	rec.Last().Fail(boom)

	got := collect(t, c)
	waitDone(t, c)

	assert.Empty(t, got)
	assert.ErrorIs(t, c.Err(), boom)
	assert.Equal(t, StateReady, s.State())
}

func TestSession_ReleaseIsIdempotent(t *testing.T) {
	rec := &MockRecognizer{}
	s := newTestSession(t, loudMic(), rec)
	require.NoError(t, s.Init(context.Background()))

	c, err := s.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Release())
	require.NoError(t, s.Release())

	collect(t, c)
	waitDone(t, c)

	assert.Equal(t, StateReleased, s.State())
	assert.True(t, rec.Closed())
	assert.ErrorIs(t, s.Init(context.Background()), ErrReleased)
}

func TestSession_SilenceStopsCapture(t *testing.T) {
	mic := &audioio.MockMicrophone{
		Logger: log.Discard(),
		Options: []audioio.MockSourceOption{
			audioio.WithSineWave(440, 0.5),
			audioio.WithEnvelope(func(chunk int64) float64 {
				if chunk < 10 {
					return 1
				}
				return 0
			}),
		},
	}
	rec := &MockRecognizer{Final: "stop"}
	s := newTestSession(t, mic, rec, WithVAD(0.05, 200*time.Millisecond))
	require.NoError(t, s.Init(context.Background()))

	c, err := s.Start(context.Background())
	require.NoError(t, err)

	got := collect(t, c)
	waitDone(t, c)

	require.NotEmpty(t, got)
	assert.Equal(t, Utterance{Text: "stop", IsFinal: true}, got[len(got)-1])
	assert.True(t, rec.Last().Finished())
	assert.Equal(t, StateReady, s.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "released", StateReleased.String())
	assert.Equal(t, "unknown", State(42).String())
}
