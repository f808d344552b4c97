package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-luckycat/internal/log"
	"github.com/teslashibe/go-luckycat/pkg/control"
	"github.com/teslashibe/go-luckycat/pkg/robot"
)

func startSim(t *testing.T) (*simulator, string) {
	t.Helper()

	sim := newSimulator(simConfig{
		SpeechBase:    50 * time.Millisecond,
		SpeechPerRune: 5 * time.Millisecond,
		Logger:        log.Discard(),
	})
	app := sim.routes()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() {
		sim.reset()
		app.ShutdownWithTimeout(time.Second)
	})
	return sim, ln.Addr().String()
}

func TestSpeechDuration(t *testing.T) {
	sim := newSimulator(simConfig{SpeechBase: 100 * time.Millisecond, SpeechPerRune: 10 * time.Millisecond})
	assert.Equal(t, 100*time.Millisecond, sim.speechDuration(""))
	assert.Equal(t, 130*time.Millisecond, sim.speechDuration("你好呀"))
}

func TestHTTPSurface(t *testing.T) {
	sim, addr := startSim(t)
	client, err := robot.NewClient("http://"+addr, robot.WithLogger(log.Discard()))
	require.NoError(t, err)
	ctx := context.Background()

	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Idle())

	require.NoError(t, client.Speak(ctx, "hello there", "en-US"))
	st, err = client.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Idle(), "busy while speaking")

	assert.Eventually(t, func() bool {
		st, err := client.Status(ctx)
		return err == nil && st.Idle()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Speak(ctx, "a long sentence that takes a while", "en-US"))
	require.NoError(t, client.Reset(ctx))
	st, err = client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Idle(), "reset clears speaking")

	assert.Equal(t, control.SpeakCommand("hello there", "en-US"), sim.Spoken()[0])
}

func TestTTSRequiresText(t *testing.T) {
	sim := newSimulator(simConfig{Logger: log.Discard()})
	resp, err := sim.routes().Test(httptest.NewRequest(http.MethodPost, "/tts", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestControlChannelRoundTrip(t *testing.T) {
	_, addr := startSim(t)

	ch, err := control.New(
		control.WithURL("ws://"+addr+"/control"),
		control.WithReconnectDelay(50*time.Millisecond),
		control.WithLogger(log.Discard()),
	)
	require.NoError(t, err)
	ch.Connect(context.Background())
	t.Cleanup(ch.Disconnect)
	require.Eventually(t, ch.IsConnected, 2*time.Second, 10*time.Millisecond)

	msgs := ch.Messages(context.Background())
	require.NoError(t, ch.Speak("早晨", "yue-HK"))

	var states []control.PlaybackState
	timeout := time.After(2 * time.Second)
	for len(states) < 2 {
		select {
		case msg, ok := <-msgs:
			require.True(t, ok)
			status, isTTS := msg.(*control.PlaybackStatus)
			require.True(t, isTTS)
			states = append(states, status.State)
		case <-timeout:
			t.Fatalf("got %v before timeout", states)
		}
	}
	assert.Equal(t, []control.PlaybackState{control.PlaybackStarting, control.PlaybackEnded}, states)
}
