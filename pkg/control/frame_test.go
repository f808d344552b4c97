package control

import (
	"errors"
	"testing"
)

func TestEncodeCommands(t *testing.T) {
	data, err := EncodeCommands(SpeakCommand("hello", "yue-HK"))
	if err != nil {
		t.Fatalf("EncodeCommands failed: %v", err)
	}

	want := `[{"feature":"tts","text":"hello","lang":"yue-HK"}]`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		check   func(t *testing.T, msg Message)
		wantErr bool
	}{
		{
			name:  "tts start with result",
			input: `{"feature":"tts","state":"start","result":"speaking"}`,
			check: func(t *testing.T, msg Message) {
				status, ok := msg.(*PlaybackStatus)
				if !ok {
					t.Fatalf("expected *PlaybackStatus, got %T", msg)
				}
				if status.State != PlaybackStarting || status.Ended() {
					t.Errorf("expected start state, got %q", status.State)
				}
				if status.Result != "speaking" {
					t.Errorf("expected result 'speaking', got %q", status.Result)
				}
			},
		},
		{
			name:  "tts end without result",
			input: `{"feature":"tts","state":"end"}`,
			check: func(t *testing.T, msg Message) {
				status := msg.(*PlaybackStatus)
				if !status.Ended() {
					t.Errorf("expected end state, got %q", status.State)
				}
				if status.Result != "" {
					t.Errorf("expected empty result, got %q", status.Result)
				}
			},
		},
		{
			name:  "unknown feature is preserved",
			input: `{"feature":"motion","angle":30}`,
			check: func(t *testing.T, msg Message) {
				opaque, ok := msg.(*Opaque)
				if !ok {
					t.Fatalf("expected *Opaque, got %T", msg)
				}
				if opaque.Feature() != "motion" {
					t.Errorf("expected feature motion, got %s", opaque.Feature())
				}
				if string(opaque.Raw) != `{"feature":"motion","angle":30}` {
					t.Errorf("raw payload not preserved: %s", opaque.Raw)
				}
			},
		},
		{name: "missing feature", input: `{"state":"end"}`, wantErr: true},
		{name: "empty feature", input: `{"feature":""}`, wantErr: true},
		{name: "non-string feature", input: `{"feature":7}`, wantErr: true},
		{name: "not json", input: `hello`, wantErr: true},
		{name: "bad tts state type", input: `{"feature":"tts","state":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFrame) {
					t.Errorf("expected ErrInvalidFrame, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, msg)
		})
	}
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("refused")
	err := NewConnectionError("dial", cause, true)

	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
	if !IsRetryable(err) {
		t.Error("expected retryable")
	}
	if IsRetryable(cause) {
		t.Error("plain errors are not retryable")
	}
	if err.Error() != "control: connection error: dial: refused" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestConnectionStateString(t *testing.T) {
	tests := map[ConnectionState]string{
		StateDisconnected:   "disconnected",
		StateConnecting:     "connecting",
		StateConnected:      "connected",
		ConnectionState(42): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}
}
