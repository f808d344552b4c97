// Package stt runs speech recognition sessions over a microphone.
//
// A Session owns an audioio.Recorder and a Recognizer backend and moves
// through Initializing, Ready, Running and Released. Each Start returns a
// Capture whose Utterances channel carries partial transcripts and ends
// with a final one, or closes early on Interrupt.
package stt

// State is the lifecycle state of a Session.
type State int

const (
	// StateInitializing is the state before Init succeeds.
	StateInitializing State = iota
	// StateReady accepts Start.
	StateReady
	// StateRunning is capturing and recognizing.
	StateRunning
	// StateReleased is terminal.
	StateReleased
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Utterance is a partial or final transcript.
type Utterance struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}
