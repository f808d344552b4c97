// Package turn sequences one conversational turn: listen, think, speak,
// then wait for the robot to finish before accepting the next command.
package turn

import (
	"errors"
	"fmt"
	"time"
)

// State is the orchestrator state.
type State int

const (
	// StateReady accepts a new turn.
	StateReady State = iota
	// StateListening is capturing the user's utterance.
	StateListening
	// StateThinking is waiting for the chat backend.
	StateThinking
	// StateSpeaking is waiting for the robot to finish the reply.
	StateSpeaking
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateReady, StateListening, StateThinking, StateSpeaking} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("turn: unknown state %q", text)
}

// Outcome describes how a turn ended.
type Outcome string

const (
	// OutcomeCompleted means the robot reported the reply finished.
	OutcomeCompleted Outcome = "completed"
	// OutcomeEmpty means nothing was heard; no backend call was made.
	OutcomeEmpty Outcome = "empty"
	// OutcomeFailed means recognition, the backend or the speak command failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeTimedOut means the completion wait gave up and the turn ended anyway.
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeCancelled means the turn was cancelled.
	OutcomeCancelled Outcome = "cancelled"
)

// ErrBusy is returned when a turn is requested outside StateReady.
var ErrBusy = errors.New("turn: turn already in progress")

// Result summarizes a finished turn.
type Result struct {
	TurnID    string        `json:"turn_id"`
	Utterance string        `json:"utterance"`
	Reply     string        `json:"reply"`
	Outcome   Outcome       `json:"outcome"`
	Duration  time.Duration `json:"duration"`
}

// Status is a point-in-time view for observers.
type Status struct {
	State         State  `json:"state"`
	TurnID        string `json:"turn_id,omitempty"`
	LastUtterance string `json:"last_utterance"`
	LastReply     string `json:"last_reply"`
	CanTalk       bool   `json:"can_talk"`
}
