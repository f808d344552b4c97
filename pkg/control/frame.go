package control

import (
	"encoding/json"
	"fmt"
)

// Feature names the subsystem a frame belongs to.
type Feature string

// Known features.
const (
	FeatureTTS Feature = "tts"
)

// Command is one outbound command object.
type Command struct {
	Feature Feature `json:"feature"`
	Text    string  `json:"text"`
	Lang    string  `json:"lang"`
}

// SpeakCommand asks the robot to synthesize text in lang.
func SpeakCommand(text, lang string) Command {
	return Command{Feature: FeatureTTS, Text: text, Lang: lang}
}

// EncodeCommands encodes commands as the JSON array the robot expects.
// The robot only accepts arrays, even for a single command.
func EncodeCommands(cmds ...Command) ([]byte, error) {
	if len(cmds) == 0 {
		return nil, ErrEmptyCommand
	}
	data, err := json.Marshal(cmds)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal commands: %w", err)
	}
	return data, nil
}

// Message is an inbound frame. The concrete type is *PlaybackStatus or
// *Opaque.
type Message interface {
	Feature() Feature
}

// PlaybackState is the speech synthesis state reported by the robot.
type PlaybackState string

// Playback states.
const (
	PlaybackStarting PlaybackState = "start"
	PlaybackEnded    PlaybackState = "end"
)

// PlaybackStatus reports text-to-speech progress on the robot.
type PlaybackStatus struct {
	State PlaybackState `json:"state"`

	// Result is optional text attached by the robot.
	Result string `json:"result,omitempty"`
}

// Feature implements Message.
func (p *PlaybackStatus) Feature() Feature { return FeatureTTS }

// Ended reports whether the robot finished speaking.
func (p *PlaybackStatus) Ended() bool { return p.State == PlaybackEnded }

// Opaque keeps frames of features this package does not understand.
type Opaque struct {
	Name Feature
	Raw  json.RawMessage
}

// Feature implements Message.
func (o *Opaque) Feature() Feature { return o.Name }

// ParseMessage decodes one inbound frame. Frames without a feature are
// rejected with ErrInvalidFrame.
func ParseMessage(data []byte) (Message, error) {
	var head struct {
		Feature *string `json:"feature"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if head.Feature == nil || *head.Feature == "" {
		return nil, fmt.Errorf("%w: missing feature", ErrInvalidFrame)
	}

	switch feature := Feature(*head.Feature); feature {
	case FeatureTTS:
		var status PlaybackStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("%w: tts: %v", ErrInvalidFrame, err)
		}
		return &status, nil
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return &Opaque{Name: feature, Raw: raw}, nil
	}
}
