// Package chat talks to conversational backends.
//
// Client speaks the chat server's postchat protocol with HTTP basic auth.
// Gemini answers through the Google GenAI SDK. Both implement Backend.
package chat

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/teslashibe/go-luckycat/pkg/history"
)

// DefaultDirective is appended to every request as a system message.
const DefaultDirective = "always answer in spoken cantonese"

// Backend produces a reply to text given prior turns.
type Backend interface {
	Reply(ctx context.Context, text string, hist []history.Entry) (string, error)
}

// Mode selects how the chat server picks its system prompt.
type Mode string

const (
	// ModeUserDefault uses the account's default prompt.
	ModeUserDefault Mode = "user_default"
	// ModeSelect uses the prompt set named by Request.Set.
	ModeSelect Mode = "select"
	// ModeUnlimited uses no prompt restrictions.
	ModeUnlimited Mode = "unlimited"
)

// UnmarshalJSON accepts the legacy "unlimit" spelling.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "unlimit" {
		s = string(ModeUnlimited)
	}
	*m = Mode(s)
	return nil
}

// ParseMode maps a config string to a Mode. Unknown values yield
// ModeUserDefault.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "select":
		return ModeSelect
	case "unlimited", "unlimit":
		return ModeUnlimited
	default:
		return ModeUserDefault
	}
}

// Request is the postchat request body.
type Request struct {
	Message        string          `json:"message"`
	MessageHistory []history.Entry `json:"message_history"`
	Mode           Mode            `json:"mode"`
	Set            *int            `json:"set,omitempty"`
}

// Choice is one candidate reply.
type Choice struct {
	Message        history.Entry `json:"message"`
	FinishedReason string        `json:"finished_reason"`
}

// Response is the postchat response body.
type Response struct {
	Choices []Choice `json:"choices"`
}

// Reply returns the content of the first choice.
func (r *Response) Reply() (string, error) {
	if len(r.Choices) == 0 {
		return "", ErrNoChoices
	}
	return r.Choices[0].Message.Content, nil
}

// PromptSet is a server-side system prompt selectable with ModeSelect.
type PromptSet struct {
	PKey          int      `json:"pkey"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	SystemMessage []string `json:"system_message"`
}

// withDirective returns hist followed by the system directive. hist is
// not modified.
func withDirective(hist []history.Entry, directive string) []history.Entry {
	out := make([]history.Entry, 0, len(hist)+1)
	out = append(out, hist...)
	if directive != "" {
		out = append(out, history.System(directive))
	}
	return out
}
