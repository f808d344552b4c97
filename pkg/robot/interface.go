// Package robot talks to the robot's HTTP surface.
//
// The interfaces are deliberately small. Consumers depend only on what they
// use: the turn poll waiter needs a StatusReader, the dashboard a Resetter.
package robot

import "context"

// StatusIdle is the status code reported while the robot is not speaking.
const StatusIdle = 0

// Status is the robot's reported state.
type Status struct {
	Status int `json:"status"`
}

// Idle reports whether the robot is idle.
func (s Status) Idle() bool {
	return s.Status == StatusIdle
}

// StatusReader queries the robot status.
type StatusReader interface {
	Status(ctx context.Context) (Status, error)
}

// Speaker asks the robot to speak text.
type Speaker interface {
	Speak(ctx context.Context, text, lang string) error
}

// Resetter clears the robot status.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Controller is the full robot HTTP surface.
type Controller interface {
	StatusReader
	Speaker
	Resetter
}

var (
	_ Controller = (*Client)(nil)
	_ Controller = (*Mock)(nil)
)
