// Package control implements the duplex command channel to the robot.
//
// A Channel keeps one websocket open to the robot's /control endpoint and
// re-dials it forever, with a fixed delay, until Disconnect is called.
// Outbound commands are fire-and-forget; inbound frames are decoded into
// Message values and fanned out to per-connection subscriptions.
package control

// ConnectionState represents the channel's connection state.
type ConnectionState int

const (
	// StateDisconnected means no connection is open.
	StateDisconnected ConnectionState = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateConnected means frames can be exchanged.
	StateConnected
)

// String returns a human-readable state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
