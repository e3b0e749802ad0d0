package connection

import "time"

// State is the connection lifecycle state. Transitions are driven only by
// named events: open, message, error, close, reconnect timer, manual
// disconnect.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Mode selects the transport. Auto prefers streaming and falls back to
// polling when the streaming endpoint drops.
type Mode string

const (
	ModeStreaming Mode = "streaming"
	ModePolling   Mode = "polling"
	ModeAuto      Mode = "auto"
)

// Status is the externally visible connection state, published on every
// transition.
type Status struct {
	State      State
	LastError  string
	LastUpdate time.Time
}
