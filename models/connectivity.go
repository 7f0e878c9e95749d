package models

// Connectivity is the tri-state readiness signal gating send availability.
type Connectivity string

const (
	// StateConnecting is the initial state, re-entered on every room change.
	StateConnecting Connectivity = "connecting"
	// StateConnected is reached on a successful directory load and,
	// independently, once the room subscription acknowledges readiness.
	StateConnected Connectivity = "connected"
	// StateDisconnected is terminal for the session: entered only on a
	// directory/bootstrap failure, never from a dropped event stream.
	StateDisconnected Connectivity = "disconnected"
)
