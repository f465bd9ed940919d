package hubclient

// State is the lifecycle of a Controller.
type State int

const (
	// StateIdle means Start has not dialed yet.
	StateIdle State = iota

	// StateConnected means the hub acknowledged auth.
	StateConnected

	// StateDisconnected means the transport dropped or a dial failed.
	StateDisconnected

	// StateReconnecting means a retry is scheduled.
	StateReconnecting

	// StateAbandoned is terminal: the retry cap was exceeded or the hub
	// rejected the credentials.
	StateAbandoned

	// StateStopped is terminal: the application called Stop.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateAbandoned:
		return "abandoned"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateAbandoned || s == StateStopped
}

// StateEvent is emitted on every transition.
type StateEvent struct {
	Old State
	New State
	Err error // cause of a drop or abandonment, if any
}
