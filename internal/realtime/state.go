package realtime

// State is the connection lifecycle state of a Client.
type State int32

const (
	// StateIdle means no transport exists. Initial state and the result of Disconnect.
	StateIdle State = iota

	// StateConnecting means a transport handshake is in flight.
	StateConnecting

	// StateConnected means frames are being dispatched.
	StateConnected

	// StateDisconnected means the transport failed and a reconnect timer is pending.
	// A Subscribe in this state cancels the timer and connects immediately.
	StateDisconnected

	// StateGaveUp means MaxReconnectAttempts was reached. The next Subscribe starts a new cycle.
	StateGaveUp
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
