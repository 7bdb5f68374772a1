package relay

// ConnState is the relay-level state of a connection.
type ConnState uint8

const (
	// StateConnected means the transport is up and hello is pending.
	StateConnected ConnState = iota
	// StateAuthorized means the gate admitted the connection.
	StateAuthorized
	// StateActive means the connection has sent at least one
	// sub, unsub or log frame.
	StateActive
	// StateDisconnected is terminal.
	StateDisconnected
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateAuthorized:
		return "AUTHORIZED"
	case StateActive:
		return "ACTIVE"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// IsAuthorized reports whether the gate has admitted the connection
// and it is still live.
func (s ConnState) IsAuthorized() bool {
	return s == StateAuthorized || s == StateActive
}
