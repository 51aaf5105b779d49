package conn

// State is a connection's position in its lifecycle. Transitions only move
// forward; StateClosed is terminal.
type State int

const (
	// StateNew is the state before Connect.
	StateNew State = iota
	// StateConnected means Connect succeeded but processing has not started.
	StateConnected
	// StateProcessing means the dispatch goroutine is running.
	StateProcessing
	// StateDisconnecting means teardown has begun on some goroutine.
	StateDisconnecting
	// StateClosed is terminal: both directions at EOF, resources released.
	StateClosed
)

// String returns the state's name for logs and errors.
func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateConnected:
		return "CONNECTED"
	case StateProcessing:
		return "PROCESSING"
	case StateDisconnecting:
		return "DISCONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
