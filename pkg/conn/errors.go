package conn

import "errors"

// Sentinel errors for the failure classes shared by all transports. Callers
// match them with errors.Is; transports wrap them with context via %w.
var (
	// ErrConnectRefused reports a failed rendezvous: the named listener
	// does not exist, its accept queue is full, or it is at EOF.
	ErrConnectRefused = errors.New("connect refused")

	// ErrNotConnected reports an operation that requires Connect first.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected reports a second Connect call.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrAlreadyProcessing reports a second StartMessageProcessing call.
	ErrAlreadyProcessing = errors.New("message processing already started")

	// ErrPeerNotProcessing reports a Send whose peer endpoint has not
	// started its message processing, so nothing would ever consume the
	// delivery.
	ErrPeerNotProcessing = errors.New("peer has not started message processing")

	// ErrClosed reports an operation on a connection that is disconnecting
	// or closed, or whose relevant direction is at EOF.
	ErrClosed = errors.New("connection closed")
)
