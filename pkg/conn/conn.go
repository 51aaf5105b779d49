// Package conn defines the uniform contract every transport implements: the
// connection lifecycle and send/receive surface, the dispatcher callback
// interface, and the shared error taxonomy. Transport implementations live
// in the subpackages mem (paired in-process queues) and stream (framed byte
// channels).
package conn

import (
	"time"

	"github.com/farsight-games/gamewire/pkg/message"
)

// Conn is one endpoint of a bidirectional session carrying discrete
// messages, independent of whether the peer is in-process or remote.
//
// The lifecycle is Connect, then StartMessageProcessing, then any number of
// Send calls interleaved with inbound dispatches, then Disconnect. Send is
// safe for concurrent callers; Disconnect is idempotent and safe to call
// from any goroutine, including a dispatcher.
type Conn interface {
	// Connect prepares the connection for traffic and reports whether it is
	// in an accepted, usable state. Calling it twice is a caller error.
	Connect() (bool, error)

	// StartMessageProcessing binds d and starts the connection's single
	// dispatch goroutine, which delivers inbound messages to d until EOF or
	// Disconnect. It fails if Connect has not been called or if processing
	// already started.
	StartMessageProcessing(d Dispatcher) error

	// Send delivers m to the peer. It returns an error instead of blocking
	// forever when the peer is gone or the outbound side is at EOF.
	Send(m message.Message) error

	// Disconnect ends the session: a best-effort Disconnect control message
	// to the peer, teardown of the dispatch goroutine, and release of
	// transport resources. A second call is a no-op.
	Disconnect()

	// State reports the connection's lifecycle state.
	State() State

	// Accepted reports whether the connection has been paired with a peer
	// (in-process) or constructed around an established channel (stream).
	Accepted() bool

	// InboundEOF and OutboundEOF report whether each direction has shut
	// down. Both are set by the time State reaches StateClosed.
	InboundEOF() bool
	OutboundEOF() bool

	// Err returns the first fatal transport error recorded on this
	// connection, or nil. Failures on the dispatch goroutine cannot be
	// returned to the application's calling goroutine, so they are stored
	// here for polling.
	Err() error

	// ConnectedAt returns the time Connect succeeded.
	ConnectedAt() time.Time

	// Version, Locale and AppData are the per-connection handshake
	// attributes: the peer's protocol version, its locale tag, and an
	// opaque slot for the application's session object. They are written
	// once while handling the first message and read freely afterwards;
	// writes after that point need external synchronization between the
	// writers.
	Version() int
	SetVersion(v int)
	Locale() string
	SetLocale(locale string)
	AppData() any
	SetAppData(data any)
}

// Dispatcher receives a connection's inbound messages. Both methods run on
// the connection's single dispatch goroutine: they are never invoked
// concurrently for the same connection, but dispatchers shared across
// connections run concurrently and must synchronize shared state.
//
// Both methods must return promptly. Anything slow or blocking belongs on
// another goroutine, otherwise the connection's whole inbound pipeline
// stalls behind it.
type Dispatcher interface {
	// DispatchFirst is invoked exactly once per connection, with the first
	// message received. Servers use it to handle the initial
	// identification message specially.
	DispatchFirst(m message.Message, c Conn)

	// Dispatch is invoked for every message after the first.
	Dispatch(m message.Message, c Conn)
}
