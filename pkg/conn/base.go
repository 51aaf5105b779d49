package conn

import (
	"fmt"
	"sync"
	"time"
)

// Base carries the transport-independent half of a connection: the lifecycle
// state machine, the accepted and EOF flags, the stored fatal error, the
// bound dispatcher, and the handshake attributes. Transport implementations
// embed it and drive it through the Mark/Begin/Finish methods; all methods
// are safe for concurrent use.
//
// The Begin/Finish split exists so that exactly one goroutine wins the race
// to tear a connection down: BeginDisconnect flips the state to
// StateDisconnecting for a single caller, that caller releases the
// transport's resources, then FinishDisconnect seals the connection.
type Base struct {
	mu          sync.Mutex
	state       State
	accepted    bool
	inboundEOF  bool
	outboundEOF bool
	err         error
	dispatcher  Dispatcher
	connectedAt time.Time
	onClose     func()

	version int
	locale  string
	appData any
}

// State implements Conn.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Accepted implements Conn.
func (b *Base) Accepted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accepted
}

// SetAccepted records that this endpoint has a live peer. Transports call
// it while pairing; it is not part of the application-facing surface.
func (b *Base) SetAccepted(accepted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accepted = accepted
}

// MarkConnected performs the NEW to CONNECTED transition and records the
// connect timestamp. A second call reports ErrAlreadyConnected; a call on a
// torn-down connection reports ErrClosed.
func (b *Base) MarkConnected() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.state == StateNew:
		b.state = StateConnected
		b.connectedAt = time.Now()
		return nil
	case b.state >= StateDisconnecting:
		return fmt.Errorf("connect: %w", ErrClosed)
	default:
		return fmt.Errorf("connect: %w", ErrAlreadyConnected)
	}
}

// BeginProcessing binds the dispatcher and performs the CONNECTED to
// PROCESSING transition. The dispatcher reference is set once here and only
// read afterwards.
func (b *Base) BeginProcessing(d Dispatcher) error {
	if d == nil {
		return fmt.Errorf("start message processing: nil dispatcher")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateNew:
		return fmt.Errorf("start message processing: %w", ErrNotConnected)
	case StateConnected:
		b.dispatcher = d
		b.state = StateProcessing
		return nil
	case StateProcessing:
		return fmt.Errorf("start message processing: %w", ErrAlreadyProcessing)
	default:
		return fmt.Errorf("start message processing: %w", ErrClosed)
	}
}

// Dispatcher returns the dispatcher bound by BeginProcessing, or nil.
func (b *Base) Dispatcher() Dispatcher {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dispatcher
}

// ProcessingStarted reports whether message processing has ever started.
// It stays true through teardown: a peer that processed and then closed is
// distinct from one that never processed at all.
func (b *Base) ProcessingStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dispatcher != nil
}

// BeginDisconnect claims the DISCONNECTING transition. It returns true for
// exactly one caller per connection lifetime; every later or concurrent
// caller gets false and must not repeat teardown side effects.
func (b *Base) BeginDisconnect() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state >= StateDisconnecting {
		return false
	}
	b.state = StateDisconnecting
	return true
}

// FinishDisconnect seals the connection: terminal state, both directions at
// EOF, and the close hook run exactly once. Only the BeginDisconnect winner
// calls it.
func (b *Base) FinishDisconnect() {
	b.mu.Lock()
	b.state = StateClosed
	b.inboundEOF = true
	b.outboundEOF = true
	onClose := b.onClose
	b.onClose = nil
	b.mu.Unlock()
	if onClose != nil {
		onClose()
	}
}

// SetOnClose registers a hook run once when the connection reaches
// StateClosed. Listeners and servers use it to drop the connection from
// their connected sets.
func (b *Base) SetOnClose(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onClose = fn
}

// InboundEOF implements Conn.
func (b *Base) InboundEOF() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inboundEOF
}

// OutboundEOF implements Conn.
func (b *Base) OutboundEOF() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outboundEOF
}

// MarkInboundEOF records that no further messages will be received.
func (b *Base) MarkInboundEOF() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inboundEOF = true
}

// MarkOutboundEOF records that no further messages may be sent.
func (b *Base) MarkOutboundEOF() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outboundEOF = true
}

// Err implements Conn.
func (b *Base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// RecordError stores the first fatal transport error for later retrieval
// through Err. Later errors are dropped: the first failure is the cause,
// everything after it is fallout.
func (b *Base) RecordError(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		b.err = err
	}
}

// CheckSendable is the shared Send precondition: Connect must have been
// called and the outbound direction must still be open.
func (b *Base) CheckSendable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateNew {
		return fmt.Errorf("send: %w", ErrNotConnected)
	}
	if b.state >= StateDisconnecting || b.outboundEOF {
		return fmt.Errorf("send: %w", ErrClosed)
	}
	return nil
}

// ConnectedAt implements Conn.
func (b *Base) ConnectedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectedAt
}

// Version implements Conn.
func (b *Base) Version() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// SetVersion implements Conn.
func (b *Base) SetVersion(v int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.version = v
}

// Locale implements Conn.
func (b *Base) Locale() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locale
}

// SetLocale implements Conn.
func (b *Base) SetLocale(locale string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locale = locale
}

// AppData implements Conn.
func (b *Base) AppData() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appData
}

// SetAppData implements Conn.
func (b *Base) SetAppData(data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appData = data
}
