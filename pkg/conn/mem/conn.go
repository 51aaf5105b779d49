package mem

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/farsight-games/gamewire/pkg/conn"
	"github.com/farsight-games/gamewire/pkg/message"
)

// InboxDepth bounds each connection's inbound queue. Senders block once the
// peer falls this far behind, and unblock the moment either side disconnects.
const InboxDepth = 64

const (
	sideClient = 0
	sideServer = 1
)

const (
	roleClient = "client"
	roleServer = "server"
)

// pair is the handle shared by both ends of an in-process connection. Each
// end keeps its side index into ends; severing is per end, via its detached
// flag, so teardown needs no cross-pointer bookkeeping.
type pair struct {
	ends [2]*Conn
}

// Conn is one end of an in-process connection. Send hands the message object
// directly to the peer's inbound queue, so messages must not be mutated after
// they are sent; the peer's dispatch goroutine reads them concurrently.
type Conn struct {
	conn.Base

	log  *logrus.Entry
	pair *pair
	side int

	// detached is set when this end severs its view of the pair, before any
	// notification reaches the peer. The dispatch loop checks it after every
	// dequeue so a Disconnect exchange can never loop.
	detached atomic.Bool

	inbox chan message.Message
	done  chan struct{}
}

var _ conn.Conn = (*Conn)(nil)

func newConn(log *logrus.Logger, listener, role string) *Conn {
	return &Conn{
		log: log.WithFields(logrus.Fields{
			"transport": "mem",
			"listener":  listener,
			"role":      role,
		}),
		inbox: make(chan message.Message, InboxDepth),
		done:  make(chan struct{}),
	}
}

// peerEnd returns the other end of the pair, or nil if this end has already
// severed the link or was never paired.
func (c *Conn) peerEnd() *Conn {
	if c.pair == nil || c.detached.Load() {
		return nil
	}
	return c.pair.ends[1-c.side]
}

// Connect records the connection timestamp and reports whether the
// connection was accepted by a listener. Pairing itself already happened
// during the dial/accept rendezvous.
func (c *Conn) Connect() (bool, error) {
	if err := c.MarkConnected(); err != nil {
		return false, err
	}
	c.log.Debug("connected")
	return c.Accepted(), nil
}

// StartMessageProcessing binds the dispatcher and starts the connection's
// dispatch goroutine.
func (c *Conn) StartMessageProcessing(d conn.Dispatcher) error {
	if err := c.BeginProcessing(d); err != nil {
		return err
	}
	go c.processLoop()
	return nil
}

// Send delivers m to the peer's inbound queue. It fails fast when the
// connection is not yet connected, either side has disconnected, or the peer
// has not started processing messages.
func (c *Conn) Send(m message.Message) error {
	if err := c.CheckSendable(); err != nil {
		return err
	}
	p := c.peerEnd()
	if p == nil {
		return fmt.Errorf("%w: peer is gone", conn.ErrClosed)
	}
	if !p.ProcessingStarted() {
		return fmt.Errorf("send: %w", conn.ErrPeerNotProcessing)
	}
	// Fail fast on an already-dead end before the blocking select below,
	// which picks among ready cases at random and could otherwise hand m to
	// a queue nobody will drain again.
	select {
	case <-p.done:
		return fmt.Errorf("%w: peer disconnected", conn.ErrClosed)
	case <-c.done:
		return fmt.Errorf("%w: connection closed", conn.ErrClosed)
	default:
	}
	select {
	case p.inbox <- m:
		return nil
	case <-p.done:
		return fmt.Errorf("%w: peer disconnected", conn.ErrClosed)
	case <-c.done:
		return fmt.Errorf("%w: connection closed", conn.ErrClosed)
	}
}

// Disconnect tears the connection down: sever the pair link, best-effort
// notify the peer, stop the dispatch goroutine and mark both directions EOF.
// Calling it again is a no-op.
func (c *Conn) Disconnect() {
	if !c.BeginDisconnect() {
		return
	}
	// Sever our view of the pair before notifying, so the peer's Disconnect
	// message can never provoke one back.
	c.detached.Store(true)
	if c.pair != nil {
		p := c.pair.ends[1-c.side]
		if p.ProcessingStarted() && !p.detached.Load() {
			select {
			case p.inbox <- &message.Disconnect{}:
			default:
				// Queue full; the done channel closed below still wakes
				// the peer's dispatch loop.
			}
		}
	}
	close(c.done)
	c.FinishDisconnect()
	c.log.Debug("disconnected")
}

// processLoop is the connection's single dispatch goroutine. It delivers the
// first message through DispatchFirst and every later one through Dispatch,
// and exits on interruption, on a dequeue after this end severed the pair,
// or once the peer is gone: through its Disconnect message when the queue
// had room for it, through its closed done channel when it did not.
func (c *Conn) processLoop() {
	d := c.Dispatcher()
	// The peer's done channel backstops the Disconnect message. The message
	// travels through the queue in order, but a full queue drops it, and
	// without the backstop this loop would never wake again.
	var peerDone <-chan struct{}
	if c.pair != nil {
		peerDone = c.pair.ends[1-c.side].done
	}
	first := true
	for {
		select {
		case <-c.done:
			return
		case m := <-c.inbox:
			if !c.deliver(d, m, &first) {
				return
			}
		case <-peerDone:
			c.drainBacklog(d, &first)
			return
		}
	}
}

// deliver hands one dequeued message to the dispatcher, routing the first
// one through DispatchFirst. It reports false when the loop must stop:
// this end already severed the pair, or the message was the peer's
// Disconnect announcement.
func (c *Conn) deliver(d conn.Dispatcher, m message.Message, first *bool) bool {
	if c.detached.Load() {
		return false
	}
	if _, ok := m.(*message.Disconnect); ok {
		c.log.Debug("peer disconnected")
		c.teardownFromPeer()
		return false
	}
	if *first {
		*first = false
		d.DispatchFirst(m, c)
	} else {
		d.Dispatch(m, c)
	}
	return true
}

// drainBacklog empties the inbound queue after the peer's done channel
// closed, delivering in order, then runs the teardown the peer's dropped
// Disconnect message would have triggered. The peer stops sending before
// it closes done, so the non-blocking drain sees everything it queued.
func (c *Conn) drainBacklog(d conn.Dispatcher, first *bool) {
	for {
		select {
		case m := <-c.inbox:
			if !c.deliver(d, m, first) {
				return
			}
		default:
			c.log.Debug("peer disconnected")
			c.teardownFromPeer()
			return
		}
	}
}

// teardownFromPeer runs the disconnect sequence without sending a
// Disconnect message back; the peer already severed its own end.
func (c *Conn) teardownFromPeer() {
	if !c.BeginDisconnect() {
		return
	}
	c.detached.Store(true)
	close(c.done)
	c.FinishDisconnect()
}
