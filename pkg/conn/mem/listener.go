package mem

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/farsight-games/gamewire/pkg/conn"
)

// DefaultCapacity is the accept-queue bound used when ListenerOpts.Capacity
// is not set. Connect attempts beyond it fail immediately instead of
// blocking the dialer.
const DefaultCapacity = 100

// ListenerOpts configures a listener created through Registry.Listen.
type ListenerOpts struct {
	// Capacity bounds the accept queue. Zero or negative selects
	// DefaultCapacity.
	Capacity int

	// Dispatcher receives inbound messages on every accepted server-side
	// connection. Required.
	Dispatcher conn.Dispatcher
}

// Listener is a named rendezvous point. Dialers enqueue themselves on its
// accept queue; Accept pairs the next dialer with a fresh server-side
// connection and starts that connection's message processing.
type Listener struct {
	name       string
	reg        *Registry
	log        *logrus.Entry
	dispatcher conn.Dispatcher

	pending chan *pendingEntry

	quit      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	connected map[*Conn]struct{}
}

// pendingEntry is one dialer waiting in the accept queue. Whoever wins the
// claim flag resolves the entry: the acceptor pairs it and closes done, a
// cancelling dialer abandons it, Close refuses it.
type pendingEntry struct {
	client  *Conn
	claimed atomic.Bool
	err     error // read after done is closed; nil means accepted
	done    chan struct{}
}

// Name returns the name the listener is registered under.
func (l *Listener) Name() string { return l.name }

// Pending reports how many dialers are currently waiting to be accepted.
func (l *Listener) Pending() int { return len(l.pending) }

// Accept blocks until a pending dialer is available, then pairs it with a
// new server-side connection. The returned connection is already connected
// and processing messages with the listener's dispatcher; the blocked dialer
// is released once pairing is complete. Accept never waits on application
// logic, only on the queue itself.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	for {
		select {
		case <-l.quit:
			return nil, fmt.Errorf("%w: listener %q", conn.ErrClosed, l.name)
		case <-ctx.Done():
			return nil, ctx.Err()
		case e := <-l.pending:
			if !e.claimed.CompareAndSwap(false, true) {
				// Dialer gave up while queued.
				continue
			}
			sc, err := l.pair(e)
			if err != nil {
				e.err = err
				close(e.done)
				return nil, err
			}
			close(e.done)
			return sc, nil
		}
	}
}

// pair builds the server-side end for a claimed entry, links both ends,
// registers the server end in the connected set and starts its dispatch
// goroutine.
func (l *Listener) pair(e *pendingEntry) (*Conn, error) {
	sc := newConn(l.log.Logger, l.name, roleServer)
	p := &pair{}
	p.ends[sideClient] = e.client
	p.ends[sideServer] = sc
	e.client.pair, e.client.side = p, sideClient
	sc.pair, sc.side = p, sideServer

	e.client.SetAccepted(true)
	sc.SetAccepted(true)

	sc.SetOnClose(func() { l.dropConnected(sc) })
	l.mu.Lock()
	l.connected[sc] = struct{}{}
	l.mu.Unlock()

	if _, err := sc.Connect(); err != nil {
		return nil, fmt.Errorf("mem: connect accepted peer: %w", err)
	}
	if err := sc.StartMessageProcessing(l.dispatcher); err != nil {
		return nil, fmt.Errorf("mem: start accepted peer: %w", err)
	}
	l.log.Debug("connection accepted")
	return sc, nil
}

// dial enqueues a new client-side connection and waits for acceptance.
func (l *Listener) dial(ctx context.Context) (*Conn, error) {
	select {
	case <-l.quit:
		return nil, fmt.Errorf("%w: listener %q is no longer accepting", conn.ErrConnectRefused, l.name)
	default:
	}

	e := &pendingEntry{
		client: newConn(l.log.Logger, l.name, roleClient),
		done:   make(chan struct{}),
	}
	select {
	case l.pending <- e:
	default:
		return nil, fmt.Errorf("%w: listener %q accept queue is full", conn.ErrConnectRefused, l.name)
	}

	select {
	case <-e.done:
		if e.err != nil {
			return nil, e.err
		}
		return e.client, nil
	case <-l.quit:
		if e.claimed.CompareAndSwap(false, true) {
			return nil, fmt.Errorf("%w: listener %q closed while waiting", conn.ErrConnectRefused, l.name)
		}
		// An acceptor got there first; take the pairing result.
		<-e.done
		if e.err != nil {
			return nil, e.err
		}
		return e.client, nil
	case <-ctx.Done():
		if e.claimed.CompareAndSwap(false, true) {
			return nil, ctx.Err()
		}
		<-e.done
		if e.err == nil {
			// Accepted and cancelled raced; the acceptor won, so unwind
			// the fresh pairing before reporting cancellation.
			e.client.Disconnect()
		}
		return nil, ctx.Err()
	}
}

// Close stops the listener accepting new connections. Dialers already queued
// are refused, blocked Accept calls return ErrClosed, and the listener's name
// is released from the registry. Established connections keep running.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		close(l.quit)
		l.reg.Remove(l.name)
		l.log.Debug("listener closed")
	})
}

// ForceClose closes the listener and additionally disconnects every
// connection it has accepted.
func (l *Listener) ForceClose() {
	l.Close()
	for _, c := range l.snapshotConnected() {
		c.Disconnect()
	}
}

// ConnectedCount reports how many accepted server-side connections are still
// open.
func (l *Listener) ConnectedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.connected)
}

func (l *Listener) snapshotConnected() []*Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	conns := make([]*Conn, 0, len(l.connected))
	for c := range l.connected {
		conns = append(conns, c)
	}
	return conns
}

func (l *Listener) dropConnected(c *Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.connected, c)
}
