// Package stream implements the transport for peers reached over a
// bidirectional byte channel: every message crosses the wire as one
// length-prefixed text frame. The channel is usually a TCP connection but
// anything satisfying net.Conn works, including the package's WebSocket
// adapter.
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/farsight-games/gamewire/pkg/conn"
	"github.com/farsight-games/gamewire/pkg/message"
	"github.com/farsight-games/gamewire/pkg/wire"
)

// disconnectWriteTimeout bounds the best-effort Disconnect frame so teardown
// can never hang behind an unresponsive peer.
const disconnectWriteTimeout = 500 * time.Millisecond

// Conn is one end of a framed connection over a byte channel. Reads happen
// on the dispatch goroutine only; Send serializes concurrent writers with an
// exclusive lock because the channel has a single output side.
type Conn struct {
	conn.Base

	log *logrus.Entry
	ch  net.Conn

	br *bufio.Reader

	wmu sync.Mutex
	bw  *bufio.Writer

	closeOnce sync.Once
}

var _ conn.Conn = (*Conn)(nil)

// NewConn wraps an established byte channel. The connection is usable after
// Connect and StartMessageProcessing are called, in that order. A nil log
// falls back to the logrus standard logger.
func NewConn(ch net.Conn, log *logrus.Logger) *Conn {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Conn{
		log: log.WithFields(logrus.Fields{
			"transport": "stream",
			"remote":    ch.RemoteAddr().String(),
		}),
		ch: ch,
	}
	// The channel rendezvous already happened when the byte channel was
	// established, so a stream connection is born accepted.
	c.SetAccepted(true)
	return c
}

// RemoteAddr returns the peer's channel address.
func (c *Conn) RemoteAddr() net.Addr { return c.ch.RemoteAddr() }

// Connect attaches the frame codec to both sides of the channel. It must be
// called exactly once, before StartMessageProcessing.
func (c *Conn) Connect() (bool, error) {
	c.wmu.Lock()
	if c.bw == nil {
		c.br = bufio.NewReader(c.ch)
		c.bw = bufio.NewWriter(c.ch)
	}
	c.wmu.Unlock()
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

// Send encodes m and writes it as one frame. A write failure is recorded on
// the connection and returned; an oversized message is only returned, the
// channel stays intact.
func (c *Conn) Send(m message.Message) error {
	if err := c.CheckSendable(); err != nil {
		return err
	}
	data := message.Encode(m)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	err := wire.WriteFrame(c.bw, data)
	if err == nil {
		err = c.bw.Flush()
	}
	if err != nil {
		if !errors.Is(err, wire.ErrFrameTooLarge) {
			c.RecordError(err)
		}
		return fmt.Errorf("stream: send %q: %w", m.Kind(), err)
	}
	return nil
}

// Disconnect tears the connection down: best-effort Disconnect frame to the
// peer, close the channel to interrupt the dispatch goroutine, mark both
// directions EOF. Calling it again is a no-op.
func (c *Conn) Disconnect() {
	if !c.BeginDisconnect() {
		return
	}
	defer c.FinishDisconnect()
	defer c.closeChannel()
	c.sendDisconnectFrame()
	c.log.Debug("disconnected")
}

// sendDisconnectFrame writes the Disconnect control frame if the codec is
// attached, under a deadline, swallowing any failure: the peer being already
// gone is exactly the case the deadline exists for.
func (c *Conn) sendDisconnectFrame() {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.bw == nil {
		return
	}
	_ = c.ch.SetWriteDeadline(time.Now().Add(disconnectWriteTimeout))
	if err := wire.WriteFrame(c.bw, message.Encode(&message.Disconnect{})); err == nil {
		_ = c.bw.Flush()
	}
}

func (c *Conn) closeChannel() {
	c.closeOnce.Do(func() {
		_ = c.ch.Close()
	})
}

// processLoop is the connection's single dispatch goroutine: read one frame,
// decode it, hand it to the dispatcher. Undecodable or unknown frames are
// dropped with a diagnostic and do not count as the first message.
func (c *Conn) processLoop() {
	d := c.Dispatcher()
	first := true
	for {
		data, err := wire.ReadFrame(c.br)
		if err != nil {
			c.teardownOnReadError(err)
			return
		}
		m, err := message.Decode(data)
		if err != nil {
			c.log.WithError(err).Warn("dropping undecodable frame")
			continue
		}
		if u, ok := m.(*message.Unknown); ok {
			c.log.WithField("kind", u.Kind()).Warn("dropping message of unknown kind")
			continue
		}
		if _, ok := m.(*message.Disconnect); ok {
			c.log.Debug("peer disconnected")
			c.teardownFromPeer()
			return
		}
		if first {
			first = false
			d.DispatchFirst(m, c)
		} else {
			d.Dispatch(m, c)
		}
	}
}

// teardownOnReadError runs the disconnect sequence after a failed read. The
// peer is unreachable by then, so no Disconnect frame is sent; the error is
// recorded for callers to poll, unless a local Disconnect already started
// and the failure is merely our own channel close unblocking the read.
func (c *Conn) teardownOnReadError(err error) {
	if !c.BeginDisconnect() {
		return
	}
	c.RecordError(err)
	c.log.WithError(err).Debug("read failed, closing")
	c.closeChannel()
	c.FinishDisconnect()
}

// teardownFromPeer runs the disconnect sequence after the peer announced its
// disconnect. No frame goes back; the peer already severed its end.
func (c *Conn) teardownFromPeer() {
	if !c.BeginDisconnect() {
		return
	}
	c.closeChannel()
	c.FinishDisconnect()
}
