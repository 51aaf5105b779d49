package stream

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// readWriter splits the read and write sides of a channel, so frame parsing
// can drain bytes an upgrade or dial buffered ahead of the raw connection.
type readWriter struct {
	r io.Reader
	w io.Writer
}

func (rw readWriter) Read(p []byte) (int, error)  { return rw.r.Read(p) }
func (rw readWriter) Write(p []byte) (int, error) { return rw.w.Write(p) }

// wsChannel presents a WebSocket session as a plain byte channel: writes
// become one binary message each, reads drain binary messages in order. The
// framed connection on top of it never notices the difference.
type wsChannel struct {
	raw    net.Conn
	rw     io.ReadWriter
	client bool

	rmu     sync.Mutex
	pending []byte // unread tail of the last binary message
}

var _ net.Conn = (*wsChannel)(nil)

// newServerWSChannel upgrades an incoming connection whose HTTP request is
// (partially) buffered in reader, and wraps it for server-side framing.
func newServerWSChannel(raw net.Conn, reader io.Reader) (*wsChannel, error) {
	rw := readWriter{r: reader, w: raw}
	if _, err := ws.Upgrade(rw); err != nil {
		return nil, err
	}
	return &wsChannel{raw: raw, rw: rw}, nil
}

func (c *wsChannel) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}

	for {
		var data []byte
		var err error
		if c.client {
			data, err = wsutil.ReadServerBinary(c.rw)
		} else {
			data, err = wsutil.ReadClientBinary(c.rw)
		}
		if err != nil {
			return 0, wsReadError(err)
		}
		if len(data) == 0 {
			continue
		}
		n := copy(p, data)
		if n < len(data) {
			c.pending = data[n:]
		}
		return n, nil
	}
}

func (c *wsChannel) Write(p []byte) (int, error) {
	var err error
	if c.client {
		err = wsutil.WriteClientBinary(c.rw, p)
	} else {
		err = wsutil.WriteServerBinary(c.rw, p)
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a best-effort close frame and closes the underlying channel.
func (c *wsChannel) Close() error {
	if c.client {
		_ = wsutil.WriteClientMessage(c.rw, ws.OpClose, nil)
	} else {
		_ = wsutil.WriteServerMessage(c.rw, ws.OpClose, nil)
	}
	return c.raw.Close()
}

func (c *wsChannel) LocalAddr() net.Addr                { return c.raw.LocalAddr() }
func (c *wsChannel) RemoteAddr() net.Addr               { return c.raw.RemoteAddr() }
func (c *wsChannel) SetDeadline(t time.Time) error      { return c.raw.SetDeadline(t) }
func (c *wsChannel) SetReadDeadline(t time.Time) error  { return c.raw.SetReadDeadline(t) }
func (c *wsChannel) SetWriteDeadline(t time.Time) error { return c.raw.SetWriteDeadline(t) }

// wsReadError maps a peer's close frame to io.EOF so the read loop treats a
// WebSocket goodbye like any other end of stream.
func wsReadError(err error) error {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return io.EOF
	}
	return err
}
