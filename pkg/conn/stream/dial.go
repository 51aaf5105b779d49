package stream

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/gobwas/ws"
	"github.com/sirupsen/logrus"

	"github.com/farsight-games/gamewire/pkg/conn"
)

// Dial establishes a TCP byte channel to addr and wraps it. The caller still
// runs Connect and StartMessageProcessing on the returned connection.
func Dial(addr string, log *logrus.Logger) (*Conn, error) {
	return DialContext(context.Background(), addr, log)
}

// DialContext is Dial with cancellation.
func DialContext(ctx context.Context, addr string, log *logrus.Logger) (*Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", conn.ErrConnectRefused, addr, err)
	}
	return NewConn(raw, log), nil
}

// DialWebSocket establishes a WebSocket session against url (ws://host:port/)
// and wraps it so frames ride inside binary messages.
func DialWebSocket(ctx context.Context, url string, log *logrus.Logger) (*Conn, error) {
	raw, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", conn.ErrConnectRefused, url, err)
	}
	var rw io.ReadWriter = raw
	if br != nil {
		// The handshake over-read into br; drain it before the raw channel.
		rw = readWriter{r: br, w: raw}
	}
	return NewConn(&wsChannel{raw: raw, rw: rw, client: true}, log), nil
}
