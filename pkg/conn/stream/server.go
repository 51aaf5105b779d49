package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/farsight-games/gamewire/pkg/conn"
)

// DefaultAddr is the conventional listen address for framed traffic.
const DefaultAddr = ":8880"

// ServerOpts configures a Server.
type ServerOpts struct {
	// Dispatcher receives inbound messages on every accepted connection.
	// Required.
	Dispatcher conn.Dispatcher

	// EnableWebSocket makes the server sniff each accepted channel and
	// upgrade HTTP requests to WebSocket sessions, so framed and WebSocket
	// clients share one port. Anything else is treated as raw framed
	// traffic.
	EnableWebSocket bool

	// Log is the diagnostics sink; nil falls back to the logrus standard
	// logger.
	Log *logrus.Logger
}

// Server accepts byte channels and turns each one into a processing
// connection bound to the configured dispatcher.
type Server struct {
	addr       string
	log        *logrus.Entry
	dispatcher conn.Dispatcher
	enableWS   bool

	listener net.Listener
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.Mutex
	conns     map[*Conn]struct{}
	detecting map[net.Conn]struct{}
}

// NewServer creates a server that will listen on addr. An empty addr selects
// DefaultAddr.
func NewServer(addr string, opts ServerOpts) (*Server, error) {
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("stream: server needs a dispatcher")
	}
	if addr == "" {
		addr = DefaultAddr
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		addr:       addr,
		log:        log.WithFields(logrus.Fields{"transport": "stream", "addr": addr}),
		dispatcher: opts.Dispatcher,
		enableWS:   opts.EnableWebSocket,
		quit:       make(chan struct{}),
		conns:      make(map[*Conn]struct{}),
		detecting:  make(map[net.Conn]struct{}),
	}, nil
}

// Start binds the listener and starts the accept loop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("stream: start server: %w", err)
	}
	s.listener = listener
	s.log = s.log.WithField("addr", listener.Addr().String())
	s.log.Info("server started")

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ConnCount reports how many accepted connections are still open.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Stop stops accepting and disconnects every open connection, including
// channels still in protocol detection. Calling it again is a no-op.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.mu.Lock()
		for raw := range s.detecting {
			_ = raw.Close()
		}
		s.mu.Unlock()
		for _, c := range s.snapshotConns() {
			c.Disconnect()
		}
		s.wg.Wait()
		s.log.Info("server stopped")
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		raw, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.WithError(err).Warn("accept failed")
				continue
			}
		}
		s.wg.Add(1)
		go s.serve(raw)
	}
}

// serve readies one accepted channel: sniff the protocol if WebSocket
// sharing is on, then connect and start message processing. It returns as
// soon as the connection's dispatch goroutine is running.
func (s *Server) serve(raw net.Conn) {
	defer s.wg.Done()
	log := s.log.WithField("remote", raw.RemoteAddr().String())

	ch := raw
	if s.enableWS {
		// Track the channel while it sits in detection, so Stop can close
		// it out from under a blocked peek.
		if !s.beginDetecting(raw) {
			_ = raw.Close()
			return
		}
		reader := bufio.NewReader(raw)
		peek, err := reader.Peek(4)
		s.endDetecting(raw)
		if err != nil {
			log.WithError(err).Debug("peek failed, dropping channel")
			_ = raw.Close()
			return
		}
		if isHTTPRequest(peek) {
			wsc, err := newServerWSChannel(raw, reader)
			if err != nil {
				log.WithError(err).Warn("websocket upgrade failed")
				_ = raw.Close()
				return
			}
			ch = wsc
		} else {
			// Keep the peeked bytes ahead of the channel.
			ch = &bufferedConn{Conn: raw, reader: reader}
		}
	}

	c := NewConn(ch, s.log.Logger)
	if !s.trackConn(c) {
		c.Disconnect()
		return
	}

	if _, err := c.Connect(); err != nil {
		log.WithError(err).Warn("connect failed")
		c.Disconnect()
		return
	}
	if err := c.StartMessageProcessing(s.dispatcher); err != nil {
		log.WithError(err).Warn("start processing failed")
		c.Disconnect()
		return
	}
	log.Debug("connection ready")
}

// beginDetecting registers a channel entering protocol detection. It reports
// false once the server is stopping, in which case the caller drops the
// channel instead.
func (s *Server) beginDetecting(raw net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.quit:
		return false
	default:
	}
	s.detecting[raw] = struct{}{}
	return true
}

func (s *Server) endDetecting(raw net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.detecting, raw)
}

// trackConn registers a ready connection in the connected set. It reports
// false once the server is stopping, so no connection outlives Stop.
func (s *Server) trackConn(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.quit:
		return false
	default:
	}
	c.SetOnClose(func() { s.dropConn(c) })
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) snapshotConns() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	return conns
}

func (s *Server) dropConn(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// isHTTPRequest reports whether the first bytes of a channel spell an HTTP
// method, which is how a WebSocket handshake announces itself against raw
// framed traffic.
func isHTTPRequest(prefix []byte) bool {
	for _, method := range [][]byte{
		[]byte("GET "), []byte("POST"), []byte("PUT "), []byte("HEAD"),
		[]byte("OPTI"), []byte("PATC"), []byte("DELE"), []byte("CONN"),
	} {
		if bytes.HasPrefix(prefix, method) {
			return true
		}
	}
	return false
}

// bufferedConn carries already-peeked bytes in front of the raw channel.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}
