// Package client is the session facade the interactive demo binaries use:
// dial a room server over a raw framed channel or a WebSocket, introduce
// yourself, and consume the room's traffic through a channel.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/farsight-games/gamewire/internal/chat"
	"github.com/farsight-games/gamewire/pkg/conn"
	"github.com/farsight-games/gamewire/pkg/conn/stream"
	"github.com/farsight-games/gamewire/pkg/message"
)

// lineDepth bounds the session's line buffer. A consumer that falls this far
// behind loses lines rather than stalling the connection's dispatch
// goroutine.
const lineDepth = 64

// Opts configures a Session.
type Opts struct {
	// WebSocket dials a WebSocket session instead of a raw framed channel.
	WebSocket bool

	// Log is the diagnostics sink; nil falls back to the logrus standard
	// logger.
	Log *logrus.Logger
}

// Session is one client's membership in a room: a stream connection plus the
// hello/leave bookkeeping around it. A Session connects once; to reconnect,
// create a new one.
type Session struct {
	addr      string
	name      string
	websocket bool
	log       *logrus.Logger

	lines chan *chat.Chat
	done  chan struct{}

	mu      sync.RWMutex
	started bool
	conn    *stream.Conn
}

// New creates a session that will connect to addr and join the room as name.
func New(addr, name string, opts Opts) *Session {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		addr:      addr,
		name:      name,
		websocket: opts.WebSocket,
		log:       log,
		lines:     make(chan *chat.Chat, lineDepth),
		done:      make(chan struct{}),
	}
}

// Connect dials the server, starts message processing and introduces the
// session to the room with its hello.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("client: %w", conn.ErrAlreadyConnected)
	}
	s.started = true
	s.mu.Unlock()

	var (
		c   *stream.Conn
		err error
	)
	if s.websocket {
		c, err = stream.DialWebSocket(ctx, "ws://"+s.addr+"/", s.log)
	} else {
		c, err = stream.DialContext(ctx, s.addr, s.log)
	}
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}

	c.SetOnClose(func() { close(s.done) })
	if _, err := c.Connect(); err != nil {
		c.Disconnect()
		return fmt.Errorf("client: %w", err)
	}
	if err := c.StartMessageProcessing(funnel{s}); err != nil {
		c.Disconnect()
		return fmt.Errorf("client: %w", err)
	}
	if err := c.Send(&chat.Hello{Name: s.name}); err != nil {
		c.Disconnect()
		return fmt.Errorf("client: join as %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"addr": s.addr, "name": s.name}).Debug("session joined")
	return nil
}

// IsConnected reports whether the session still has a live connection.
func (s *Session) IsConnected() bool {
	select {
	case <-s.done:
		return false
	default:
	}
	return s.current() != nil
}

// Say sends one line to the room.
func (s *Session) Say(text string) error {
	c := s.current()
	if c == nil {
		return fmt.Errorf("client: %w", conn.ErrNotConnected)
	}
	return c.Send(&chat.Say{Text: text})
}

// Leave announces the departure to the room, which answers by closing the
// connection from its side.
func (s *Session) Leave() error {
	c := s.current()
	if c == nil {
		return fmt.Errorf("client: %w", conn.ErrNotConnected)
	}
	return c.Send(&chat.Leave{})
}

// Lines returns the room traffic addressed to this session. Lines stop
// arriving once Done is closed.
func (s *Session) Lines() <-chan *chat.Chat { return s.lines }

// Done is closed when the connection has fully closed, whether through
// Disconnect or because the server went away.
func (s *Session) Done() <-chan struct{} { return s.done }

// Disconnect ends the session. Calling it again is a no-op.
func (s *Session) Disconnect() {
	if c := s.current(); c != nil {
		c.Disconnect()
	}
}

func (s *Session) current() *stream.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// funnel adapts the dispatcher callbacks to the session's line channel. The
// room treats a client's inbound traffic uniformly, so the first message
// funnels like any other.
type funnel struct{ s *Session }

func (f funnel) DispatchFirst(m message.Message, _ conn.Conn) { f.push(m) }

func (f funnel) Dispatch(m message.Message, _ conn.Conn) { f.push(m) }

// push runs on the connection's dispatch goroutine and must return promptly,
// so a full buffer drops the line instead of blocking.
func (f funnel) push(m message.Message) {
	line, ok := m.(*chat.Chat)
	if !ok {
		f.s.log.WithField("kind", m.Kind()).Debug("ignoring message")
		return
	}
	select {
	case f.s.lines <- line:
	default:
		f.s.log.Warn("line buffer full, dropping")
	}
}
