package chat

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/farsight-games/gamewire/pkg/conn"
	"github.com/farsight-games/gamewire/pkg/message"
)

// Room is the server-side dispatcher: it admits clients on their hello and
// relays their lines to every other member. One Room serves all transports.
type Room struct {
	log *logrus.Entry

	mu      sync.RWMutex
	members map[conn.Conn]string
}

var _ conn.Dispatcher = (*Room)(nil)

// NewRoom creates an empty room. A nil log falls back to the logrus
// standard logger.
func NewRoom(log *logrus.Logger) *Room {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Room{
		log:     log.WithField("component", "room"),
		members: make(map[conn.Conn]string),
	}
}

// DispatchFirst admits the client. Anything but a hello as the opening
// message gets the connection dropped.
func (r *Room) DispatchFirst(m message.Message, c conn.Conn) {
	hello, ok := m.(*Hello)
	if !ok {
		r.log.WithField("kind", m.Kind()).Warn("client did not introduce itself, dropping")
		c.Disconnect()
		return
	}

	c.SetAppData(hello.Name)
	r.mu.Lock()
	r.members[c] = hello.Name
	r.mu.Unlock()

	r.log.WithField("name", hello.Name).Info("client joined")
	r.relay(&Chat{Name: "room", Text: hello.Name + " joined"}, c)
}

// Dispatch relays a member's lines and handles their goodbye; other kinds
// are ignored.
func (r *Room) Dispatch(m message.Message, c conn.Conn) {
	switch msg := m.(type) {
	case *Say:
		name, _ := c.AppData().(string)
		r.relay(&Chat{Name: name, Text: msg.Text}, c)
	case *Leave:
		r.remove(c)
		c.Disconnect()
	default:
		r.log.WithField("kind", m.Kind()).Debug("ignoring message")
	}
}

// remove drops a member and announces the departure. A connection that was
// never admitted is ignored.
func (r *Room) remove(c conn.Conn) {
	r.mu.Lock()
	name, present := r.members[c]
	delete(r.members, c)
	r.mu.Unlock()
	if !present {
		return
	}
	r.log.WithField("name", name).Info("client left")
	r.relay(&Chat{Name: "room", Text: name + " left"}, c)
}

// MemberCount reports how many clients are in the room.
func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// relay sends m to every member except the origin connection. Members whose
// connection no longer accepts sends are dropped from the room.
func (r *Room) relay(m message.Message, origin conn.Conn) {
	r.mu.RLock()
	members := make([]conn.Conn, 0, len(r.members))
	for member := range r.members {
		if member != origin {
			members = append(members, member)
		}
	}
	r.mu.RUnlock()

	for _, member := range members {
		if err := member.Send(m); err != nil {
			name, _ := member.AppData().(string)
			r.log.WithField("name", name).WithError(err).Debug("dropping unreachable member")
			r.mu.Lock()
			delete(r.members, member)
			r.mu.Unlock()
		}
	}
}
