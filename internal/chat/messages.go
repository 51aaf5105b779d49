// Package chat is the demo application layer riding on the connection
// contract: one room where clients introduce themselves with a hello, say
// lines, and receive everyone else's lines as chat messages.
package chat

import (
	"fmt"
	"strings"

	"github.com/farsight-games/gamewire/pkg/message"
)

// Message kinds exchanged by the demo. Registering them here means any
// binary that imports this package can decode them.
const (
	KindHello = "hello"
	KindSay   = "say"
	KindLeave = "leave"
	KindChat  = "chat"
)

func init() {
	message.Register(KindHello, decodeHello)
	message.Register(KindSay, decodeSay)
	message.Register(KindLeave, decodeLeave)
	message.Register(KindChat, decodeChat)
}

// Hello identifies a joining client. It must be the first message a client
// sends.
type Hello struct {
	Name string
}

func (h *Hello) Kind() string          { return KindHello }
func (h *Hello) EncodePayload() string { return h.Name }

func decodeHello(payload string) (message.Message, error) {
	if payload == "" {
		return nil, fmt.Errorf("hello without a name")
	}
	return &Hello{Name: payload}, nil
}

// Say carries one line from a client to the room.
type Say struct {
	Text string
}

func (s *Say) Kind() string          { return KindSay }
func (s *Say) EncodePayload() string { return s.Text }

func decodeSay(payload string) (message.Message, error) {
	return &Say{Text: payload}, nil
}

// Leave announces a client's departure. Clients send it right before
// disconnecting; the room attributes it using the name recorded at hello.
type Leave struct{}

func (*Leave) Kind() string          { return KindLeave }
func (*Leave) EncodePayload() string { return "" }

func decodeLeave(string) (message.Message, error) {
	return &Leave{}, nil
}

// Chat is a line relayed by the room to clients, attributed to its speaker.
// The name is a single token; everything after it is the text.
type Chat struct {
	Name string
	Text string
}

func (c *Chat) Kind() string { return KindChat }

func (c *Chat) EncodePayload() string {
	if c.Text == "" {
		return c.Name
	}
	return c.Name + " " + c.Text
}

func decodeChat(payload string) (message.Message, error) {
	if payload == "" {
		return nil, fmt.Errorf("chat without a speaker")
	}
	name, text, _ := strings.Cut(payload, " ")
	return &Chat{Name: name, Text: text}, nil
}
