// Package message defines the unit of exchange between two connected
// endpoints and the stable textual codec that carries it.
//
// Every concrete message kind encodes to a deterministic string of the form
// "<kind>" or "<kind> <payload>" and decodes back from that string. The
// string form is the only representation that ever crosses a wire; how the
// payload is laid out inside the string is owned by each kind. The game
// layer registers its own kinds with Register; this package ships only the
// Disconnect control kind.
package message

import (
	"fmt"
	"strings"
)

// Message is one discrete unit of exchange between two endpoints.
//
// A message handed to a connection's Send may be read concurrently by the
// receiving endpoint's dispatch goroutine, so implementations must be
// immutable once constructed.
type Message interface {
	// Kind returns the registered kind token identifying the concrete type.
	// Kind tokens never contain spaces.
	Kind() string

	// EncodePayload returns the kind-specific payload portion of the
	// encoded string, or "" when the kind carries no payload.
	EncodePayload() string
}

// Encode renders m into its wire string. Decode(Encode(m)) yields a message
// equal to m in all observable fields for every registered kind.
func Encode(m Message) string {
	payload := m.EncodePayload()
	if payload == "" {
		return m.Kind()
	}
	return m.Kind() + " " + payload
}

// Decode reconstructs a message from its wire string.
//
// An unrecognized kind is not an error: Decode returns an *Unknown sentinel
// carrying the raw token and payload so a single unknown frame cannot kill a
// connection. A registered kind whose payload fails to parse is an error.
func Decode(s string) (Message, error) {
	if s == "" {
		return nil, fmt.Errorf("decode: empty message string")
	}
	kind, payload, _ := strings.Cut(s, " ")
	decode, ok := lookup(kind)
	if !ok {
		return &Unknown{kind: kind, payload: payload}, nil
	}
	m, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", kind, err)
	}
	return m, nil
}
