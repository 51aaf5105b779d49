package message

// KindDisconnect is the kind token of the Disconnect control message.
const KindDisconnect = "disconnect"

// Disconnect tells the peer that the sending side is ending the session.
// It is an ordinary encoded message on the wire; the connection layer
// consumes it itself and never forwards it to a dispatcher.
type Disconnect struct{}

// Kind implements Message.
func (*Disconnect) Kind() string { return KindDisconnect }

// EncodePayload implements Message.
func (*Disconnect) EncodePayload() string { return "" }

func decodeDisconnect(string) (Message, error) {
	return &Disconnect{}, nil
}

// Unknown is the sentinel returned by Decode for an unrecognized kind token.
// It preserves the raw token and payload for diagnostics and re-encodes to
// the original string, but it is never delivered to a dispatcher: the
// dispatch loop drops it after logging.
type Unknown struct {
	kind    string
	payload string
}

// Kind implements Message with the unrecognized token as parsed.
func (u *Unknown) Kind() string { return u.kind }

// EncodePayload implements Message with the payload as parsed.
func (u *Unknown) EncodePayload() string { return u.payload }
