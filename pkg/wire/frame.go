// Package wire implements the frame format used by stream transports: one
// encoded message string per frame, carried as a 2-byte big-endian byte
// length followed by the string's UTF-8 bytes. Nothing else ever appears on
// the wire.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
)

// MaxFrameLen is the largest encoded string a single frame can carry, fixed
// by the 16-bit length prefix.
const MaxFrameLen = 1<<16 - 1

// ErrFrameTooLarge reports an encoded message that does not fit in one frame.
var ErrFrameTooLarge = errors.New("wire: frame exceeds 65535 bytes")

// WriteFrame writes s to w as one frame. It does not flush: callers writing
// through a buffered writer flush once per message.
func WriteFrame(w io.Writer, s string) error {
	if len(s) > MaxFrameLen {
		return ErrFrameTooLarge
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(s)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadFrame reads the next frame from r and returns the string it carries.
// A clean end of stream before any header byte is io.EOF; an end of stream
// inside a frame is io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) (string, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	n := int(binary.BigEndian.Uint16(hdr[:]))
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return string(buf), nil
}
