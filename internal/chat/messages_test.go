package chat

import (
	"testing"

	"github.com/farsight-games/gamewire/pkg/message"
)

func TestMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  message.Message
	}{
		{"hello", &Hello{Name: "alice"}},
		{"say", &Say{Text: "good morning everyone"}},
		{"say empty", &Say{Text: ""}},
		{"leave", &Leave{}},
		{"chat", &Chat{Name: "bob", Text: "see you at eight"}},
		{"chat without text", &Chat{Name: "room"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := message.Encode(tt.msg)
			decoded, err := message.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", encoded, err)
			}

			switch want := tt.msg.(type) {
			case *Hello:
				got, ok := decoded.(*Hello)
				if !ok || got.Name != want.Name {
					t.Errorf("Decode(%q) = %#v, want %#v", encoded, decoded, want)
				}
			case *Say:
				got, ok := decoded.(*Say)
				if !ok || got.Text != want.Text {
					t.Errorf("Decode(%q) = %#v, want %#v", encoded, decoded, want)
				}
			case *Leave:
				if _, ok := decoded.(*Leave); !ok {
					t.Errorf("Decode(%q) = %#v, want %#v", encoded, decoded, want)
				}
			case *Chat:
				got, ok := decoded.(*Chat)
				if !ok || got.Name != want.Name || got.Text != want.Text {
					t.Errorf("Decode(%q) = %#v, want %#v", encoded, decoded, want)
				}
			}
		})
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"hello without name", "hello"},
		{"chat without speaker", "chat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := message.Decode(tt.encoded); err == nil {
				t.Errorf("Decode(%q) succeeded, want error", tt.encoded)
			}
		})
	}
}
