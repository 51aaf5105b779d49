package message

import (
	"fmt"
	"strings"
	"sync"
)

// DecodeFunc parses the payload portion of an encoded string back into a
// concrete message. The payload excludes the kind token and the separating
// space; it is "" for kinds that encode without a payload.
type DecodeFunc func(payload string) (Message, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]DecodeFunc{
		KindDisconnect: decodeDisconnect,
	}
)

// Register makes a message kind known to Decode. It is intended to be called
// from init funcs of the packages that define concrete kinds.
//
// Register panics if the kind token is empty, contains a space, is already
// registered, or if decode is nil: all of these are programming errors that
// would otherwise surface as silently dropped frames.
func Register(kind string, decode DecodeFunc) {
	if kind == "" || strings.Contains(kind, " ") {
		panic(fmt.Sprintf("message: invalid kind token %q", kind))
	}
	if decode == nil {
		panic(fmt.Sprintf("message: nil decode func for kind %q", kind))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("message: kind %q registered twice", kind))
	}
	registry[kind] = decode
}

// Registered reports whether a kind token has a registered decoder.
func Registered(kind string) bool {
	_, ok := lookup(kind)
	return ok
}

func lookup(kind string) (DecodeFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	decode, ok := registry[kind]
	return decode, ok
}
