// Package mem implements the in-process transport: paired connections that
// exchange messages through buffered queues inside one address space.
// Endpoints rendezvous through a Registry, which maps listener names to
// listeners the way a network maps addresses to sockets.
package mem

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/farsight-games/gamewire/pkg/conn"
)

// Registry maps listener names to live listeners. It is safe for concurrent
// use. Pass one Registry to every endpoint that should be able to reach the
// others; independent registries are fully isolated.
type Registry struct {
	log *logrus.Logger

	mu        sync.RWMutex
	listeners map[string]*Listener
}

// NewRegistry creates an empty registry. A nil log falls back to the logrus
// standard logger.
func NewRegistry(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		log:       log,
		listeners: make(map[string]*Listener),
	}
}

// Listen registers a listener under name and returns it. It fails if the
// name is already taken.
func (r *Registry) Listen(name string, opts ListenerOpts) (*Listener, error) {
	if name == "" {
		return nil, fmt.Errorf("mem: listener name must not be empty")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("mem: listener %q needs a dispatcher for accepted peers", name)
	}
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	l := &Listener{
		name:       name,
		reg:        r,
		log:        r.log.WithFields(logrus.Fields{"transport": "mem", "listener": name}),
		dispatcher: opts.Dispatcher,
		pending:    make(chan *pendingEntry, capacity),
		quit:       make(chan struct{}),
		connected:  make(map[*Conn]struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.listeners[name]; exists {
		return nil, fmt.Errorf("mem: listener %q already registered", name)
	}
	r.listeners[name] = l
	l.log.Debug("listener registered")
	return l, nil
}

// Lookup returns the listener registered under name, if any.
func (r *Registry) Lookup(name string) (*Listener, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.listeners[name]
	return l, ok
}

// Remove unregisters name. Connect attempts against the name fail afterwards;
// the listener itself and its established connections are left untouched.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, name)
}

// Dial connects to the listener registered under name. It fails immediately
// with ErrConnectRefused when the name is unknown, the accept queue is full,
// or the listener has stopped accepting; otherwise it blocks until the server
// side accepts the connection or ctx is cancelled.
//
// The returned connection is accepted but not yet connected: the caller still
// runs Connect and StartMessageProcessing on it.
func (r *Registry) Dial(ctx context.Context, name string) (*Conn, error) {
	l, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: no listener %q", conn.ErrConnectRefused, name)
	}
	return l.dial(ctx)
}
