package processor

import (
	"log/slog"
	"sync"

	"github.com/vietddude/docforge/internal/core/domain"
)

// Listener receives engine events. Listeners must not block; slow consumers
// should hand off to their own goroutine.
type Listener func(domain.Event)

// Dispatcher fans events out to registered listeners. One listener's panic
// is isolated from the others.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[domain.EventKind][]Listener
	all       []Listener
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[domain.EventKind][]Listener)}
}

// On registers a listener for one event kind.
func (d *Dispatcher) On(kind domain.EventKind, l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[kind] = append(d.listeners[kind], l)
}

// OnAll registers a listener for every event kind.
func (d *Dispatcher) OnAll(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = append(d.all, l)
}

// Dispatch delivers the event to every matching listener.
func (d *Dispatcher) Dispatch(ev domain.Event) {
	d.mu.RLock()
	targets := make([]Listener, 0, len(d.all)+len(d.listeners[ev.Kind]))
	targets = append(targets, d.all...)
	targets = append(targets, d.listeners[ev.Kind]...)
	d.mu.RUnlock()

	for _, l := range targets {
		safeCall(l, ev)
	}
}

func safeCall(l Listener, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event listener panicked", "kind", ev.Kind, "panic", r)
		}
	}()
	l(ev)
}
