// Package bustest records bus traffic for tests.
package bustest

import (
	"sync"

	"github.com/normanking/talkinghead/internal/bus"
)

// Recorder collects every event published on a bus.
type Recorder struct {
	mu     sync.Mutex
	events []bus.Event
}

// NewRecorder subscribes a recorder to all event types on b.
func NewRecorder(b *bus.Bus) *Recorder {
	r := &Recorder{}
	b.SubscribeMultiple(bus.AllEventTypes, func(e bus.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bus.Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t bus.EventType) []bus.Event {
	var out []bus.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []bus.EventType {
	events := r.Events()
	out := make([]bus.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
