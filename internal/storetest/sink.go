package storetest

import (
	"context"
	"sync"

	"github.com/vitalink-health/telehealth/internal/events"
)

// SinkRecorder captures emitted events for assertions.
type SinkRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

// Emit records ev.
func (r *SinkRecorder) Emit(_ context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *SinkRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type, in emission order.
func (r *SinkRecorder) OfType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
