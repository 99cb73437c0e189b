package events

import "sync"

// Event is the wire representation of a structured state change, consumed by
// the gateway event feed and external indexers.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Typed is implemented by every domain event and renders the wire form.
type Typed interface {
	EventType() string
	Event() *Event
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(Typed)
}

// NoopEmitter satisfies Emitter while discarding all events. Components take
// it as the default so event wiring stays optional.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Typed) {}

// DefaultRecorderCapacity bounds a NewRecorder-built feed when no explicit
// capacity is given.
const DefaultRecorderCapacity = 1024

// Recorder is an in-memory emitter retaining the most recent events, serving
// the gateway event feed and tests asserting on emitted sequences. The zero
// value is unbounded and single-use; long-lived feeds go through NewRecorder
// so old events are discarded.
type Recorder struct {
	mu       sync.Mutex
	capacity int
	events   []*Event
}

// NewRecorder builds a bounded recorder keeping the latest capacity events;
// capacity <= 0 selects DefaultRecorderCapacity.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultRecorderCapacity
	}
	return &Recorder{capacity: capacity}
}

func (r *Recorder) Emit(ev Typed) {
	if r == nil || ev == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev.Event())
	if r.capacity > 0 && len(r.events) > r.capacity {
		trimmed := make([]*Event, r.capacity)
		copy(trimmed, r.events[len(r.events)-r.capacity:])
		r.events = trimmed
	}
}

// Events returns a snapshot of the retained events, oldest first.
func (r *Recorder) Events() []*Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}
