package events

import (
	"sync"

	"savingsbank/core/types"
)

// Event represents a structured state change emitted by an engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. audit log, streams).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Typed adapts a types.Event to the Event interface.
type Typed struct {
	evt *types.Event
}

// Wrap returns the Event form of the payload.
func Wrap(evt *types.Event) Typed { return Typed{evt: evt} }

func (t Typed) EventType() string {
	if t.evt == nil {
		return ""
	}
	return t.evt.Type
}

// Payload exposes the underlying attribute payload.
func (t Typed) Payload() *types.Event { return t.evt }

// PayloadOf extracts the attribute payload from any event emitted by the
// native engines. The second return is false for foreign event types.
func PayloadOf(evt Event) (*types.Event, bool) {
	if typed, ok := evt.(Typed); ok && typed.evt != nil {
		return typed.evt, true
	}
	return nil, false
}

// Buffer holds events until the surrounding operation commits. Events of a
// failed operation are dropped with Reset and never reach subscribers.
type Buffer struct {
	mu      sync.Mutex
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, evt)
	b.mu.Unlock()
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Truncate drops events recorded after the supplied mark.
func (b *Buffer) Truncate(mark int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mark >= 0 && mark < len(b.pending) {
		b.pending = b.pending[:mark]
	}
}

// Reset discards all buffered events.
func (b *Buffer) Reset() { b.Truncate(0) }

// Flush forwards the buffered events in order and clears the buffer.
func (b *Buffer) Flush(to Emitter) {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()
	if to == nil {
		return
	}
	for _, evt := range pending {
		to.Emit(evt)
	}
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.pending))
	copy(out, b.pending)
	return out
}

// Fanout delivers each event to every non-nil emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
