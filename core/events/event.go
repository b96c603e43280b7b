package events

import (
	"sync"

	"rwalend/core/types"
)

// Event represents a structured state change emitted by the protocol.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. audit sinks, the
// websocket stream).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds events emitted during a call until the call commits. Events
// of a failed call are dropped with Reset.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func (b *Buffer) Emit(e Event) {
	if e == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Flush forwards buffered events to dst in emission order and clears the buffer.
func (b *Buffer) Flush(dst Emitter) []Event {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if dst != nil {
		for _, e := range pending {
			dst.Emit(e)
		}
	}
	return pending
}

// Reset drops buffered events.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Fanout emits every event to each non-nil emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(e Event) {
	for _, em := range f {
		if em != nil {
			em.Emit(e)
		}
	}
}
