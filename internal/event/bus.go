// Package event carries streaming lifecycle notifications on a
// double-buffered bus: events emitted during tick N are delivered at the
// start of tick N+1, after the instances they describe have settled.
package event

import "github.com/worldstream/engine/internal/world"

// Event is one streaming lifecycle notification.
type Event interface {
	event()
}

// EntityLoaded fires after an entity was instantiated and its transform and
// properties applied.
type EntityLoaded struct {
	UID      string
	Source   string
	Position world.Vec3
}

// EntityUnloaded fires after an entity's instance was destroyed, with its
// transform written back into the record.
type EntityUnloaded struct {
	UID    string
	Source string
}

// ChunkLoaded fires when a chunk's load operation was expanded into entity
// loads.
type ChunkLoaded struct {
	Key world.ChunkKey
}

// ChunkUnloaded fires when a chunk's unload operation was expanded into
// entity unloads.
type ChunkUnloaded struct {
	Key world.ChunkKey
}

func (EntityLoaded) event()   {}
func (EntityUnloaded) event() {}
func (ChunkLoaded) event()    {}
func (ChunkUnloaded) event()  {}

// Bus is double-buffered: Emit appends to the back buffer, Swap rotates the
// buffers at tick start, Dispatch delivers the front buffer. Single-goroutine
// access only (engine tick loop).
type Bus struct {
	front    []Event
	back     []Event
	handlers []func(Event)
}

func NewBus() *Bus {
	return &Bus{}
}

// Emit queues an event for delivery next tick.
func (b *Bus) Emit(ev Event) {
	b.back = append(b.back, ev)
}

// Subscribe registers a handler invoked for every dispatched event. Handlers
// type-switch on the events they care about.
func (b *Bus) Subscribe(fn func(Event)) {
	b.handlers = append(b.handlers, fn)
}

// Swap rotates back→front and clears the new back buffer. Called once at
// tick start.
func (b *Bus) Swap() {
	b.front, b.back = b.back, b.front[:0]
}

// Dispatch delivers all front-buffer events to every handler.
func (b *Bus) Dispatch() {
	for _, ev := range b.front {
		for _, h := range b.handlers {
			h(ev)
		}
	}
}

// Pending returns the number of events waiting in the back buffer.
func (b *Bus) Pending() int {
	return len(b.back)
}
