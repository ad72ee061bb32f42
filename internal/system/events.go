package system

import (
	"time"

	"github.com/worldstream/engine/internal/event"
)

// EventSystem rotates the double-buffered bus and delivers last tick's
// lifecycle events. Running first in the tick gives consumers settled state:
// an EntityLoaded handler always sees the instance fully applied.
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() Phase { return PhaseEvents }

func (s *EventSystem) Update(_ time.Duration) {
	s.bus.Swap()
	s.bus.Dispatch()
}
