package system

import (
	"time"

	"github.com/worldstream/engine/internal/streamer"
)

// StreamSystem runs the scheduler's budgeted pass each tick.
type StreamSystem struct {
	engine *streamer.Engine
}

func NewStreamSystem(engine *streamer.Engine) *StreamSystem {
	return &StreamSystem{engine: engine}
}

func (s *StreamSystem) Phase() Phase { return PhaseStream }

func (s *StreamSystem) Update(_ time.Duration) {
	s.engine.Tick()
}
