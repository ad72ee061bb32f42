package system

import (
	"time"

	"github.com/worldstream/engine/internal/scripting"
	"github.com/worldstream/engine/internal/streamer"
	"go.uber.org/zap"
)

// AutosaveSystem snapshots the world every N ticks. Phase 3 (Persist).
// Save failures are logged and retried next interval; in-memory state is
// unaffected since the snapshot writes to a temp file first.
type AutosaveSystem struct {
	engine    *streamer.Engine
	lua       *scripting.Engine
	path      string
	interval  int // 0 = disabled
	tickCount int
	log       *zap.Logger
}

func NewAutosaveSystem(engine *streamer.Engine, lua *scripting.Engine, path string, intervalTicks int, log *zap.Logger) *AutosaveSystem {
	return &AutosaveSystem{
		engine:   engine,
		lua:      lua,
		path:     path,
		interval: intervalTicks,
		log:      log,
	}
}

func (s *AutosaveSystem) Phase() Phase { return PhasePersist }

func (s *AutosaveSystem) Update(_ time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.Save()
}

// Save snapshots immediately, ignoring the interval. Called on shutdown.
func (s *AutosaveSystem) Save() {
	count, err := s.engine.Save(s.path)
	if err != nil {
		s.log.Error("autosave failed", zap.String("path", s.path), zap.Error(err))
		return
	}
	s.log.Info("world saved", zap.String("path", s.path), zap.Int("entities", count))
	s.lua.WorldSaved(s.path, count)
}
