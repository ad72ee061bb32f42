package system

import (
	"time"

	"github.com/worldstream/engine/internal/streamer"
	"github.com/worldstream/engine/internal/world"
)

// PathObserver walks a waypoint loop at a fixed speed. The daemon uses these
// to exercise streaming without a real player; an embedding host would call
// Engine.UpdateObserver itself instead.
type PathObserver struct {
	ID        string
	Speed     float64 // world units per second
	Waypoints []world.Vec3
	Loop      bool

	pos  world.Vec3
	next int
	done bool
}

func NewPathObserver(id string, speed float64, waypoints []world.Vec3, loop bool) *PathObserver {
	po := &PathObserver{
		ID:        id,
		Speed:     speed,
		Waypoints: waypoints,
		Loop:      loop,
		next:      1,
	}
	if len(waypoints) > 0 {
		po.pos = waypoints[0]
	}
	if len(waypoints) < 2 {
		po.done = true
	}
	return po
}

// Position returns the observer's current interpolated position.
func (po *PathObserver) Position() world.Vec3 { return po.pos }

// advance moves the observer along its path and reports the new position.
func (po *PathObserver) advance(dt time.Duration) world.Vec3 {
	if po.done {
		return po.pos
	}
	remaining := po.Speed * dt.Seconds()
	for remaining > 0 {
		target := po.Waypoints[po.next]
		dist := po.pos.DistanceTo(target)
		if dist <= remaining {
			po.pos = target
			remaining -= dist
			po.next++
			if po.next >= len(po.Waypoints) {
				if !po.Loop {
					po.done = true
					return po.pos
				}
				po.next = 0
			}
			continue
		}
		t := remaining / dist
		d := target.Sub(po.pos)
		po.pos = world.Vec3{
			X: po.pos.X + d.X*t,
			Y: po.pos.Y + d.Y*t,
			Z: po.pos.Z + d.Z*t,
		}
		remaining = 0
	}
	return po.pos
}

// ObserverSystem advances scripted observers each tick and forwards their
// positions to the engine, gated by the minimum movement distance so a
// slow-drifting observer does not spam window recomputation.
type ObserverSystem struct {
	engine    *streamer.Engine
	observers []*PathObserver
	minMove   float64
	lastSent  map[string]world.Vec3
}

func NewObserverSystem(engine *streamer.Engine, observers []*PathObserver, minMove float64) *ObserverSystem {
	s := &ObserverSystem{
		engine:    engine,
		observers: observers,
		minMove:   minMove,
		lastSent:  make(map[string]world.Vec3, len(observers)),
	}
	// Initial registration is never gated.
	for _, po := range observers {
		s.engine.UpdateObserver(po.ID, po.Position())
		s.lastSent[po.ID] = po.Position()
	}
	return s
}

func (s *ObserverSystem) Phase() Phase { return PhaseObserver }

func (s *ObserverSystem) Update(dt time.Duration) {
	for _, po := range s.observers {
		pos := po.advance(dt)
		if pos.DistanceTo(s.lastSent[po.ID]) < s.minMove {
			continue
		}
		s.engine.UpdateObserver(po.ID, pos)
		s.lastSent[po.ID] = pos
	}
}
