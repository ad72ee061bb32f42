// Package system orders the per-tick work of the streaming daemon. Each
// system runs once per tick in phase order, on the single update goroutine.
package system

import (
	"sort"
	"time"
)

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseEvents   Phase = iota // 0: deliver last tick's lifecycle events
	PhaseObserver              // 1: advance observers, diff requirement windows
	PhaseStream                // 2: run the scheduler within its budget
	PhasePersist               // 3: periodic autosave
)

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// Runner executes systems in phase order each tick.
type Runner struct {
	systems []System
	sorted  bool
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 8),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Tick(dt time.Duration) {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
	for _, s := range r.systems {
		s.Update(dt)
	}
}
