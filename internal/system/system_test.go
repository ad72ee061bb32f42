package system

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/worldstream/engine/internal/data"
	"github.com/worldstream/engine/internal/event"
	"github.com/worldstream/engine/internal/instance"
	"github.com/worldstream/engine/internal/streamer"
	"github.com/worldstream/engine/internal/world"
)

type namedSystem struct {
	phase Phase
	log   *[]string
	name  string
}

func (n *namedSystem) Phase() Phase { return n.phase }
func (n *namedSystem) Update(time.Duration) {
	*n.log = append(*n.log, n.name)
}

func TestRunnerPhaseOrder(t *testing.T) {
	var log []string
	r := NewRunner()
	// Registered out of order; ticks in phase order.
	r.Register(&namedSystem{phase: PhasePersist, log: &log, name: "persist"})
	r.Register(&namedSystem{phase: PhaseEvents, log: &log, name: "events"})
	r.Register(&namedSystem{phase: PhaseStream, log: &log, name: "stream"})
	r.Register(&namedSystem{phase: PhaseObserver, log: &log, name: "observer"})

	r.Tick(50 * time.Millisecond)
	require.Equal(t, []string{"events", "observer", "stream", "persist"}, log)

	log = log[:0]
	r.Tick(50 * time.Millisecond)
	require.Equal(t, []string{"events", "observer", "stream", "persist"}, log)
}

func TestPathObserverAdvance(t *testing.T) {
	po := NewPathObserver("w", 10, []world.Vec3{{X: 0}, {X: 100}}, false)
	require.Equal(t, world.Vec3{}, po.Position())

	pos := po.advance(time.Second)
	require.True(t, pos.AlmostEqual(world.Vec3{X: 10}))

	// Passing the last waypoint without loop stops there.
	pos = po.advance(20 * time.Second)
	require.True(t, pos.AlmostEqual(world.Vec3{X: 100}))
	pos = po.advance(time.Second)
	require.True(t, pos.AlmostEqual(world.Vec3{X: 100}))
}

func TestPathObserverLoop(t *testing.T) {
	po := NewPathObserver("w", 10, []world.Vec3{{X: 0}, {X: 20}}, true)

	// 0 -> 20 -> back toward 0: 30 units total.
	pos := po.advance(3 * time.Second)
	require.True(t, pos.AlmostEqual(world.Vec3{X: 10}))
}

func TestPathObserverSingleWaypoint(t *testing.T) {
	po := NewPathObserver("w", 10, []world.Vec3{{X: 5}}, true)
	require.True(t, po.advance(time.Second).AlmostEqual(world.Vec3{X: 5}))
}

func newStreamEnv(t *testing.T) (*streamer.Engine, *event.Bus) {
	t.Helper()
	grid, err := world.NewGrid([]float64{1, 4, 16}, []float64{8, 16, 64})
	require.NoError(t, err)
	reg := data.NewRegistry()
	reg.Register(data.TypeDef{Source: "rock", Extent: 0.5})
	bus := event.NewBus()
	en := streamer.New(grid, world.NewStore(), world.NewChunkIndex(grid),
		instance.NewSimFactory(reg), reg, bus, zap.NewNop(),
		streamer.Config{LoadRange: 1, Budget: time.Second, TimeSliced: true})
	en.Start()
	return en, bus
}

func TestObserverSystemMinMoveGate(t *testing.T) {
	en, _ := newStreamEnv(t)
	uid := en.AddEntity(&world.Entity{
		UID: "r1", Source: "rock",
		Position: world.Vec3{X: 9},
		Scale:    world.Vec3{X: 1, Y: 1, Z: 1},
	})

	po := NewPathObserver("w", 1, []world.Vec3{{X: 0}, {X: 100}}, false)
	sys := NewObserverSystem(en, []*PathObserver{po}, 2.0)

	// Initial registration happened ungated in the constructor.
	en.Settle()
	require.NotNil(t, en.Instance(uid))
	require.Equal(t, 1, en.Stats().Observers)

	// A 1-unit drift stays under the gate: no new requirement work.
	sys.Update(time.Second)
	require.Equal(t, 0, en.Stats().PendingOps)

	// Another second crosses the threshold and the update goes through.
	sys.Update(time.Second)
	require.True(t, po.Position().AlmostEqual(world.Vec3{X: 2}))
}

func TestObserverSystemDrivesUnload(t *testing.T) {
	en, _ := newStreamEnv(t)
	uid := en.AddEntity(&world.Entity{
		UID: "r1", Source: "rock",
		Position: world.Vec3{X: 9},
		Scale:    world.Vec3{X: 1, Y: 1, Z: 1},
	})

	po := NewPathObserver("w", 50, []world.Vec3{{X: 0}, {X: 500}}, false)
	sys := NewObserverSystem(en, []*PathObserver{po}, 2.0)
	en.Settle()
	require.NotNil(t, en.Instance(uid))

	// Walk far past the entity's window.
	for i := 0; i < 10; i++ {
		sys.Update(time.Second)
	}
	en.Settle()
	require.Nil(t, en.Instance(uid))
}

func TestEventSystemDeliversNextTick(t *testing.T) {
	_, bus := newStreamEnv(t)
	var seen []event.Event
	bus.Subscribe(func(ev event.Event) { seen = append(seen, ev) })
	sys := NewEventSystem(bus)

	bus.Emit(event.EntityLoaded{UID: "a"})
	require.Empty(t, seen)

	sys.Update(0)
	require.Len(t, seen, 1)

	// Delivered once, not redelivered.
	sys.Update(0)
	require.Len(t, seen, 1)
}

func TestAutosaveInterval(t *testing.T) {
	en, _ := newStreamEnv(t)
	en.AddEntity(&world.Entity{
		UID: "r1", Source: "rock",
		Position: world.Vec3{X: 9},
		Scale:    world.Vec3{X: 1, Y: 1, Z: 1},
	})

	path := filepath.Join(t.TempDir(), "world.save")
	sys := NewAutosaveSystem(en, nil, path, 3, zap.NewNop())

	sys.Update(0)
	sys.Update(0)
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	sys.Update(0)
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestAutosaveDisabled(t *testing.T) {
	en, _ := newStreamEnv(t)
	path := filepath.Join(t.TempDir(), "world.save")
	sys := NewAutosaveSystem(en, nil, path, 0, zap.NewNop())

	for i := 0; i < 5; i++ {
		sys.Update(0)
	}
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
