// Package streamer ties the entity store, chunk index, requirement tracker,
// and scheduler into the world-streaming engine. All methods must be called
// from the host's single update goroutine.
package streamer

import (
	"fmt"
	"math"
	"time"

	"github.com/worldstream/engine/internal/data"
	"github.com/worldstream/engine/internal/event"
	"github.com/worldstream/engine/internal/instance"
	"github.com/worldstream/engine/internal/persist"
	"github.com/worldstream/engine/internal/world"
	"go.uber.org/zap"
)

// maxParentDepth bounds the recursive parent-chain load. The store forms a
// forest by construction; this is the backstop for corrupted snapshots.
const maxParentDepth = 64

// Config holds the streaming knobs the engine needs at construction.
type Config struct {
	LoadRange  int           // observer window radius, in chunks
	Budget     time.Duration // scheduler budget per tick
	TimeSliced bool          // false = operations execute synchronously on enqueue
}

// Stats is a point-in-time snapshot of engine state for logging.
type Stats struct {
	Entities       int
	Live           int
	PendingOps     int
	RequiredChunks int
	Observers      int
}

// Engine is the world-streaming core. It owns the live-instance cache and is
// the scheduler's executor: every operation it runs is revalidated against
// the store, index, and tracker immediately before acting, so operations made
// stale by intervening movement are silently dropped.
type Engine struct {
	grid     *world.Grid
	store    *world.Store
	index    *world.ChunkIndex
	tracker  *world.ChunkTracker
	sched    *Scheduler
	factory  instance.Factory
	registry *data.Registry
	bus      *event.Bus
	log      *zap.Logger

	live map[string]instance.Instance
}

func New(grid *world.Grid, store *world.Store, index *world.ChunkIndex,
	factory instance.Factory, registry *data.Registry, bus *event.Bus,
	log *zap.Logger, cfg Config) *Engine {

	en := &Engine{
		grid:     grid,
		store:    store,
		index:    index,
		factory:  factory,
		registry: registry,
		bus:      bus,
		log:      log,
		live:     make(map[string]instance.Instance),
	}
	en.sched = NewScheduler(cfg.Budget, cfg.TimeSliced, en, log)
	en.tracker = world.NewChunkTracker(grid, cfg.LoadRange, en.sched)
	return en
}

// Start pins the always-loaded chunk. Its entities load on the first ticks.
func (en *Engine) Start() {
	en.tracker.PinAlwaysLoaded()
}

// Tick processes queued operations within the configured budget.
func (en *Engine) Tick() {
	en.sched.Process()
}

// Settle drains the whole operation queue synchronously.
func (en *Engine) Settle() {
	en.sched.Drain()
}

// OnDrained registers a callback fired whenever the operation queue drains.
func (en *Engine) OnDrained(fn func()) {
	en.sched.OnDrained(fn)
}

// UpdateObserver registers or moves an observer and applies the requirement
// window diff. Hosts should gate calls by a minimum movement distance.
func (en *Engine) UpdateObserver(observerID string, pos world.Vec3) {
	en.tracker.UpdateObserver(observerID, pos)
}

// RemoveObserver releases all chunks the observer required. Chunks still
// required by other observers stay loaded.
func (en *Engine) RemoveObserver(observerID string) {
	en.tracker.RemoveObserver(observerID)
}

// AddEntity registers a new record, assigning a fresh UID when none is set.
// If the entity's chunk is currently required it is scheduled to load.
// Returns the UID actually used (duplicates are renamed).
func (en *Engine) AddEntity(e *world.Entity) string {
	if e.UID == "" {
		e.UID = world.NewUID()
	}
	if e.Properties == nil {
		e.Properties = map[string]any{}
	}
	en.refreshSize(e)
	uid := en.store.Add(e)
	key := en.index.Insert(uid, e.Position, e.Size)
	if en.tracker.Required(key) {
		en.sched.QueueEntityLoad(uid)
	}
	return uid
}

// RemoveEntity deletes a record permanently, destroying its instance if one
// is live. Unloading never does this; only explicit removal.
func (en *Engine) RemoveEntity(uid string) bool {
	e := en.store.Get(uid)
	if e == nil {
		return false
	}
	if inst, ok := en.live[uid]; ok {
		en.factory.Destroy(inst)
		delete(en.live, uid)
		en.bus.Emit(event.EntityUnloaded{UID: uid, Source: e.Source})
	}
	en.index.Remove(uid, e.Position, e.Size)
	en.store.Remove(uid)
	return true
}

// SetSource changes what an entity instantiates (a type change). Size is
// recomputed, the entity is rebucketed, and a live instance is replaced
// through the normal schedule-and-revalidate path.
func (en *Engine) SetSource(uid, source string) error {
	e := en.store.Get(uid)
	if e == nil {
		return fmt.Errorf("set source: unknown entity %s", uid)
	}
	oldPos, oldSize, oldSource := e.Position, e.Size, e.Source
	e.Source = source
	en.refreshSize(e)
	en.index.Remove(uid, oldPos, oldSize)
	en.index.Insert(uid, e.Position, e.Size)

	if inst, ok := en.live[uid]; ok {
		en.factory.Destroy(inst)
		delete(en.live, uid)
		en.bus.Emit(event.EntityUnloaded{UID: uid, Source: oldSource})
	}
	en.reconcile(uid, e)
	return nil
}

// SetTransform moves or resizes an entity through the record, rebucketing it
// and reconciling live state: an entity moved into a required chunk loads, a
// live one moved out of every window unloads.
func (en *Engine) SetTransform(uid string, pos, rot, scale world.Vec3) error {
	e := en.store.Get(uid)
	if e == nil {
		return fmt.Errorf("set transform: unknown entity %s", uid)
	}
	oldPos, oldSize := e.Position, e.Size
	e.Position, e.Rotation, e.Scale = pos, rot, scale
	en.refreshSize(e)
	en.rebucket(e, oldPos, oldSize)
	if inst, ok := en.live[uid]; ok {
		inst.SetTransform(pos, rot, scale)
	}
	en.reconcile(uid, e)
	return nil
}

// Instance returns the live instance for a UID, or nil when unloaded.
func (en *Engine) Instance(uid string) instance.Instance {
	return en.live[uid]
}

// Store exposes the entity store for read-side consumers.
func (en *Engine) Store() *world.Store { return en.store }

// Tracker exposes requirement state for read-side consumers (visibility).
func (en *Engine) Tracker() *world.ChunkTracker { return en.tracker }

func (en *Engine) Stats() Stats {
	return Stats{
		Entities:       en.store.Len(),
		Live:           len(en.live),
		PendingOps:     en.sched.Pending(),
		RequiredChunks: en.tracker.RequiredCount(),
		Observers:      en.tracker.ObserverCount(),
	}
}

// ── scheduler executor ─────────────────────────────────────────────

// LoadChunk expands a chunk load into per-entity loads, unless the chunk
// stopped being required while the operation was queued.
func (en *Engine) LoadChunk(key world.ChunkKey) {
	if !en.tracker.Required(key) {
		return
	}
	for _, uid := range en.index.EntitiesIn(key) {
		en.sched.QueueEntityLoad(uid)
	}
	en.bus.Emit(event.ChunkLoaded{Key: key})
}

// UnloadChunk expands a chunk unload into per-entity unloads, unless the
// chunk became required again while the operation was queued.
func (en *Engine) UnloadChunk(key world.ChunkKey) {
	if en.tracker.Required(key) {
		return
	}
	for _, uid := range en.index.EntitiesIn(key) {
		en.sched.QueueEntityUnload(uid)
	}
	en.bus.Emit(event.ChunkUnloaded{Key: key})
}

// LoadEntity instantiates one entity if its desired chunk is still required
// and it is not already live.
func (en *Engine) LoadEntity(uid string) {
	e := en.store.Get(uid)
	if e == nil {
		return
	}
	if _, ok := en.live[uid]; ok {
		return
	}
	key := en.grid.KeyFor(e.Position, e.Size)
	if !en.tracker.Required(key) {
		return // stale: observer moved away before we got here
	}
	en.instantiate(e, 0)
}

// UnloadEntity destroys one entity's instance if its chunk is no longer
// required, writing the live transform back into the record first.
func (en *Engine) UnloadEntity(uid string) {
	e := en.store.Get(uid)
	inst, ok := en.live[uid]
	if e == nil || !ok {
		return
	}
	key := en.grid.KeyFor(e.Position, e.Size)
	if en.tracker.Required(key) {
		return // stale: chunk became required again
	}
	en.writeBack(e, inst)
	if en.tracker.Required(en.grid.KeyFor(e.Position, e.Size)) {
		return // the host moved the instance into a chunk still required
	}
	en.factory.Destroy(inst)
	delete(en.live, uid)
	en.bus.Emit(event.EntityUnloaded{UID: uid, Source: e.Source})
}

// ── internals ──────────────────────────────────────────────────────

// instantiate creates the instance, loading the parent chain depth-first
// first so a child is never orphaned under the world root. A parent record
// missing from the store attaches the child to the root instead.
func (en *Engine) instantiate(e *world.Entity, depth int) bool {
	if depth > maxParentDepth {
		en.log.Warn("parent chain too deep, attaching to root", zap.String("uid", e.UID))
	} else if e.ParentUID != "" {
		if parent := en.store.Get(e.ParentUID); parent != nil {
			if _, ok := en.live[parent.UID]; !ok {
				en.instantiate(parent, depth+1)
			}
		} else {
			en.log.Debug("parent record missing, attaching to root",
				zap.String("uid", e.UID),
				zap.String("parent_uid", e.ParentUID))
		}
	}

	inst, err := en.factory.Create(e.Source)
	if err != nil {
		// Abandoned: the entity stays resident as metadata only.
		en.log.Warn("load abandoned",
			zap.String("uid", e.UID),
			zap.String("source", e.Source),
			zap.Error(err))
		return false
	}
	inst.ApplyProperties(e.Properties)
	inst.SetTransform(e.Position, e.Rotation, e.Scale)
	en.live[e.UID] = inst
	en.bus.Emit(event.EntityLoaded{UID: e.UID, Source: e.Source, Position: e.Position})
	return true
}

// writeBack snapshots a live instance into its record: transform, recomputed
// size, property diff against the type baseline, and a rebucket when the
// placement moved materially.
func (en *Engine) writeBack(e *world.Entity, inst instance.Instance) {
	oldPos, oldSize := e.Position, e.Size
	e.Position, e.Rotation, e.Scale = inst.Transform()
	en.refreshSize(e)
	en.rebucket(e, oldPos, oldSize)
	e.Properties = persist.DiffProperties(inst.Properties(), en.registry.Baseline(e.Source))
}

// reconcile queues whatever operation brings an entity's live state back in
// line with its chunk's requirement after a placement or type change.
func (en *Engine) reconcile(uid string, e *world.Entity) {
	key := en.grid.KeyFor(e.Position, e.Size)
	_, isLive := en.live[uid]
	switch {
	case en.tracker.Required(key) && !isLive:
		en.sched.QueueEntityLoad(uid)
	case !en.tracker.Required(key) && isLive:
		en.sched.QueueEntityUnload(uid)
	}
}

func (en *Engine) rebucket(e *world.Entity, oldPos world.Vec3, oldSize float64) {
	if oldPos.DistanceTo(e.Position) <= world.Epsilon && math.Abs(oldSize-e.Size) <= world.Epsilon {
		return
	}
	en.index.Remove(e.UID, oldPos, oldSize)
	en.index.Insert(e.UID, e.Position, e.Size)
}

// refreshSize recomputes the bounding size from the registry extent. Sources
// the registry does not know keep their stored size; there is nothing to
// derive it from.
func (en *Engine) refreshSize(e *world.Entity) {
	if en.registry.Known(e.Source) {
		e.RefreshSize(en.registry.Extent)
	}
}

// ── persistence ────────────────────────────────────────────────────

// Save settles the operation queue, refreshes every record from its live
// instance, and writes the snapshot. Returns the number of records written.
func (en *Engine) Save(path string) (int, error) {
	en.sched.Drain()
	for uid, inst := range en.live {
		if e := en.store.Get(uid); e != nil {
			en.writeBack(e, inst)
		}
	}
	if err := persist.Save(path, en.store, en.log); err != nil {
		return 0, err
	}
	return en.store.Len(), nil
}

// LoadWorld replaces the world from a snapshot. On read failure the
// in-memory state is left untouched. Entities in currently required chunks
// are scheduled to load.
func (en *Engine) LoadWorld(path string) (int, error) {
	records, err := persist.Load(path, en.log)
	if err != nil {
		return 0, err
	}

	// Replace: destroy live instances, reset store and index.
	for uid, inst := range en.live {
		if e := en.store.Get(uid); e != nil {
			en.bus.Emit(event.EntityUnloaded{UID: uid, Source: e.Source})
		}
		en.factory.Destroy(inst)
	}
	en.live = make(map[string]instance.Instance)
	en.store.Reset()
	en.index.Reset()

	for _, e := range records {
		en.refreshSize(e)
		uid := en.store.Add(e)
		key := en.index.Insert(uid, e.Position, e.Size)
		if en.tracker.Required(key) {
			en.sched.QueueEntityLoad(uid)
		}
	}
	return len(records), nil
}
