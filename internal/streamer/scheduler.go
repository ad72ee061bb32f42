package streamer

import (
	"time"

	"github.com/worldstream/engine/internal/world"
	"go.uber.org/zap"
)

// Action is what a pending operation will do to its target.
type Action uint8

const (
	ActionLoad Action = iota + 1
	ActionUnload
)

func (a Action) String() string {
	if a == ActionLoad {
		return "load"
	}
	return "unload"
}

// opTarget is either an entity (uid set) or a chunk (uid empty).
type opTarget struct {
	uid   string
	chunk world.ChunkKey
}

type pendingOp struct {
	target     opTarget
	action     Action
	enqueuedAt time.Time
}

// Executor performs the actual load/unload work. Every method revalidates
// against ground truth before acting; the scheduler only orders and paces.
type Executor interface {
	LoadChunk(key world.ChunkKey)
	UnloadChunk(key world.ChunkKey)
	LoadEntity(uid string)
	UnloadEntity(uid string)
}

// Scheduler is the time-sliced operation queue. Operations are popped FIFO
// each tick until the millisecond budget runs out, then the remainder yields
// to later ticks. Enqueuing a newer action for a target replaces its pending
// one in place, so the queue never holds two operations for the same target.
//
// Single-goroutine access only (engine tick loop).
type Scheduler struct {
	queue  []*pendingOp
	index  map[opTarget]*pendingOp
	budget time.Duration
	sliced bool
	exec   Executor
	log    *zap.Logger

	onDrained  []func()
	wasPending bool
	depth      int // synchronous-mode reentrancy depth
}

func NewScheduler(budget time.Duration, sliced bool, exec Executor, log *zap.Logger) *Scheduler {
	return &Scheduler{
		index:  make(map[opTarget]*pendingOp),
		budget: budget,
		sliced: sliced,
		exec:   exec,
		log:    log,
	}
}

// QueueChunkLoad implements world.ChunkQueue.
func (s *Scheduler) QueueChunkLoad(key world.ChunkKey) {
	s.enqueue(opTarget{chunk: key}, ActionLoad)
}

// QueueChunkUnload implements world.ChunkQueue.
func (s *Scheduler) QueueChunkUnload(key world.ChunkKey) {
	s.enqueue(opTarget{chunk: key}, ActionUnload)
}

// QueueEntityLoad schedules one entity to load.
func (s *Scheduler) QueueEntityLoad(uid string) {
	s.enqueue(opTarget{uid: uid}, ActionLoad)
}

// QueueEntityUnload schedules one entity to unload.
func (s *Scheduler) QueueEntityUnload(uid string) {
	s.enqueue(opTarget{uid: uid}, ActionUnload)
}

// OnDrained registers a callback fired whenever the queue fully drains.
// Downstream visibility consumers use it to recompute on settled state.
func (s *Scheduler) OnDrained(fn func()) {
	s.onDrained = append(s.onDrained, fn)
}

// Pending returns the number of queued operations.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// Process runs queued operations until the queue empties or the tick budget
// is exhausted. At least one operation executes per call so tiny budgets
// still make progress.
func (s *Scheduler) Process() {
	s.run(s.budget)
}

// Drain processes the whole queue synchronously, ignoring the budget. Used
// when the world must be fully settled immediately, e.g. before a save.
func (s *Scheduler) Drain() {
	for len(s.queue) > 0 {
		s.run(0)
	}
	// run fires drained callbacks when it empties the queue
}

func (s *Scheduler) enqueue(t opTarget, a Action) {
	if !s.sliced {
		// Time-slicing disabled: execute synchronously. Chunk expansion
		// re-enters here, so drained callbacks fire at the outermost call.
		s.depth++
		s.dispatch(t, a)
		s.depth--
		if s.depth == 0 {
			s.fireDrained()
		}
		return
	}
	if op, ok := s.index[t]; ok {
		op.action = a
		op.enqueuedAt = time.Now()
		return
	}
	op := &pendingOp{target: t, action: a, enqueuedAt: time.Now()}
	s.index[t] = op
	s.queue = append(s.queue, op)
	s.wasPending = true
}

func (s *Scheduler) run(budget time.Duration) {
	start := time.Now()
	worked := false
	for len(s.queue) > 0 {
		if budget > 0 && worked && time.Since(start) >= budget {
			return
		}
		op := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.index, op.target)
		s.dispatch(op.target, op.action)
		worked = true
	}
	if s.wasPending {
		s.wasPending = false
		s.fireDrained()
	}
}

func (s *Scheduler) dispatch(t opTarget, a Action) {
	if t.uid != "" {
		if a == ActionLoad {
			s.exec.LoadEntity(t.uid)
		} else {
			s.exec.UnloadEntity(t.uid)
		}
		return
	}
	if a == ActionLoad {
		s.exec.LoadChunk(t.chunk)
	} else {
		s.exec.UnloadChunk(t.chunk)
	}
}

func (s *Scheduler) fireDrained() {
	for _, fn := range s.onDrained {
		fn()
	}
}
