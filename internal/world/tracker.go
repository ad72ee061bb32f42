package world

// ChunkQueue is where the tracker pushes requirement transitions. Only the
// 0→1 and 1→0 edges reach it; everything in between is refcounting.
type ChunkQueue interface {
	QueueChunkLoad(key ChunkKey)
	QueueChunkUnload(key ChunkKey)
}

// pinObserver is the synthetic requirer that keeps the AlwaysLoaded chunk
// resident for the lifetime of the tracker.
const pinObserver = "\x00pin"

// ChunkTracker keeps a per-chunk set of requiring observers and each
// observer's previously required window per category. Updates diff the new
// window against the previous one, so per-update cost tracks the observer's
// movement, not the window size, and overlapping observers share chunks
// through the refcount.
type ChunkTracker struct {
	grid      *Grid
	loadRange int32
	queue     ChunkQueue

	requirers map[ChunkKey]map[string]struct{}
	previous  map[string]map[SizeCategory]map[ChunkKey]struct{}
}

func NewChunkTracker(grid *Grid, loadRange int, queue ChunkQueue) *ChunkTracker {
	return &ChunkTracker{
		grid:      grid,
		loadRange: int32(loadRange),
		queue:     queue,
		requirers: make(map[ChunkKey]map[string]struct{}),
		previous:  make(map[string]map[SizeCategory]map[ChunkKey]struct{}),
	}
}

// PinAlwaysLoaded requires the reserved chunk once, at startup. It is never
// released.
func (t *ChunkTracker) PinAlwaysLoaded() {
	t.addRequirement(AlwaysLoadedKey(), pinObserver)
}

// UpdateObserver recomputes the observer's required window around a new
// position and applies the diff against its previous window. Calling it twice
// with the same position is a no-op the second time.
func (t *ChunkTracker) UpdateObserver(observerID string, pos Vec3) {
	prev := t.previous[observerID]
	if prev == nil {
		prev = make(map[SizeCategory]map[ChunkKey]struct{}, StreamedCategories)
		t.previous[observerID] = prev
	}

	for cat := SizeCategory(0); cat < StreamedCategories; cat++ {
		next := t.window(cat, pos)
		old := prev[cat]

		for key := range old {
			if _, still := next[key]; !still {
				t.removeRequirement(key, observerID)
			}
		}
		for key := range next {
			if _, had := old[key]; !had {
				t.addRequirement(key, observerID)
			}
		}
		prev[cat] = next
	}
}

// RemoveObserver releases every chunk the observer was requiring.
func (t *ChunkTracker) RemoveObserver(observerID string) {
	prev, ok := t.previous[observerID]
	if !ok {
		return
	}
	for _, window := range prev {
		for key := range window {
			t.removeRequirement(key, observerID)
		}
	}
	delete(t.previous, observerID)
}

// Required reports whether any observer currently requires the chunk.
func (t *ChunkTracker) Required(key ChunkKey) bool {
	return len(t.requirers[key]) > 0
}

// RequiredCount returns the number of currently required chunks.
func (t *ChunkTracker) RequiredCount() int {
	return len(t.requirers)
}

// ObserverCount returns how many observers have a tracked window.
func (t *ChunkTracker) ObserverCount() int {
	return len(t.previous)
}

func (t *ChunkTracker) window(cat SizeCategory, pos Vec3) map[ChunkKey]struct{} {
	center := t.grid.ChunkAt(cat, pos)
	r := t.loadRange
	out := make(map[ChunkKey]struct{}, (2*r+1)*(2*r+1))
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			out[ChunkKey{Category: cat, X: center.X + dx, Z: center.Z + dz}] = struct{}{}
		}
	}
	return out
}

func (t *ChunkTracker) addRequirement(key ChunkKey, observerID string) {
	set := t.requirers[key]
	if set == nil {
		set = make(map[string]struct{}, 1)
		t.requirers[key] = set
		t.queue.QueueChunkLoad(key)
	}
	set[observerID] = struct{}{}
}

func (t *ChunkTracker) removeRequirement(key ChunkKey, observerID string) {
	set := t.requirers[key]
	if set == nil {
		return
	}
	delete(set, observerID)
	if len(set) == 0 {
		delete(t.requirers, key)
		t.queue.QueueChunkUnload(key)
	}
}
