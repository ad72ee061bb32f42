package world

import (
	"fmt"
	"math"
)

// SizeCategory buckets an entity by bounding size. Each streamed category has
// its own chunk grid; AlwaysLoaded entities live in one reserved chunk that is
// pinned at startup and never unloaded.
type SizeCategory int8

const (
	CategorySmall SizeCategory = iota
	CategoryMedium
	CategoryLarge
	CategoryAlwaysLoaded
)

// StreamedCategories is the number of categories that participate in
// chunk-window streaming (everything except AlwaysLoaded).
const StreamedCategories = 3

func (c SizeCategory) String() string {
	switch c {
	case CategorySmall:
		return "small"
	case CategoryMedium:
		return "medium"
	case CategoryLarge:
		return "large"
	case CategoryAlwaysLoaded:
		return "always_loaded"
	}
	return "unknown"
}

// ChunkKey identifies one grid cell of one size category.
type ChunkKey struct {
	Category SizeCategory
	X, Z     int32
}

func (k ChunkKey) String() string {
	if k.Category == CategoryAlwaysLoaded {
		return "always_loaded"
	}
	return fmt.Sprintf("%s(%d,%d)", k.Category, k.X, k.Z)
}

// AlwaysLoadedKey is the reserved chunk for non-spatial and oversized entities.
func AlwaysLoadedKey() ChunkKey {
	return ChunkKey{Category: CategoryAlwaysLoaded}
}

// Grid derives categories and chunk coordinates from configured thresholds.
// Thresholds are ascending size boundaries, inclusive on the lower category;
// chunk sizes are the grid edge lengths per category.
type Grid struct {
	thresholds [StreamedCategories]float64
	chunkSizes [StreamedCategories]float64
}

func NewGrid(thresholds, chunkSizes []float64) (*Grid, error) {
	if len(thresholds) != StreamedCategories || len(chunkSizes) != StreamedCategories {
		return nil, fmt.Errorf("grid needs %d thresholds and chunk sizes, got %d/%d",
			StreamedCategories, len(thresholds), len(chunkSizes))
	}
	g := &Grid{}
	prev := 0.0
	for i := 0; i < StreamedCategories; i++ {
		if thresholds[i] <= prev {
			return nil, fmt.Errorf("thresholds must be ascending and positive, got %v", thresholds)
		}
		if chunkSizes[i] <= 0 {
			return nil, fmt.Errorf("chunk sizes must be positive, got %v", chunkSizes)
		}
		prev = thresholds[i]
		g.thresholds[i] = thresholds[i]
		g.chunkSizes[i] = chunkSizes[i]
	}
	return g, nil
}

// CategoryFor maps a bounding size to its category. Zero means "not spatial"
// and anything past the largest threshold is too big to stream; both pin.
func (g *Grid) CategoryFor(size float64) SizeCategory {
	if size == 0 {
		return CategoryAlwaysLoaded
	}
	for i := 0; i < StreamedCategories; i++ {
		if size <= g.thresholds[i] {
			return SizeCategory(i)
		}
	}
	return CategoryAlwaysLoaded
}

// ChunkSize returns the grid edge length for a streamed category.
func (g *Grid) ChunkSize(cat SizeCategory) float64 {
	return g.chunkSizes[cat]
}

// ChunkAt returns the chunk containing a position on a streamed category's grid.
func (g *Grid) ChunkAt(cat SizeCategory, pos Vec3) ChunkKey {
	if cat == CategoryAlwaysLoaded {
		return AlwaysLoadedKey()
	}
	edge := g.chunkSizes[cat]
	return ChunkKey{
		Category: cat,
		X:        int32(math.Floor(pos.X / edge)),
		Z:        int32(math.Floor(pos.Z / edge)),
	}
}

// KeyFor computes the chunk an entity with the given position and bounding
// size belongs to.
func (g *Grid) KeyFor(pos Vec3, size float64) ChunkKey {
	return g.ChunkAt(g.CategoryFor(size), pos)
}

// ChunkIndex maps chunks to the set of entity UIDs whose stored position and
// size place them there. Pure bookkeeping: it is rebuilt from the Store on
// load and holds no authority over moves. An entity that moves or resizes
// must be removed with its old placement and reinserted with the new one.
type ChunkIndex struct {
	grid  *Grid
	cells map[ChunkKey]map[string]struct{}
}

func NewChunkIndex(grid *Grid) *ChunkIndex {
	return &ChunkIndex{
		grid:  grid,
		cells: make(map[ChunkKey]map[string]struct{}),
	}
}

func (ci *ChunkIndex) Grid() *Grid { return ci.grid }

// Insert places a UID into the chunk derived from position and size.
func (ci *ChunkIndex) Insert(uid string, pos Vec3, size float64) ChunkKey {
	k := ci.grid.KeyFor(pos, size)
	cell := ci.cells[k]
	if cell == nil {
		cell = make(map[string]struct{})
		ci.cells[k] = cell
	}
	cell[uid] = struct{}{}
	return k
}

// Remove takes a UID out of the chunk derived from position and size. The
// caller must pass the same placement it inserted with.
func (ci *ChunkIndex) Remove(uid string, pos Vec3, size float64) {
	k := ci.grid.KeyFor(pos, size)
	cell := ci.cells[k]
	if cell != nil {
		delete(cell, uid)
		if len(cell) == 0 {
			delete(ci.cells, k)
		}
	}
}

// EntitiesIn returns the UIDs indexed under a chunk. The slice is a copy; the
// scheduler mutates the index while iterating it.
func (ci *ChunkIndex) EntitiesIn(key ChunkKey) []string {
	cell := ci.cells[key]
	if len(cell) == 0 {
		return nil
	}
	uids := make([]string, 0, len(cell))
	for uid := range cell {
		uids = append(uids, uid)
	}
	return uids
}

// CountIn returns how many entities a chunk holds.
func (ci *ChunkIndex) CountIn(key ChunkKey) int {
	return len(ci.cells[key])
}

// Reset drops all cells. Used when a snapshot load replaces the world.
func (ci *ChunkIndex) Reset() {
	ci.cells = make(map[ChunkKey]map[string]struct{})
}
