package world

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testGrid(t *testing.T) *Grid {
	t.Helper()
	g, err := NewGrid([]float64{1.0, 4.0, 16.0}, []float64{8, 16, 64})
	require.NoError(t, err)
	return g
}

func TestNewGridValidation(t *testing.T) {
	cases := []struct {
		name       string
		thresholds []float64
		chunkSizes []float64
	}{
		{"too few thresholds", []float64{1, 4}, []float64{8, 16, 64}},
		{"descending thresholds", []float64{4, 1, 16}, []float64{8, 16, 64}},
		{"zero threshold", []float64{0, 4, 16}, []float64{8, 16, 64}},
		{"zero chunk size", []float64{1, 4, 16}, []float64{8, 0, 64}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGrid(tc.thresholds, tc.chunkSizes)
			require.Error(t, err)
		})
	}
}

func TestCategoryFor(t *testing.T) {
	g := testGrid(t)
	cases := []struct {
		size float64
		want SizeCategory
	}{
		{0.0, CategoryAlwaysLoaded}, // not spatial
		{0.5, CategorySmall},
		{1.0, CategorySmall}, // boundary is inclusive on the lower category
		{1.0001, CategoryMedium},
		{4.0, CategoryMedium},
		{16.0, CategoryLarge},
		{16.0001, CategoryAlwaysLoaded}, // too big to stream
		{1000, CategoryAlwaysLoaded},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, g.CategoryFor(tc.size), "size %v", tc.size)
	}
}

func TestChunkAtNegativeCoords(t *testing.T) {
	g := testGrid(t)
	cases := []struct {
		pos   Vec3
		wantX int32
		wantZ int32
	}{
		{Vec3{X: 0, Z: 0}, 0, 0},
		{Vec3{X: 7.9, Z: 7.9}, 0, 0},
		{Vec3{X: 8, Z: 0}, 1, 0},
		{Vec3{X: 9, Z: 0}, 1, 0},
		{Vec3{X: -0.1, Z: 0}, -1, 0},
		{Vec3{X: -8, Z: -8}, -1, -1},
		{Vec3{X: -8.1, Z: 0}, -2, 0},
	}
	for _, tc := range cases {
		k := g.ChunkAt(CategorySmall, tc.pos)
		require.Equal(t, tc.wantX, k.X, "pos %+v", tc.pos)
		require.Equal(t, tc.wantZ, k.Z, "pos %+v", tc.pos)
	}
}

func TestKeyForAlwaysLoaded(t *testing.T) {
	g := testGrid(t)
	k := g.KeyFor(Vec3{X: 12345, Z: -9876}, 0)
	require.Equal(t, AlwaysLoadedKey(), k)

	k = g.KeyFor(Vec3{X: 3, Z: 3}, 99)
	require.Equal(t, AlwaysLoadedKey(), k)
}

func TestChunkIndexInsertRemove(t *testing.T) {
	g := testGrid(t)
	ci := NewChunkIndex(g)

	pos := Vec3{X: 9, Z: 0}
	key := ci.Insert("a", pos, 0.5)
	require.Equal(t, ChunkKey{Category: CategorySmall, X: 1, Z: 0}, key)
	require.Equal(t, []string{"a"}, ci.EntitiesIn(key))

	ci.Insert("b", pos, 0.5)
	require.Equal(t, 2, ci.CountIn(key))

	ci.Remove("a", pos, 0.5)
	require.Equal(t, []string{"b"}, ci.EntitiesIn(key))

	ci.Remove("b", pos, 0.5)
	require.Nil(t, ci.EntitiesIn(key))
	require.Equal(t, 0, ci.CountIn(key))
}

func TestChunkIndexRebucket(t *testing.T) {
	g := testGrid(t)
	ci := NewChunkIndex(g)

	oldPos := Vec3{X: 1, Z: 1}
	newPos := Vec3{X: 100, Z: 1}
	ci.Insert("e", oldPos, 0.5)

	// Move = remove with the old placement, reinsert with the new one.
	ci.Remove("e", oldPos, 0.5)
	newKey := ci.Insert("e", newPos, 0.5)

	oldKey := g.KeyFor(oldPos, 0.5)
	require.Equal(t, 0, ci.CountIn(oldKey))
	require.Equal(t, []string{"e"}, ci.EntitiesIn(newKey))
}

func TestChunkIndexSeparateCategories(t *testing.T) {
	g := testGrid(t)
	ci := NewChunkIndex(g)

	// Same position, different sizes: distinct grids.
	pos := Vec3{X: 9, Z: 0}
	kSmall := ci.Insert("s", pos, 0.5)
	kMedium := ci.Insert("m", pos, 3.0)
	require.Equal(t, CategorySmall, kSmall.Category)
	require.Equal(t, CategoryMedium, kMedium.Category)
	require.NotEqual(t, kSmall, kMedium)
	require.Equal(t, []string{"s"}, ci.EntitiesIn(kSmall))
	require.Equal(t, []string{"m"}, ci.EntitiesIn(kMedium))
}
