package spatial

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	opts := DefaultOptions()
	tree, err := NewBackend(opts)
	require.NoError(t, err)

	opts.Kind = KindGrid
	opts.WorldWidth, opts.WorldHeight, opts.CellSize = 16384, 16384, 1000
	grid, err := NewBackend(opts)
	require.NoError(t, err)

	return map[string]Backend{"rtree": tree, "grid": grid}
}

func rangeIDs(t *testing.T, b Backend, p Point, r uint32, mode Boundary) []uint32 {
	t.Helper()
	var ids []uint32
	require.NoError(t, RangeQuery(b, p, r, mode, func(_ AABB, id uint32) bool {
		ids = append(ids, id)
		return true
	}))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestNewBackendKinds(t *testing.T) {
	opts := DefaultOptions()
	opts.Kind = "octree"
	_, err := NewBackend(opts)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.Kind = KindGrid
	opts.CellSize = 0
	_, err = NewBackend(opts)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.MinChildren = 3
	_, err = NewBackend(opts)
	assert.Error(t, err)
}

// TestRangeQueryScenario replays the creature tree scenario: nine creatures
// with a 300 footprint, queried from (5000,5000) with radius 3000.
func TestRangeQueryScenario(t *testing.T) {
	centers := []Point{
		{5000, 5000}, {5000, 8000}, {2001, 5000}, {8000, 5000}, {1000, 5000},
		{8151, 5000}, {3000, 3000}, {7121, 7121}, {7272, 7272},
	}

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i, c := range centers {
				b.Insert(BoxAround(c, 300), uint32(i))
			}
			require.Equal(t, len(centers), b.Len())

			got := rangeIDs(t, b, Point{5000, 5000}, 3000, BoundaryCenter)
			assert.Equal(t, []uint32{0, 1, 2, 3, 6, 7}, got)

			got = rangeIDs(t, b, Point{5000, 5000}, 3000, BoundaryBox)
			assert.Equal(t, []uint32{0, 1, 2, 3, 6, 7}, got)

			b.Clear()
			assert.Equal(t, 0, b.Len())
			assert.Empty(t, rangeIDs(t, b, Point{5000, 5000}, 3000, BoundaryCenter))
		})
	}
}

func TestRangeQueryBoundaryInclusive(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b.Insert(BoxAround(Point{6000, 6000}, 300), 1) // distance 1000 on X
			b.Insert(BoxAround(Point{5600, 6800}, 0), 2)   // 600-800-1000 triangle
			b.Insert(BoxAround(Point{5000, 7001}, 300), 3) // distance 1001

			assert.Equal(t, []uint32{1, 2}, rangeIDs(t, b, Point{5000, 6000}, 1000, BoundaryCenter))
			assert.Equal(t, []uint32{1, 2, 3}, rangeIDs(t, b, Point{5000, 6000}, 1001, BoundaryCenter))
			assert.Empty(t, rangeIDs(t, b, Point{5000, 6000}, 999, BoundaryCenter))
		})
	}
}

func TestRangeQueryOriginalRadiusSearch(t *testing.T) {
	for _, mode := range []Boundary{BoundaryCenter, BoundaryBox} {
		tree, err := NewRTree(2, 4)
		require.NoError(t, err)
		for i, box := range referenceBoxes {
			tree.Insert(box, uint32(i))
		}
		got := rangeIDs(t, tree, Point{0, 0}, 100, mode)
		assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, got, "mode %s", mode)
	}
}

func TestRangeQueryClampsHugeRadius(t *testing.T) {
	tree, err := NewRTree(2, 4)
	require.NoError(t, err)
	tree.Insert(BoxAround(Point{math.MaxInt32 - 10, 0}, 4), 1)
	tree.Insert(BoxAround(Point{math.MinInt32 + 10, 0}, 4), 2)

	got := rangeIDs(t, tree, Point{0, 0}, math.MaxUint32, BoundaryCenter)
	assert.Equal(t, []uint32{1, 2}, got)
}

// TestGridMatchesRTree feeds identical random worlds to both backends,
// including entities outside the grid's world rectangle.
func TestGridMatchesRTree(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	bs := backends(t)
	for i := 0; i < 1500; i++ {
		box := BoxAround(Point{int32(rng.Intn(20000) - 2000), int32(rng.Intn(20000) - 2000)}, int32(rng.Intn(1200)))
		for _, b := range bs {
			b.Insert(box, uint32(i))
		}
	}

	for q := 0; q < 100; q++ {
		p := Point{int32(rng.Intn(20000) - 2000), int32(rng.Intn(20000) - 2000)}
		r := uint32(rng.Intn(4000))
		for _, mode := range []Boundary{BoundaryCenter, BoundaryBox} {
			assert.Equal(t,
				rangeIDs(t, bs["rtree"], p, r, mode),
				rangeIDs(t, bs["grid"], p, r, mode),
				"query %v r=%d mode=%s", p, r, mode)
		}
	}
}

func TestGridStats(t *testing.T) {
	g, err := NewGrid(1000, 500, 100, 64)
	require.NoError(t, err)

	cols, rows, cell := g.Dimensions()
	assert.Equal(t, 10, cols)
	assert.Equal(t, 5, rows)
	assert.Equal(t, int32(100), cell)

	g.Insert(BoxAround(Point{50, 50}, 10), 1)
	g.Insert(BoxAround(Point{60, 60}, 10), 2)
	g.Insert(BoxAround(Point{950, 450}, 10), 3)

	stats := g.Stats()
	assert.Equal(t, 50, stats.TotalCells)
	assert.Equal(t, 2, stats.NonEmptyCells)
	assert.Equal(t, 3, stats.TotalEntities)
	assert.Equal(t, 2, stats.MaxInCell)
	assert.InDelta(t, 1.5, stats.AvgPerNonEmpty, 1e-9)
}
