package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoxAround(t *testing.T) {
	tests := []struct {
		name   string
		center Point
		size   int32
		want   AABB
	}{
		{"creature footprint", Point{5000, 5000}, 300, AABB{Min: [2]int32{4850, 4850}, Max: [2]int32{5150, 5150}}},
		{"odd size truncates", Point{10, 20}, 5, AABB{Min: [2]int32{8, 18}, Max: [2]int32{12, 22}}},
		{"zero size", Point{-7, 3}, 0, AABB{Min: [2]int32{-7, 3}, Max: [2]int32{-7, 3}}},
		{"negative size", Point{1, 1}, -40, AABB{Min: [2]int32{1, 1}, Max: [2]int32{1, 1}}},
		{"saturates", Point{math.MaxInt32, math.MinInt32}, 100, AABB{
			Min: [2]int32{math.MaxInt32 - 50, math.MinInt32},
			Max: [2]int32{math.MaxInt32, math.MinInt32 + 50},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BoxAround(tt.center, tt.size)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestAABBCenterAndOverlap(t *testing.T) {
	a := AABB{Min: [2]int32{0, 0}, Max: [2]int32{10, 10}}
	b := AABB{Min: [2]int32{10, 10}, Max: [2]int32{20, 20}}
	c := AABB{Min: [2]int32{11, 0}, Max: [2]int32{20, 5}}

	assert.Equal(t, Point{5, 5}, a.Center())
	assert.True(t, a.Overlaps(b), "touching corners overlap")
	assert.False(t, a.Overlaps(c))
	assert.Equal(t, AABB{Min: [2]int32{0, 0}, Max: [2]int32{20, 20}}, a.Union(b))
	assert.False(t, AABB{Min: [2]int32{5, 0}, Max: [2]int32{4, 0}}.Valid())
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want uint64
	}{
		{"same point", Point{5000, 5000}, Point{5000, 5000}, 0},
		{"axis aligned", Point{5000, 5000}, Point{5000, 8000}, 3000},
		{"diagonal truncates", Point{5000, 5000}, Point{3000, 3000}, 2828},
		{"just inside", Point{5000, 5000}, Point{7121, 7121}, 2999},
		{"pythagorean triple", Point{0, 0}, Point{-3, 4}, 5},
		{"full range", Point{math.MinInt32, math.MinInt32}, Point{math.MaxInt32, math.MaxInt32}, 6074000998},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Distance(tt.a, tt.b))
			assert.Equal(t, tt.want, Distance(tt.b, tt.a))
		})
	}
}

func TestBoundaryContains(t *testing.T) {
	query := Point{5000, 5000}
	onEdge := BoxAround(Point{8000, 5000}, 300)
	pastEdge := BoxAround(Point{8001, 5000}, 300)

	assert.True(t, BoundaryCenter.Contains(onEdge, query, 3000))
	assert.False(t, BoundaryCenter.Contains(pastEdge, query, 3000))

	// Box mode measures to the nearest edge: 8151-150 = 8001 is one unit out.
	assert.True(t, BoundaryBox.Contains(BoxAround(Point{8150, 5000}, 300), query, 3000))
	assert.False(t, BoundaryBox.Contains(BoxAround(Point{8151, 5000}, 300), query, 3000))
	assert.True(t, BoundaryBox.Contains(BoxAround(Point{5000, 5000}, 300), query, 0), "query inside the box")
}

func TestParseBoundary(t *testing.T) {
	for in, want := range map[string]Boundary{"": BoundaryCenter, "center": BoundaryCenter, " BOX ": BoundaryBox} {
		got, err := ParseBoundary(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseBoundary("circle")
	assert.Error(t, err)
}
