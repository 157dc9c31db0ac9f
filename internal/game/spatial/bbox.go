// Package spatial provides cache-efficient spatial data structures for
// broad-phase neighbor queries over integer world coordinates.
//
// All structures use preallocated slices with integer indices (not pointers)
// to minimize GC pressure and maximize cache locality.
package spatial

import (
	"math"
	"math/bits"
)

// Point is a position on the simulation plane in subtile units.
type Point struct {
	X, Y int32
}

// AABB is an axis-aligned bounding box. Min and Max are inclusive and indexed
// by axis (0 = X, 1 = Y).
type AABB struct {
	Min [2]int32
	Max [2]int32
}

// BoxAround builds the footprint box of an entity: center ± size/2 on each
// axis. Negative sizes are treated as zero. Coordinates saturate at the
// int32 range instead of wrapping.
func BoxAround(center Point, size int32) AABB {
	if size < 0 {
		size = 0
	}
	half := int64(size / 2)
	return AABB{
		Min: [2]int32{clamp32(int64(center.X) - half), clamp32(int64(center.Y) - half)},
		Max: [2]int32{clamp32(int64(center.X) + half), clamp32(int64(center.Y) + half)},
	}
}

// SquareAround returns the square region of half-extent radius centered on p,
// clamped to the int32 plane.
func SquareAround(p Point, radius uint32) AABB {
	r := int64(radius)
	return AABB{
		Min: [2]int32{clamp32(int64(p.X) - r), clamp32(int64(p.Y) - r)},
		Max: [2]int32{clamp32(int64(p.X) + r), clamp32(int64(p.Y) + r)},
	}
}

// Valid reports whether Min <= Max on both axes.
func (b AABB) Valid() bool {
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1]
}

// Center returns the box midpoint, truncated toward zero.
func (b AABB) Center() Point {
	return Point{
		X: int32((int64(b.Min[0]) + int64(b.Max[0])) / 2),
		Y: int32((int64(b.Min[1]) + int64(b.Max[1])) / 2),
	}
}

// Overlaps reports whether the two boxes share at least one point.
// Touching edges count as overlap.
func (b AABB) Overlaps(o AABB) bool {
	return b.Min[0] <= o.Max[0] && b.Max[0] >= o.Min[0] &&
		b.Min[1] <= o.Max[1] && b.Max[1] >= o.Min[1]
}

// Union returns the smallest box containing both b and o.
func (b AABB) Union(o AABB) AABB {
	return AABB{
		Min: [2]int32{min(b.Min[0], o.Min[0]), min(b.Min[1], o.Min[1])},
		Max: [2]int32{max(b.Max[0], o.Max[0]), max(b.Max[1], o.Max[1])},
	}
}

// area is used only by insertion heuristics, so float64 is precise enough and
// cannot overflow for full-range int32 boxes.
func (b AABB) area() float64 {
	return (float64(b.Max[0]) - float64(b.Min[0])) * (float64(b.Max[1]) - float64(b.Min[1]))
}

// enlargement is how much b's area grows to also cover o.
func (b AABB) enlargement(o AABB) float64 {
	return b.Union(o).area() - b.area()
}

// Distance returns the Euclidean distance between two points, truncated to
// an integer. The result is exact for the whole int32 plane.
func Distance(a, b Point) uint64 {
	dx := absDiff(a.X, b.X)
	dy := absDiff(a.Y, b.Y)
	hi, lo := sumSquares(dx, dy)

	d := uint64(math.Hypot(float64(dx), float64(dy)))
	// Correct float rounding so that d*d <= dx²+dy² < (d+1)².
	for d > 0 && cmp128(square(d), hi, lo) > 0 {
		d--
	}
	for cmp128(square(d+1), hi, lo) <= 0 {
		d++
	}
	return d
}

// CenterDistance is the truncated distance between the centers of two boxes.
func CenterDistance(a, b AABB) uint64 {
	return Distance(a.Center(), b.Center())
}

// withinCenter reports whether the center of box is at most radius from p.
func withinCenter(box AABB, p Point, radius uint32) bool {
	c := box.Center()
	return withinRadius(absDiff(c.X, p.X), absDiff(c.Y, p.Y), radius)
}

// withinBox reports whether the closest point of box is at most radius from p.
func withinBox(box AABB, p Point, radius uint32) bool {
	return withinRadius(axisGap(p.X, box.Min[0], box.Max[0]), axisGap(p.Y, box.Min[1], box.Max[1]), radius)
}

func withinRadius(dx, dy uint64, radius uint32) bool {
	r := uint64(radius)
	if dx > r || dy > r {
		return false
	}
	hi, lo := sumSquares(dx, dy)
	rhi, rlo := bits.Mul64(r, r)
	return cmp128x(hi, lo, rhi, rlo) <= 0
}

// axisGap is the distance from v to the interval [lo, hi], zero when inside.
func axisGap(v, lo, hi int32) uint64 {
	switch {
	case v < lo:
		return uint64(int64(lo) - int64(v))
	case v > hi:
		return uint64(int64(v) - int64(hi))
	}
	return 0
}

func absDiff(a, b int32) uint64 {
	d := int64(a) - int64(b)
	if d < 0 {
		d = -d
	}
	return uint64(d)
}

// sumSquares returns dx²+dy² as a 128-bit (hi, lo) pair.
func sumSquares(dx, dy uint64) (hi, lo uint64) {
	xh, xl := bits.Mul64(dx, dx)
	yh, yl := bits.Mul64(dy, dy)
	lo, carry := bits.Add64(xl, yl, 0)
	hi, _ = bits.Add64(xh, yh, carry)
	return hi, lo
}

func square(v uint64) [2]uint64 {
	hi, lo := bits.Mul64(v, v)
	return [2]uint64{hi, lo}
}

func cmp128(a [2]uint64, hi, lo uint64) int {
	return cmp128x(a[0], a[1], hi, lo)
}

func cmp128x(ahi, alo, bhi, blo uint64) int {
	switch {
	case ahi < bhi:
		return -1
	case ahi > bhi:
		return 1
	case alo < blo:
		return -1
	case alo > blo:
		return 1
	}
	return 0
}

func clamp32(v int64) int32 {
	if v < math.MinInt32 {
		return math.MinInt32
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(v)
}
