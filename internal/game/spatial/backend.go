package spatial

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRegion is returned by Search for a query box with Min > Max.
var ErrInvalidRegion = errors.New("spatial: invalid query region")

// Backend is a broad-phase index over tagged bounding boxes.
//
// Implementations do not check for duplicate ids; callers that need
// at-most-once semantics must track ids themselves.
type Backend interface {
	// Insert stores box under id.
	Insert(box AABB, id uint32)
	// Clear removes every entry, keeping allocated capacity.
	Clear()
	// Len returns the number of stored entries.
	Len() int
	// Search calls fn for every entry whose box overlaps query.
	// Iteration stops early when fn returns false.
	Search(query AABB, fn func(box AABB, id uint32) bool) error
}

// Boundary selects the exact test applied after the square broad phase of a
// radius query.
type Boundary uint8

const (
	// BoundaryCenter keeps entries whose box center is within the radius.
	BoundaryCenter Boundary = iota
	// BoundaryBox keeps entries whose closest box point is within the radius.
	BoundaryBox
)

// ParseBoundary maps a configuration string to a Boundary.
func ParseBoundary(s string) (Boundary, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "center":
		return BoundaryCenter, nil
	case "box":
		return BoundaryBox, nil
	}
	return 0, fmt.Errorf("spatial: unknown boundary mode %q", s)
}

func (b Boundary) String() string {
	if b == BoundaryBox {
		return "box"
	}
	return "center"
}

// Contains reports whether box passes the boundary test for a query of the
// given radius around p. Distances equal to radius are included.
func (b Boundary) Contains(box AABB, p Point, radius uint32) bool {
	if b == BoundaryBox {
		return withinBox(box, p, radius)
	}
	return withinCenter(box, p, radius)
}

// RangeQuery visits the entries of idx within radius of p.
//
// The square region of half-extent radius is searched first, then every
// candidate is filtered with the exact boundary test, so fn only ever sees
// true matches.
func RangeQuery(idx Backend, p Point, radius uint32, mode Boundary, fn func(box AABB, id uint32) bool) error {
	return idx.Search(SquareAround(p, radius), func(box AABB, id uint32) bool {
		if !mode.Contains(box, p, radius) {
			return true
		}
		return fn(box, id)
	})
}

// Kind names a Backend implementation.
type Kind string

const (
	KindRTree Kind = "rtree"
	KindGrid  Kind = "grid"
)

// Options configures NewBackend.
type Options struct {
	Kind Kind

	// R-tree node fan-out.
	MinChildren int
	MaxChildren int

	// Grid layout. Entities outside the world rectangle are clamped into the
	// border cells.
	CellSize    int32
	WorldWidth  int32
	WorldHeight int32
	MaxEntities int
}

// DefaultOptions returns an R-tree with the fan-out of the original creature
// tree (2..4 children per node).
func DefaultOptions() Options {
	return Options{
		Kind:        KindRTree,
		MinChildren: 2,
		MaxChildren: 4,
		CellSize:    1024,
		WorldWidth:  65536,
		WorldHeight: 65536,
		MaxEntities: 2048,
	}
}

// NewBackend builds the backend selected by opts.Kind.
func NewBackend(opts Options) (Backend, error) {
	switch opts.Kind {
	case KindRTree, "":
		t, err := NewRTree(opts.MinChildren, opts.MaxChildren)
		if err != nil {
			return nil, err
		}
		return t, nil
	case KindGrid:
		g, err := NewGrid(opts.WorldWidth, opts.WorldHeight, opts.CellSize, opts.MaxEntities)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, fmt.Errorf("spatial: unknown backend %q", opts.Kind)
}
