// Package proximity answers "which creatures are near this creature or point"
// for the simulation. A Manager is rebuilt from scratch every tick: Clear,
// then one AddCreature per live creature, then any number of queries.
//
// Visual-range results are memoized per creature until the next Clear and
// handed out as borrowed NeighborViews. Direct searches return slices the
// caller owns.
package proximity

import (
	"errors"

	"creature-tree/internal/game/spatial"
)

var (
	// ErrNilCreature is returned by the creature helpers for a nil creature.
	ErrNilCreature = errors.New("proximity: nil creature")
	// ErrQueryFailed wraps a failure reported by the spatial backend.
	ErrQueryFailed = errors.New("proximity: range query failed")
)

// Handle identifies one live entity while it is indexed. Handles are
// allocated by the entity system; the index only stores them.
type Handle uint32

// Node is the unit stored in the index. Two nodes are the same entry when
// their handles match; the box is not part of identity.
type Node struct {
	Box    spatial.AABB
	Handle Handle
}

// Same reports whether n and o refer to the same entity.
func (n Node) Same(o Node) bool {
	return n.Handle == o.Handle
}

// Neighbor is one visual-range result. Distance is the truncated Euclidean
// distance between the two box centers.
type Neighbor struct {
	Handle   Handle `json:"handle"`
	Distance uint64 `json:"distance"`
}

// Creature is what the entity layer exposes to the index.
type Creature interface {
	Handle() Handle
	// Position is the creature's center in subtile units.
	Position() spatial.Point
	// SolidSize is the footprint edge length.
	SolidSize() int32
}

// NodeFor derives the index entry of c: its footprint box around its position.
func NodeFor(c Creature) Node {
	return Node{
		Box:    spatial.BoxAround(c.Position(), c.SolidSize()),
		Handle: c.Handle(),
	}
}

// State is the rebuild-cycle phase of a Manager.
type State uint8

const (
	StateEmpty     State = iota // nothing indexed
	StatePopulated              // entries added, no cached queries
	StateQueried                // at least one cached visual-range result
)

func (s State) String() string {
	switch s {
	case StatePopulated:
		return "populated"
	case StateQueried:
		return "queried"
	}
	return "empty"
}
