package game

import (
	"time"

	"creature-tree/internal/game/spatial"
)

// TickStats summarizes one game turn. It is what the websocket hub streams.
type TickStats struct {
	Tick          uint64 `json:"tick"`
	Generation    uint64 `json:"generation"`
	Creatures     int    `json:"creatures"`
	Alive         int    `json:"alive"`
	Indexed       int    `json:"indexed"`
	Duplicates    int    `json:"duplicates"`
	Targeted      int    `json:"targeted"`
	Kills         int    `json:"kills"`
	CachedQueries int    `json:"cachedQueries"`
	RangeQueries  uint64 `json:"rangeQueries"` // since start
	RebuildMicros int64  `json:"rebuildMicros"`
	TickMicros    int64  `json:"tickMicros"`
}

// CreatureSnapshot is an immutable copy of a creature as it was indexed.
type CreatureSnapshot struct {
	ID        uint32       `json:"id"`
	Kind      string       `json:"kind"`
	Owner     uint8        `json:"owner"`
	Box       spatial.AABB `json:"box"`
	Health    int          `json:"health"`
	Target    uint32       `json:"target,omitempty"`
	HasTarget bool         `json:"hasTarget"`
}

// NodeSnapshot is one R-tree node's covering box. Level 0 is a leaf.
type NodeSnapshot struct {
	Box   spatial.AABB `json:"box"`
	Level int          `json:"level"`
}

// Snapshot is the index as of the end of a rebuild, for rendering.
// It is never modified after publication, so readers need no lock.
type Snapshot struct {
	Timestamp   time.Time          `json:"timestamp"`
	WorldWidth  int32              `json:"worldWidth"`
	WorldHeight int32              `json:"worldHeight"`
	Backend     string             `json:"backend"`
	Creatures   []CreatureSnapshot `json:"creatures"`
	Nodes       []NodeSnapshot     `json:"nodes,omitempty"`
	Stats       TickStats          `json:"stats"`
}

// buildSnapshot copies the indexed creatures and, for an R-tree backend, the
// node boxes. Called with the engine lock held, right after targeting.
func (e *Engine) buildSnapshot(live []*Creature) *Snapshot {
	snap := &Snapshot{
		Timestamp:   time.Now(),
		WorldWidth:  e.worldWidth,
		WorldHeight: e.worldHeight,
		Backend:     e.backend,
		Creatures:   make([]CreatureSnapshot, 0, len(live)),
	}
	for _, c := range live {
		snap.Creatures = append(snap.Creatures, CreatureSnapshot{
			ID:        uint32(c.ID),
			Kind:      c.Kind,
			Owner:     c.Owner,
			Box:       spatial.BoxAround(c.Position(), c.SolidSize()),
			Health:    c.Health,
			Target:    uint32(c.Target),
			HasTarget: c.HasTarget,
		})
	}
	if tree, ok := e.index.Index().(*spatial.RTree); ok {
		tree.Walk(func(box spatial.AABB, level int) {
			snap.Nodes = append(snap.Nodes, NodeSnapshot{Box: box, Level: level})
		})
	}
	return snap
}
