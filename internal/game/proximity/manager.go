package proximity

import (
	"fmt"

	"creature-tree/internal/game/spatial"
)

const (
	queryNearby  = "nearby"
	queryNearest = "nearest"
)

// Options configures a Manager.
type Options struct {
	Backend  spatial.Options
	Boundary spatial.Boundary
	// Capacity presizes the handle set and cache for this many creatures.
	Capacity int
	Metrics  *Metrics
}

// DefaultOptions returns an R-tree backed manager with center-distance
// boundaries.
func DefaultOptions() Options {
	return Options{
		Backend:  spatial.DefaultOptions(),
		Boundary: spatial.BoundaryCenter,
		Capacity: 256,
	}
}

// Manager composes the handle set, the spatial backend and the visual-range
// cache. The three are only ever emptied together, by Clear.
//
// A Manager is owned by the simulation and is not safe for concurrent use.
type Manager struct {
	handles  handleSet
	index    spatial.Backend
	cache    nearbyCache
	boundary spatial.Boundary
	metrics  *Metrics

	gen          uint64 // bumped by Clear; invalidates NeighborViews
	rangeQueries uint64
}

// New creates an empty manager.
func New(opts Options) (*Manager, error) {
	index, err := spatial.NewBackend(opts.Backend)
	if err != nil {
		return nil, fmt.Errorf("proximity: %w", err)
	}
	return NewWithBackend(index, opts), nil
}

// NewWithBackend creates an empty manager over an existing backend, which
// must be empty and must not be shared.
func NewWithBackend(index spatial.Backend, opts Options) *Manager {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = 64
	}
	return &Manager{
		handles:  newHandleSet(capacity),
		index:    index,
		cache:    newNearbyCache(capacity),
		boundary: opts.Boundary,
		metrics:  opts.Metrics,
	}
}

// Add indexes node unless its handle is already indexed in this cycle.
// A duplicate returns false and changes nothing.
func (m *Manager) Add(node Node) bool {
	if !m.handles.add(node.Handle) {
		m.metrics.insert(false, m.index.Len())
		return false
	}
	m.index.Insert(node.Box, uint32(node.Handle))
	m.metrics.insert(true, m.index.Len())
	return true
}

// Clear empties the handle set, the index and the cache, and invalidates
// every NeighborView handed out so far.
func (m *Manager) Clear() {
	m.handles.reset()
	m.index.Clear()
	m.cache.reset()
	m.gen++
	m.metrics.clear()
}

// Count returns the number of indexed entries.
func (m *Manager) Count() int {
	return m.index.Len()
}

// Contains reports whether h is indexed in the current cycle.
func (m *Manager) Contains(h Handle) bool {
	return m.handles.has(h)
}

// Generation identifies the current rebuild cycle.
func (m *Manager) Generation() uint64 {
	return m.gen
}

// State reports the rebuild-cycle phase.
func (m *Manager) State() State {
	switch {
	case m.cache.len() > 0:
		return StateQueried
	case m.handles.len() > 0:
		return StatePopulated
	}
	return StateEmpty
}

// CachedQueries returns the number of creatures with a memoized result.
func (m *Manager) CachedQueries() int {
	return m.cache.len()
}

// RangeQueries returns how many searches reached the backend since New.
func (m *Manager) RangeQueries() uint64 {
	return m.rangeQueries
}

// Boundary returns the exact test applied to range query candidates.
func (m *Manager) Boundary() spatial.Boundary {
	return m.boundary
}

// Index exposes the backend for read-only inspection (rendering, stats).
func (m *Manager) Index() spatial.Backend {
	return m.index
}

// NearbyInVisualRange returns the creatures within visualRange of pos, as seen
// by creature h.
//
// The first call for h in a rebuild cycle searches the index and caches the
// result; later calls return the cached list unchanged, even if pos or
// visualRange differ. h's own entry is part of the result when h is indexed.
func (m *Manager) NearbyInVisualRange(h Handle, pos spatial.Point, visualRange uint32) (NeighborView, error) {
	if list, ok := m.cache.get(h); ok {
		m.metrics.cache(true)
		return m.view(h, list), nil
	}
	m.metrics.cache(false)

	off := m.cache.begin()
	err := m.rangeQuery(pos, visualRange, func(box spatial.AABB, id uint32) {
		m.cache.push(Neighbor{
			Handle:   Handle(id),
			Distance: spatial.Distance(pos, box.Center()),
		})
	})
	if err != nil {
		m.cache.rollback(off)
		m.metrics.query(queryNearby, 0, err)
		return NeighborView{}, err
	}

	list := m.cache.commit(h, off)
	m.metrics.query(queryNearby, len(list), nil)
	return m.view(h, list), nil
}

// Cached returns the visual-range result memoized for h in this rebuild
// cycle. It never searches the index and changes no state or metrics.
func (m *Manager) Cached(h Handle) (NeighborView, bool) {
	list, ok := m.cache.get(h)
	if !ok {
		return NeighborView{}, false
	}
	return m.view(h, list), true
}

// NearestSearch returns the handles within radius of pos. The result is not
// cached and belongs to the caller; an empty result is a non-nil empty slice.
func (m *Manager) NearestSearch(pos spatial.Point, radius uint32) ([]Handle, error) {
	out := make([]Handle, 0, 8)
	err := m.rangeQuery(pos, radius, func(_ spatial.AABB, id uint32) {
		out = append(out, Handle(id))
	})
	if err != nil {
		m.metrics.query(queryNearest, 0, err)
		return nil, err
	}
	m.metrics.query(queryNearest, len(out), nil)
	return out, nil
}

func (m *Manager) rangeQuery(pos spatial.Point, radius uint32, fn func(box spatial.AABB, id uint32)) error {
	m.rangeQueries++
	err := spatial.RangeQuery(m.index, pos, radius, m.boundary, func(box spatial.AABB, id uint32) bool {
		fn(box, id)
		return true
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return nil
}

func (m *Manager) view(h Handle, list []Neighbor) NeighborView {
	return NeighborView{m: m, gen: m.gen, self: h, items: list}
}
