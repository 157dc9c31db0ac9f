package proximity

// NeighborView is a borrowed, read-only view of a cached visual-range result.
//
// The storage belongs to the Manager and is recycled by the next Clear. Use
// Valid to check a view that may have outlived its tick; At panics on a stale
// view. Copy what you need to keep with Others or Handles.
type NeighborView struct {
	m     *Manager
	gen   uint64
	self  Handle
	items []Neighbor
}

// Valid reports whether the view still belongs to the current rebuild cycle.
func (v NeighborView) Valid() bool {
	return v.m != nil && v.gen == v.m.gen
}

// Len returns the number of neighbors, including the queried creature itself
// when it is indexed.
func (v NeighborView) Len() int {
	return len(v.items)
}

// At returns the i-th neighbor in index order.
func (v NeighborView) At(i int) Neighbor {
	if !v.Valid() {
		panic("proximity: NeighborView used after Clear")
	}
	return v.items[i]
}

// Each calls fn for every neighbor until fn returns false.
func (v NeighborView) Each(fn func(Neighbor) bool) {
	for i := range v.items {
		if !fn(v.At(i)) {
			return
		}
	}
}

// Others returns an owned copy of the neighbors without the queried
// creature's own entry.
func (v NeighborView) Others() []Neighbor {
	out := make([]Neighbor, 0, len(v.items))
	v.Each(func(n Neighbor) bool {
		if n.Handle != v.self {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Handles returns an owned copy of the neighbor handles.
func (v NeighborView) Handles() []Handle {
	out := make([]Handle, 0, len(v.items))
	v.Each(func(n Neighbor) bool {
		out = append(out, n.Handle)
		return true
	})
	return out
}

// Closest returns the nearest neighbor accepted by keep, skipping the queried
// creature itself. Ties go to the lower handle so results do not depend on
// index layout.
func (v NeighborView) Closest(keep func(Neighbor) bool) (Neighbor, bool) {
	var best Neighbor
	found := false
	v.Each(func(n Neighbor) bool {
		if n.Handle == v.self || (keep != nil && !keep(n)) {
			return true
		}
		if !found || n.Distance < best.Distance || (n.Distance == best.Distance && n.Handle < best.Handle) {
			best, found = n, true
		}
		return true
	})
	return best, found
}
