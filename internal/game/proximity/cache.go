package proximity

// nearbyCache memoizes visual-range results per querying creature.
//
// All lists share one arena so a rebuild cycle costs a single growing
// allocation; reset keeps the arena's capacity for the next tick. Lists are
// never modified after they are stored, so views handed out earlier in the
// cycle stay correct even when the arena grows.
type nearbyCache struct {
	spans map[Handle]span
	arena []Neighbor
}

type span struct {
	off, n int
}

func newNearbyCache(capacity int) nearbyCache {
	return nearbyCache{
		spans: make(map[Handle]span, capacity),
		arena: make([]Neighbor, 0, capacity*8),
	}
}

// get returns the cached list for h.
func (c *nearbyCache) get(h Handle) ([]Neighbor, bool) {
	s, ok := c.spans[h]
	if !ok {
		return nil, false
	}
	return c.arena[s.off : s.off+s.n : s.off+s.n], true
}

// begin returns the arena offset at which the next list starts.
func (c *nearbyCache) begin() int {
	return len(c.arena)
}

func (c *nearbyCache) push(n Neighbor) {
	c.arena = append(c.arena, n)
}

// commit stores everything pushed since off as the list for h.
func (c *nearbyCache) commit(h Handle, off int) []Neighbor {
	c.spans[h] = span{off: off, n: len(c.arena) - off}
	list, _ := c.get(h)
	return list
}

// rollback drops everything pushed since off.
func (c *nearbyCache) rollback(off int) {
	c.arena = c.arena[:off]
}

func (c *nearbyCache) len() int {
	return len(c.spans)
}

func (c *nearbyCache) reset() {
	clear(c.spans)
	c.arena = c.arena[:0]
}
