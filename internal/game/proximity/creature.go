package proximity

import "reflect"

// AddCreature indexes c's footprint. It returns false for a nil creature
// (including a nil pointer in a non-nil interface) or a
// handle already indexed this cycle; callers are expected to log and go on.
func (m *Manager) AddCreature(c Creature) bool {
	if isNil(c) {
		return false
	}
	return m.Add(NodeFor(c))
}

// NearbyCreatures is NearbyInVisualRange for c at its current position.
// visualRange comes from the caller's creature stats.
func (m *Manager) NearbyCreatures(c Creature, visualRange uint32) (NeighborView, error) {
	if isNil(c) {
		return NeighborView{}, ErrNilCreature
	}
	return m.NearbyInVisualRange(c.Handle(), c.Position(), visualRange)
}

// NearestCreatureSearch is NearestSearch around c's position.
func (m *Manager) NearestCreatureSearch(c Creature, radius uint32) ([]Handle, error) {
	if isNil(c) {
		return nil, ErrNilCreature
	}
	return m.NearestSearch(c.Position(), radius)
}

func isNil(c Creature) bool {
	if c == nil {
		return true
	}
	switch v := reflect.ValueOf(c); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
