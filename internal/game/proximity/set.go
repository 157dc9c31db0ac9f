package proximity

// handleSet guards the index against inserting the same handle twice within
// one rebuild cycle.
type handleSet struct {
	seen map[Handle]struct{}
}

func newHandleSet(capacity int) handleSet {
	return handleSet{seen: make(map[Handle]struct{}, capacity)}
}

// add records h and reports whether it was new.
func (s *handleSet) add(h Handle) bool {
	if _, ok := s.seen[h]; ok {
		return false
	}
	s.seen[h] = struct{}{}
	return true
}

func (s *handleSet) has(h Handle) bool {
	_, ok := s.seen[h]
	return ok
}

func (s *handleSet) len() int {
	return len(s.seen)
}

func (s *handleSet) reset() {
	clear(s.seen)
}
