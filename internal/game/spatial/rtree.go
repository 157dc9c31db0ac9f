package spatial

import (
	"errors"
	"math"
)

// RTree is an in-memory R-tree (Guttman 1984, quadratic split) over int32
// boxes. Nodes live in a single slice and reference each other by index, so
// Clear keeps every allocation for the next rebuild.
//
// Memory layout: nodes[root] is the root; inner entries store a node index in
// ref, leaf entries store the caller's id.
type RTree struct {
	nodes []rtreeNode
	root  int32
	size  int

	minChildren int
	maxChildren int

	// Scratch buffers reused by split and Search.
	splitBuf []rtreeEntry
	restBuf  []rtreeEntry
	stack    []int32
}

type rtreeNode struct {
	entries []rtreeEntry
	parent  int32 // -1 for the root
	leaf    bool
}

type rtreeEntry struct {
	box AABB
	ref uint32
}

// NewRTree creates an empty tree whose non-root nodes hold between
// minChildren and maxChildren entries.
func NewRTree(minChildren, maxChildren int) (*RTree, error) {
	if maxChildren < 2 {
		return nil, errors.New("spatial: max children must be at least 2")
	}
	if minChildren < 1 || minChildren > maxChildren/2 {
		return nil, errors.New("spatial: min children must be between 1 and half of the max children")
	}
	return &RTree{
		root:        -1,
		minChildren: minChildren,
		maxChildren: maxChildren,
		splitBuf:    make([]rtreeEntry, 0, maxChildren+1),
		restBuf:     make([]rtreeEntry, 0, maxChildren+1),
		stack:       make([]int32, 0, 32),
	}, nil
}

// Len returns the number of stored entries.
func (t *RTree) Len() int {
	return t.size
}

// Clear resets the tree without deallocating node storage.
func (t *RTree) Clear() {
	t.nodes = t.nodes[:0]
	t.root = -1
	t.size = 0
}

// Insert adds box under id. Amortized O(log n); duplicates are not detected.
func (t *RTree) Insert(box AABB, id uint32) {
	if t.root < 0 {
		t.root = t.newNode(true, -1)
	}

	leaf := t.chooseLeaf(box)
	t.nodes[leaf].entries = append(t.nodes[leaf].entries, rtreeEntry{box: box, ref: id})
	t.size++

	t.adjust(leaf)
}

// Search calls fn for every entry whose box overlaps query.
func (t *RTree) Search(query AABB, fn func(box AABB, id uint32) bool) error {
	if !query.Valid() {
		return ErrInvalidRegion
	}
	if t.root < 0 {
		return nil
	}

	stack := append(t.stack[:0], t.root)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := &t.nodes[n]
		for _, e := range node.entries {
			if !e.box.Overlaps(query) {
				continue
			}
			if node.leaf {
				if !fn(e.box, e.ref) {
					t.stack = stack
					return nil
				}
				continue
			}
			stack = append(stack, int32(e.ref))
		}
	}
	t.stack = stack
	return nil
}

// Bounds returns the box covering every entry. ok is false for an empty tree.
func (t *RTree) Bounds() (box AABB, ok bool) {
	if t.size == 0 {
		return AABB{}, false
	}
	return t.nodeBounds(t.root), true
}

// Height returns the number of node levels, zero for an empty tree.
func (t *RTree) Height() int {
	if t.root < 0 {
		return 0
	}
	h := 1
	for n := t.root; !t.nodes[n].leaf; n = int32(t.nodes[n].entries[0].ref) {
		h++
	}
	return h
}

// Walk visits every node depth-first, children before their parent, with the
// node's covering box and its level (0 for leaves).
func (t *RTree) Walk(fn func(box AABB, level int)) {
	if t.root < 0 || t.size == 0 {
		return
	}
	t.walk(t.root, t.Height()-1, fn)
}

func (t *RTree) walk(n int32, level int, fn func(box AABB, level int)) {
	node := &t.nodes[n]
	if !node.leaf {
		for _, e := range node.entries {
			t.walk(int32(e.ref), level-1, fn)
		}
	}
	fn(t.nodeBounds(n), level)
}

// newNode appends a node, reusing the entry capacity of a node that occupied
// the slot before the last Clear.
func (t *RTree) newNode(leaf bool, parent int32) int32 {
	idx := len(t.nodes)
	if idx < cap(t.nodes) {
		t.nodes = t.nodes[:idx+1]
		n := &t.nodes[idx]
		n.entries = n.entries[:0]
		n.parent = parent
		n.leaf = leaf
	} else {
		t.nodes = append(t.nodes, rtreeNode{
			entries: make([]rtreeEntry, 0, t.maxChildren+1),
			parent:  parent,
			leaf:    leaf,
		})
	}
	return int32(idx)
}

// chooseLeaf descends from the root, following the child whose box needs the
// least enlargement (ties go to the smaller box).
func (t *RTree) chooseLeaf(box AABB) int32 {
	n := t.root
	for !t.nodes[n].leaf {
		entries := t.nodes[n].entries
		best := 0
		bestDelta := entries[0].box.enlargement(box)
		bestArea := entries[0].box.area()
		for i := 1; i < len(entries); i++ {
			delta := entries[i].box.enlargement(box)
			a := entries[i].box.area()
			if delta < bestDelta || (delta == bestDelta && a < bestArea) {
				best, bestDelta, bestArea = i, delta, a
			}
		}
		n = int32(entries[best].ref)
	}
	return n
}

// adjust walks from n to the root, refreshing covering boxes and propagating
// splits. A split of the root grows the tree by one level.
func (t *RTree) adjust(n int32) {
	sibling := int32(-1)
	if len(t.nodes[n].entries) > t.maxChildren {
		sibling = t.split(n)
	}

	for n != t.root {
		p := t.nodes[n].parent
		t.setChildBox(p, n)

		if sibling >= 0 {
			t.nodes[sibling].parent = p
			t.nodes[p].entries = append(t.nodes[p].entries, rtreeEntry{box: t.nodeBounds(sibling), ref: uint32(sibling)})
			sibling = -1
			if len(t.nodes[p].entries) > t.maxChildren {
				sibling = t.split(p)
			}
		}
		n = p
	}

	if sibling >= 0 {
		oldRoot := t.root
		root := t.newNode(false, -1)
		t.nodes[root].entries = append(t.nodes[root].entries,
			rtreeEntry{box: t.nodeBounds(oldRoot), ref: uint32(oldRoot)},
			rtreeEntry{box: t.nodeBounds(sibling), ref: uint32(sibling)},
		)
		t.nodes[oldRoot].parent = root
		t.nodes[sibling].parent = root
		t.root = root
	}
}

func (t *RTree) setChildBox(parent, child int32) {
	entries := t.nodes[parent].entries
	for i := range entries {
		if entries[i].ref == uint32(child) {
			entries[i].box = t.nodeBounds(child)
			return
		}
	}
}

func (t *RTree) nodeBounds(n int32) AABB {
	entries := t.nodes[n].entries
	if len(entries) == 0 {
		return AABB{}
	}
	box := entries[0].box
	for _, e := range entries[1:] {
		box = box.Union(e.box)
	}
	return box
}

// split divides an overflowing node with Guttman's quadratic algorithm. The
// first group stays in n, the second moves to a new sibling whose index is
// returned. The sibling inherits n's parent; callers re-link it.
func (t *RTree) split(n int32) int32 {
	all := append(t.splitBuf[:0], t.nodes[n].entries...)
	t.splitBuf = all

	s1, s2 := pickSeeds(all)
	rest := t.restBuf[:0]
	for i, e := range all {
		if i != s1 && i != s2 {
			rest = append(rest, e)
		}
	}
	t.restBuf = rest

	leaf := t.nodes[n].leaf
	sibling := t.newNode(leaf, t.nodes[n].parent)

	a := append(t.nodes[n].entries[:0], all[s1])
	b := append(t.nodes[sibling].entries[:0], all[s2])
	boxA, boxB := all[s1].box, all[s2].box

	for len(rest) > 0 {
		if len(a)+len(rest) <= t.minChildren {
			a = append(a, rest...)
			break
		}
		if len(b)+len(rest) <= t.minChildren {
			b = append(b, rest...)
			break
		}

		// Pick the entry with the strongest preference for one group.
		next, bestDiff := 0, -1.0
		for i, e := range rest {
			diff := math.Abs(boxA.enlargement(e.box) - boxB.enlargement(e.box))
			if diff > bestDiff {
				next, bestDiff = i, diff
			}
		}
		e := rest[next]
		rest[next] = rest[len(rest)-1]
		rest = rest[:len(rest)-1]

		dA, dB := boxA.enlargement(e.box), boxB.enlargement(e.box)
		toA := dA < dB
		if dA == dB {
			aA, aB := boxA.area(), boxB.area()
			toA = aA < aB || (aA == aB && len(a) <= len(b))
		}
		if toA {
			a = append(a, e)
			boxA = boxA.Union(e.box)
		} else {
			b = append(b, e)
			boxB = boxB.Union(e.box)
		}
	}

	t.nodes[n].entries = a
	t.nodes[sibling].entries = b
	if !leaf {
		for _, e := range b {
			t.nodes[e.ref].parent = sibling
		}
	}
	return sibling
}

// pickSeeds returns the pair of entries that would waste the most area if
// placed in the same node.
func pickSeeds(entries []rtreeEntry) (int, int) {
	s1, s2 := 0, 1
	worst := math.Inf(-1)
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			d := entries[i].box.Union(entries[j].box).area() - entries[i].box.area() - entries[j].box.area()
			if d > worst {
				s1, s2, worst = i, j, d
			}
		}
	}
	return s1, s2
}
