// Package splittree implements the domain-tree: a binary partition of the
// input space whose leaves carry per-tree reachability of ensemble nodes.
//
// The domain-tree only grows. Splitting a leaf retires it and creates two
// children whose boxes partition the parent box along one feature; the
// children's reachability is the parent's, re-pruned against the new boxes.
package splittree

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
)

// Sentinel errors for domain-tree operations.
var (
	// ErrNotALeaf indicates the domain-tree node was already split.
	ErrNotALeaf = errors.New("domain-tree node is not a leaf")
	// ErrNoSplit indicates a leaf without a selected split.
	ErrNoSplit = errors.New("leaf has no split")
	// ErrUnknownNode indicates a domain-tree node id that does not exist.
	ErrUnknownNode = errors.New("unknown domain-tree node")
)

const noNode = -1

type node struct {
	box    domain.Box
	split  domain.Split
	left   int
	right  int
	parent int
}

// SplitTree is the domain-tree over one ensemble. It is not safe for
// concurrent use; one goroutine owns it.
type SplitTree struct {
	at     *addtree.AddTree
	nodes  []node
	leaves map[int]*Leaf
}

// New returns a domain-tree whose single root leaf covers box.
func New(at *addtree.AddTree, box domain.Box) *SplitTree {
	root := NewLeaf(at, 0, box)

	return &SplitTree{
		at:     at,
		nodes:  []node{{box: root.box, left: noNode, right: noNode, parent: noNode}},
		leaves: map[int]*Leaf{0: root},
	}
}

// AddTree returns the ensemble the domain-tree partitions.
func (st *SplitTree) AddTree() *addtree.AddTree { return st.at }

// Root returns the root node id.
func (st *SplitTree) Root() int { return 0 }

// NumNodes returns the number of domain-tree nodes, retired ones included.
func (st *SplitTree) NumNodes() int { return len(st.nodes) }

// NumLeaves returns the number of live leaves.
func (st *SplitTree) NumLeaves() int { return len(st.leaves) }

// IsLeaf reports whether id is a live leaf.
func (st *SplitTree) IsLeaf(id int) bool {
	_, ok := st.leaves[id]

	return ok
}

// Left returns the left child of id, or -1 for a leaf.
func (st *SplitTree) Left(id int) int { return st.nodes[id].left }

// Right returns the right child of id, or -1 for a leaf.
func (st *SplitTree) Right(id int) int { return st.nodes[id].right }

// Parent returns the parent of id, or -1 for the root.
func (st *SplitTree) Parent(id int) int { return st.nodes[id].parent }

// GetSplit returns the split that retired id.
func (st *SplitTree) GetSplit(id int) domain.Split { return st.nodes[id].split }

// Bounds returns the box of node id.
func (st *SplitTree) Bounds(id int) domain.Box { return st.nodes[id].box }

// Leaf returns the live leaf id.
func (st *SplitTree) Leaf(id int) (*Leaf, error) {
	if id < 0 || id >= len(st.nodes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}

	l, ok := st.leaves[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotALeaf, id)
	}

	return l, nil
}

// Leaves returns the ids of the live leaves in ascending order.
func (st *SplitTree) Leaves() []int {
	out := make([]int, 0, len(st.leaves))

	for id := range st.nodes {
		if _, ok := st.leaves[id]; ok {
			out = append(out, id)
		}
	}

	return out
}

// Replace stores l as the current state of its domain-tree leaf.
func (st *SplitTree) Replace(l *Leaf) error {
	if _, err := st.Leaf(l.id); err != nil {
		return err
	}

	st.leaves[l.id] = l

	return nil
}

// Split retires leaf l along its best split and returns the two new leaves.
// l may be a copy handed back by a worker; its reachability is used.
func (st *SplitTree) Split(l *Leaf) (left, right *Leaf, err error) {
	if _, err = st.Leaf(l.id); err != nil {
		return nil, nil, err
	}

	s, ok := l.BestSplit()
	if !ok {
		return nil, nil, fmt.Errorf("split %d: %w", l.id, ErrNoSplit)
	}

	lb, lok := l.box.Refine(s, true)
	rb, rok := l.box.Refine(s, false)

	if !lok || !rok {
		return nil, nil, fmt.Errorf("split %d at %s: %w", l.id, s, ErrNoSplit)
	}

	left, right = st.child(l, lb), st.child(l, rb)

	st.nodes[l.id].split = s
	st.nodes[l.id].left = left.id
	st.nodes[l.id].right = right.id

	delete(st.leaves, l.id)
	st.leaves[left.id] = left
	st.leaves[right.id] = right

	return left, right, nil
}

func (st *SplitTree) child(parent *Leaf, box domain.Box) *Leaf {
	c := parent.Clone()
	c.id = len(st.nodes)
	c.box = box
	c.hasSplit = false
	c.score, c.balance = 0, 0
	c.prune(st.at)

	st.nodes = append(st.nodes, node{box: box, left: noNode, right: noNode, parent: parent.id})

	return c
}
