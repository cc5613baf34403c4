// Package addtree implements additive tree ensembles: an ordered list of binary
// decision trees whose leaf values are summed on top of a base score.
package addtree

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
)

// rootID is the id of every tree's root node.
const rootID = 0

// noNode marks an absent parent or child.
const noNode = -1

// Sentinel errors for tree construction and lookup.
var (
	// ErrNotLeaf indicates an operation that requires a leaf was given an internal node.
	ErrNotLeaf = errors.New("node is not a leaf")
	// ErrNodeRange indicates a node id outside the tree.
	ErrNodeRange = errors.New("node id out of range")
)

// Node is one node of a flat tree. Internal nodes carry Split and children;
// leaves carry Value.
type Node struct {
	Split  domain.Split
	Value  float64
	Left   int
	Right  int
	Parent int
}

// IsLeaf reports whether n has no children.
func (n Node) IsLeaf() bool { return n.Left == noNode }

// Tree is a binary decision tree stored as a flat node array. Node 0 is the
// root. Trees grow by splitting leaves; once added to an AddTree they are
// read-only.
type Tree struct {
	nodes []Node
}

// NewTree returns a tree consisting of a single leaf with value 0.
func NewTree() *Tree {
	return &Tree{nodes: []Node{{Left: noNode, Right: noNode, Parent: noNode}}}
}

// Root returns the root node id.
func (t *Tree) Root() int { return rootID }

// NumNodes returns the total node count.
func (t *Tree) NumNodes() int { return len(t.nodes) }

// NumLeaves returns the number of leaves.
func (t *Tree) NumLeaves() int {
	n := 0

	for i := range t.nodes {
		if t.nodes[i].IsLeaf() {
			n++
		}
	}

	return n
}

// Node returns a copy of node id.
func (t *Tree) Node(id int) Node { return t.nodes[id] }

// IsLeaf reports whether id is a leaf.
func (t *Tree) IsLeaf(id int) bool { return t.nodes[id].IsLeaf() }

// IsInternal reports whether id has children.
func (t *Tree) IsInternal(id int) bool { return !t.nodes[id].IsLeaf() }

// IsRoot reports whether id is the root.
func (t *Tree) IsRoot(id int) bool { return id == rootID }

// Left returns the left child of id.
func (t *Tree) Left(id int) int { return t.nodes[id].Left }

// Right returns the right child of id.
func (t *Tree) Right(id int) int { return t.nodes[id].Right }

// Parent returns the parent of id, or -1 for the root.
func (t *Tree) Parent(id int) int { return t.nodes[id].Parent }

// GetSplit returns the decision of internal node id.
func (t *Tree) GetSplit(id int) domain.Split { return t.nodes[id].Split }

// LeafValue returns the value of leaf id.
func (t *Tree) LeafValue(id int) float64 { return t.nodes[id].Value }

// SetLeafValue assigns the value of leaf id.
func (t *Tree) SetLeafValue(id int, v float64) error {
	if err := t.checkID(id); err != nil {
		return err
	}

	if !t.nodes[id].IsLeaf() {
		return fmt.Errorf("set value of %d: %w", id, ErrNotLeaf)
	}

	t.nodes[id].Value = v

	return nil
}

// Split turns leaf id into an internal node with two fresh leaves and
// returns their ids.
func (t *Tree) Split(id int, s domain.Split) (left, right int, err error) {
	if err = t.checkID(id); err != nil {
		return 0, 0, err
	}

	if !t.nodes[id].IsLeaf() {
		return 0, 0, fmt.Errorf("split %d: %w", id, ErrNotLeaf)
	}

	left, right = len(t.nodes), len(t.nodes)+1
	t.nodes = append(t.nodes,
		Node{Left: noNode, Right: noNode, Parent: id},
		Node{Left: noNode, Right: noNode, Parent: id},
	)

	t.nodes[id].Split = s
	t.nodes[id].Left = left
	t.nodes[id].Right = right
	t.nodes[id].Value = 0

	return left, right, nil
}

func (t *Tree) checkID(id int) error {
	if id < 0 || id >= len(t.nodes) {
		return fmt.Errorf("%w: %d", ErrNodeRange, id)
	}

	return nil
}

// Depth returns the number of edges between the root and id.
func (t *Tree) Depth(id int) int {
	d := 0
	for p := t.nodes[id].Parent; p != noNode; p = t.nodes[p].Parent {
		d++
	}

	return d
}

// MaxDepth returns the depth of the deepest leaf.
func (t *Tree) MaxDepth() int {
	maxd := 0

	for id := range t.nodes {
		if t.nodes[id].IsLeaf() {
			maxd = max(maxd, t.Depth(id))
		}
	}

	return maxd
}

// EvalNode routes x from the root and returns the leaf it reaches.
func (t *Tree) EvalNode(x []float64) int {
	id := rootID
	for !t.nodes[id].IsLeaf() {
		n := t.nodes[id]
		if n.Split.GoesLeft(x) {
			id = n.Left
		} else {
			id = n.Right
		}
	}

	return id
}

// Eval returns the leaf value reached by x.
func (t *Tree) Eval(x []float64) float64 {
	return t.nodes[t.EvalNode(x)].Value
}

// PathBox returns the box of inputs routed through node id, and false when
// the decisions on the path contradict each other.
func (t *Tree) PathBox(id int) (domain.Box, bool) {
	box := domain.Box{}

	for child, p := id, t.nodes[id].Parent; p != noNode; child, p = p, t.nodes[p].Parent {
		s := t.nodes[p].Split

		var (
			d  domain.RealDomain
			ok bool
		)

		if t.nodes[p].Left == child {
			d, ok = box.Get(s.Feature).Lt(s.Threshold)
		} else {
			d, ok = box.Get(s.Feature).Ge(s.Threshold)
		}

		if !ok {
			return nil, false
		}

		box[s.Feature] = d
	}

	return box, true
}

// Leaves returns all leaf ids in ascending order.
func (t *Tree) Leaves() []int {
	out := make([]int, 0, len(t.nodes)/2+1)

	for id := range t.nodes {
		if t.nodes[id].IsLeaf() {
			out = append(out, id)
		}
	}

	return out
}

// InternalNodes returns all internal node ids in ascending order.
func (t *Tree) InternalNodes() []int {
	out := make([]int, 0, len(t.nodes)/2)

	for id := range t.nodes {
		if !t.nodes[id].IsLeaf() {
			out = append(out, id)
		}
	}

	return out
}

// LeavesIn returns the leaves whose path box overlaps box, descending only
// into children for which prune returns false. prune may be nil.
func (t *Tree) LeavesIn(box domain.Box, prune func(node int) bool) []int {
	var out []int

	stack := []int{rootID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if prune != nil && prune(id) {
			continue
		}

		n := t.nodes[id]
		if n.IsLeaf() {
			out = append(out, id)

			continue
		}

		if box.CanGoRight(n.Split) {
			stack = append(stack, n.Right)
		}

		if box.CanGoLeft(n.Split) {
			stack = append(stack, n.Left)
		}
	}

	return out
}
