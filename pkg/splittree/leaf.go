package splittree

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
)

// Sentinel errors for leaves.
var (
	// ErrLeafMismatch indicates a merge of leaves with different domain-tree ids.
	ErrLeafMismatch = errors.New("leaves belong to different domain-tree nodes")
	// ErrNothingToMerge indicates Merge was called without leaves.
	ErrNothingToMerge = errors.New("no leaves to merge")
)

const wordBits = 64

// bitset is a fixed-size set of tree node ids.
type bitset []uint64

func newFullBitset(n int) bitset {
	b := make(bitset, (n+wordBits-1)/wordBits)
	for i := range b {
		b[i] = ^uint64(0)
	}

	if r := n % wordBits; r != 0 {
		b[len(b)-1] = (uint64(1) << r) - 1
	}

	return b
}

func (b bitset) has(i int) bool { return b[i/wordBits]&(uint64(1)<<(i%wordBits)) != 0 }
func (b bitset) clear(i int)    { b[i/wordBits] &^= uint64(1) << (i % wordBits) }

func (b bitset) count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}

	return n
}

// Leaf is a leaf of the domain-tree: a box of the input space plus, for
// every tree of the ensemble, the set of tree nodes that inputs in the box
// may still reach. A Leaf is owned by one goroutine at a time.
type Leaf struct {
	id    int
	box   domain.Box
	reach []bitset

	best     domain.Split
	hasSplit bool
	score    int
	balance  int
}

// NewLeaf returns a leaf for box with every tree node reachable, then prunes
// the nodes whose decisions exclude box.
func NewLeaf(at *addtree.AddTree, id int, box domain.Box) *Leaf {
	l := &Leaf{id: id, box: box.Clone(), reach: make([]bitset, at.Len())}

	for i, t := range at.Trees() {
		l.reach[i] = newFullBitset(t.NumNodes())
	}

	l.prune(at)

	return l
}

// DomTreeNodeID returns the id of the domain-tree node this leaf represents.
func (l *Leaf) DomTreeNodeID() int { return l.id }

// Box returns the leaf's region. The box must not be modified.
func (l *Leaf) Box() domain.Box { return l.box }

// NumTrees returns the number of per-tree reachability sets.
func (l *Leaf) NumTrees() int { return len(l.reach) }

// IsReachable reports whether inputs in the leaf may reach node of tree.
func (l *Leaf) IsReachable(tree, node int) bool { return l.reach[tree].has(node) }

// MarkUnreachable removes node and its whole subtree from tree's reachable set.
func (l *Leaf) MarkUnreachable(at *addtree.AddTree, tree, node int) {
	t := at.Tree(tree)
	r := l.reach[tree]

	stack := []int{node}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		r.clear(id)

		if t.IsInternal(id) {
			stack = append(stack, t.Left(id), t.Right(id))
		}
	}

	l.hasSplit = false
}

// ReachableCount returns the number of reachable nodes of tree.
func (l *Leaf) ReachableCount(tree int) int { return l.reach[tree].count() }

// ReachableInternal returns the number of reachable internal nodes summed
// over every tree.
func (l *Leaf) ReachableInternal(at *addtree.AddTree) int {
	return l.countInternal(at, l.box)
}

// ReachableLeaves returns the reachable leaves of tree within the leaf box.
func (l *Leaf) ReachableLeaves(at *addtree.AddTree, tree int) []int {
	r := l.reach[tree]

	return at.Tree(tree).LeavesIn(l.box, func(node int) bool { return !r.has(node) })
}

// BestSplit returns the split chosen by the last FindBestDomTreeSplit and
// whether one exists.
func (l *Leaf) BestSplit() (domain.Split, bool) { return l.best, l.hasSplit }

// SplitScore returns the score of the best split.
func (l *Leaf) SplitScore() int { return l.score }

// SplitBalance returns the balance of the best split. Lower is better.
func (l *Leaf) SplitBalance() int { return l.balance }

// Clone returns an independent copy of the leaf.
func (l *Leaf) Clone() *Leaf {
	c := *l
	c.box = l.box.Clone()

	c.reach = make([]bitset, len(l.reach))
	for i, r := range l.reach {
		c.reach[i] = append(bitset(nil), r...)
	}

	return &c
}

func (l *Leaf) String() string {
	return fmt.Sprintf("Leaf(%d, %s)", l.id, l.box)
}

// prune clears every node whose path from the root is infeasible in the box.
func (l *Leaf) prune(at *addtree.AddTree) {
	for i, t := range at.Trees() {
		r := l.reach[i]

		stack := []int{t.Root()}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if !r.has(id) || t.IsLeaf(id) {
				continue
			}

			s := t.GetSplit(id)

			if l.box.CanGoLeft(s) {
				stack = append(stack, t.Left(id))
			} else if r.has(t.Left(id)) {
				l.MarkUnreachable(at, i, t.Left(id))
			}

			if l.box.CanGoRight(s) {
				stack = append(stack, t.Right(id))
			} else if r.has(t.Right(id)) {
				l.MarkUnreachable(at, i, t.Right(id))
			}
		}
	}
}

// countInternal counts the reachable internal nodes that inputs in box can
// still visit, without modifying the leaf.
func (l *Leaf) countInternal(at *addtree.AddTree, box domain.Box) int {
	n := 0

	for i, t := range at.Trees() {
		r := l.reach[i]

		stack := []int{t.Root()}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if !r.has(id) || t.IsLeaf(id) {
				continue
			}

			n++

			s := t.GetSplit(id)
			if box.CanGoLeft(s) {
				stack = append(stack, t.Left(id))
			}

			if box.CanGoRight(s) {
				stack = append(stack, t.Right(id))
			}
		}
	}

	return n
}

// Merge combines copies of the same domain-tree leaf that were pruned
// independently. A node stays reachable only if every copy still reaches it.
func Merge(leaves ...*Leaf) (*Leaf, error) {
	if len(leaves) == 0 {
		return nil, ErrNothingToMerge
	}

	out := leaves[0].Clone()
	out.hasSplit = false

	for _, l := range leaves[1:] {
		if l.id != out.id {
			return nil, fmt.Errorf("%w: %d and %d", ErrLeafMismatch, out.id, l.id)
		}

		for t := range out.reach {
			for w := range out.reach[t] {
				out.reach[t][w] &= l.reach[t][w]
			}
		}
	}

	return out, nil
}
