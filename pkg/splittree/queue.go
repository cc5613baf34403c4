package splittree

import (
	"github.com/google/btree"
)

const queueDegree = 8

type queueItem struct {
	score int
	id    int
	leaf  *Leaf
}

func lessItem(a, b queueItem) bool {
	if a.score != b.score {
		return a.score > b.score
	}

	return a.id < b.id
}

// LeafQueue orders leaves for splitting: highest split score first, lowest
// domain-tree id on ties. Scores are captured at push time.
type LeafQueue struct {
	tree *btree.BTreeG[queueItem]
}

// NewLeafQueue returns an empty queue.
func NewLeafQueue() *LeafQueue {
	return &LeafQueue{tree: btree.NewG(queueDegree, lessItem)}
}

// Push adds l. A leaf already queued under the same id is replaced.
func (q *LeafQueue) Push(l *Leaf) {
	var (
		stale queueItem
		found bool
	)

	q.tree.Ascend(func(it queueItem) bool {
		if it.id == l.id {
			stale, found = it, true
		}

		return !found
	})

	if found {
		q.tree.Delete(stale)
	}

	q.tree.ReplaceOrInsert(queueItem{score: l.score, id: l.id, leaf: l})
}

// Pop removes and returns the best leaf, or false when empty.
func (q *LeafQueue) Pop() (*Leaf, bool) {
	it, ok := q.tree.DeleteMin()
	if !ok {
		return nil, false
	}

	return it.leaf, true
}

// Peek returns the best leaf without removing it.
func (q *LeafQueue) Peek() (*Leaf, bool) {
	it, ok := q.tree.Min()

	return it.leaf, ok
}

// Len returns the number of queued leaves.
func (q *LeafQueue) Len() int { return q.tree.Len() }

// Drain removes every leaf in queue order.
func (q *LeafQueue) Drain() []*Leaf {
	out := make([]*Leaf, 0, q.tree.Len())
	for l, ok := q.Pop(); ok; l, ok = q.Pop() {
		out = append(out, l)
	}

	return out
}
