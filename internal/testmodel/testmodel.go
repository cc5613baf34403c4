// Package testmodel builds small ensembles shared by tests.
package testmodel

import (
	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
)

// Depth2 returns a single depth-2 tree over three features:
//
//	x0 < 2 ? (x1 < 1 ? -1 : 2) : (x2 < 5 ? 3 : 0.5)
//
// Its maximum output is 3, reached only for x0 >= 2, x2 < 5.
func Depth2() *addtree.AddTree {
	t := addtree.NewTree()

	l, r := mustSplit(t, t.Root(), domain.Split{Feature: 0, Threshold: 2})
	ll, lr := mustSplit(t, l, domain.Split{Feature: 1, Threshold: 1})
	rl, rr := mustSplit(t, r, domain.Split{Feature: 2, Threshold: 5})

	mustValue(t, ll, -1)
	mustValue(t, lr, 2)
	mustValue(t, rl, 3)
	mustValue(t, rr, 0.5)

	at := addtree.New()
	at.Add(t)

	return at
}

// TwoTrees returns two depth-1 trees on the same feature plus a base score
// of 1:
//
//	t0: x0 < 3 ? 1 : -1
//	t1: x0 < 5 ? -2 : 4
//
// Reachable outputs: 0 (x0 < 3), -2 (3 <= x0 < 5), 4 (x0 >= 5).
func TwoTrees() *addtree.AddTree {
	at := addtree.New()
	at.BaseScore = 1

	t0 := addtree.NewTree()
	l, r := mustSplit(t0, t0.Root(), domain.Split{Feature: 0, Threshold: 3})
	mustValue(t0, l, 1)
	mustValue(t0, r, -1)
	at.Add(t0)

	t1 := addtree.NewTree()
	l, r = mustSplit(t1, t1.Root(), domain.Split{Feature: 0, Threshold: 5})
	mustValue(t1, l, -2)
	mustValue(t1, r, 4)
	at.Add(t1)

	return at
}

// Contradicting returns one tree whose right subtree re-tests x0 below the
// root threshold, so node 3 (x0 >= 2 and x0 < 1) can never be reached:
//
//	x0 < 2 ? 0 : (x0 < 1 ? 10 : (x1 < 0 ? 1 : 2))
func Contradicting() *addtree.AddTree {
	t := addtree.NewTree()

	l, r := mustSplit(t, t.Root(), domain.Split{Feature: 0, Threshold: 2})
	mustValue(t, l, 0)

	rl, rr := mustSplit(t, r, domain.Split{Feature: 0, Threshold: 1})
	mustValue(t, rl, 10)

	rrl, rrr := mustSplit(t, rr, domain.Split{Feature: 1, Threshold: 0})
	mustValue(t, rrl, 1)
	mustValue(t, rrr, 2)

	at := addtree.New()
	at.Add(t)

	return at
}

// Grid returns n depth-2 trees over two features with thresholds spread so
// that the domain-tree has many useful splits.
func Grid(n int) *addtree.AddTree {
	at := addtree.New()

	for i := range n {
		t := addtree.NewTree()
		th := float64(i + 1)

		l, r := mustSplit(t, t.Root(), domain.Split{Feature: 0, Threshold: th})
		ll, lr := mustSplit(t, l, domain.Split{Feature: 1, Threshold: th})
		rl, rr := mustSplit(t, r, domain.Split{Feature: 1, Threshold: -th})

		mustValue(t, ll, -1)
		mustValue(t, lr, 1)
		mustValue(t, rl, 0.5)
		mustValue(t, rr, -0.5)

		at.Add(t)
	}

	return at
}

func mustSplit(t *addtree.Tree, node int, s domain.Split) (int, int) {
	l, r, err := t.Split(node, s)
	if err != nil {
		panic(err)
	}

	return l, r
}

func mustValue(t *addtree.Tree, node int, v float64) {
	if err := t.SetLeafValue(node, v); err != nil {
		panic(err)
	}
}
