package splittree_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/forestcheck/internal/testmodel"
	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
	"github.com/Sumatoshi-tech/forestcheck/pkg/splittree"
)

func rootLeaf(t *testing.T, at *addtree.AddTree) (*splittree.SplitTree, *splittree.Leaf) {
	t.Helper()

	st := splittree.New(at, domain.Box{})

	l, err := st.Leaf(st.Root())
	require.NoError(t, err)

	return st, l
}

func TestNewLeaf_PrunesAgainstBox(t *testing.T) {
	t.Parallel()

	at := testmodel.Depth2()

	l := splittree.NewLeaf(at, 0, domain.Box{0: domain.New(3, 10)})

	assert.True(t, l.IsReachable(0, 0))
	assert.False(t, l.IsReachable(0, 1))
	assert.False(t, l.IsReachable(0, 3))
	assert.False(t, l.IsReachable(0, 4))
	assert.True(t, l.IsReachable(0, 2))
	assert.Equal(t, 4, l.ReachableCount(0))
	assert.Equal(t, 2, l.ReachableInternal(at))
	assert.ElementsMatch(t, []int{5, 6}, l.ReachableLeaves(at, 0))
}

func TestFindBestDomTreeSplit(t *testing.T) {
	t.Parallel()

	at := testmodel.Depth2()
	_, l := rootLeaf(t, at)

	require.True(t, l.FindBestDomTreeSplit(at, nil))

	s, ok := l.BestSplit()
	require.True(t, ok)
	assert.Equal(t, domain.Split{Feature: 0, Threshold: 2}, s)
	assert.Equal(t, 1, l.SplitScore())
	assert.Equal(t, 0, l.SplitBalance())
}

func TestFindBestDomTreeSplit_NoCandidate(t *testing.T) {
	t.Parallel()

	at := testmodel.Depth2()
	l := splittree.NewLeaf(at, 0, domain.Box{
		0: domain.New(3, 4),
		2: domain.New(0, 1),
	})

	assert.Empty(t, l.Candidates(at))
	assert.False(t, l.FindBestDomTreeSplit(at, nil))

	_, ok := l.BestSplit()
	assert.False(t, ok)
}

func TestFindBestDomTreeSplit_CustomScorer(t *testing.T) {
	t.Parallel()

	at := testmodel.Depth2()
	_, l := rootLeaf(t, at)

	preferLastFeature := splittree.ScorerFunc(func(_ *addtree.AddTree, _ *splittree.Leaf, s domain.Split) splittree.Candidate {
		return splittree.Candidate{Split: s, Score: s.Feature}
	})

	require.True(t, l.FindBestDomTreeSplit(at, preferLastFeature))

	s, _ := l.BestSplit()
	assert.Equal(t, 2, s.Feature)
}

func TestCandidate_Better(t *testing.T) {
	t.Parallel()

	base := splittree.Candidate{Split: domain.Split{Feature: 1, Threshold: 5}, Score: 3, Balance: 2}

	tests := []struct {
		name  string
		other splittree.Candidate
		want  bool
	}{
		{"higher score", splittree.Candidate{Split: base.Split, Score: 4, Balance: 9}, true},
		{"lower balance", splittree.Candidate{Split: base.Split, Score: 3, Balance: 1}, true},
		{"lower feature", splittree.Candidate{Split: domain.Split{Feature: 0, Threshold: 9}, Score: 3, Balance: 2}, true},
		{"lower threshold", splittree.Candidate{Split: domain.Split{Feature: 1, Threshold: 4}, Score: 3, Balance: 2}, true},
		{"worse score", splittree.Candidate{Split: base.Split, Score: 2}, false},
		{"identical", base, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.other.Better(base))
		})
	}
}

func TestSplitTree_Split(t *testing.T) {
	t.Parallel()

	at := testmodel.Depth2()
	st, root := rootLeaf(t, at)
	require.True(t, root.FindBestDomTreeSplit(at, nil))

	left, right, err := st.Split(root)
	require.NoError(t, err)

	assert.Equal(t, 1, left.DomTreeNodeID())
	assert.Equal(t, 2, right.DomTreeNodeID())
	assert.Equal(t, 3, st.NumNodes())
	assert.Equal(t, []int{1, 2}, st.Leaves())
	assert.False(t, st.IsLeaf(0))
	assert.Equal(t, 1, st.Left(0))
	assert.Equal(t, 2, st.Right(0))
	assert.Equal(t, 0, st.Parent(2))
	assert.Equal(t, domain.Split{Feature: 0, Threshold: 2}, st.GetSplit(0))

	assert.Equal(t, domain.Box{0: domain.New(math.Inf(-1), 2)}, st.Bounds(1))
	assert.Equal(t, domain.Box{0: domain.New(2, math.Inf(1))}, right.Box())

	// The left child can no longer reach the right subtree and vice versa.
	assert.False(t, left.IsReachable(0, 2))
	assert.False(t, left.IsReachable(0, 5))
	assert.True(t, left.IsReachable(0, 4))
	assert.False(t, right.IsReachable(0, 1))
	assert.True(t, right.IsReachable(0, 6))
	assert.Equal(t, 4, left.ReachableCount(0))
	assert.Equal(t, 4, right.ReachableCount(0))

	_, hasSplit := left.BestSplit()
	assert.False(t, hasSplit)
}

func TestSplitTree_SplitPartitionsParent(t *testing.T) {
	t.Parallel()

	at := testmodel.Grid(4)
	st, root := rootLeaf(t, at)

	queue := []*splittree.Leaf{root}
	for len(queue) > 0 && st.NumLeaves() < 12 {
		l := queue[0]
		queue = queue[1:]

		if !l.FindBestDomTreeSplit(at, nil) {
			continue
		}

		left, right, err := st.Split(l)
		require.NoError(t, err)

		queue = append(queue, left, right)
	}

	require.Greater(t, st.NumLeaves(), 1)

	points := [][]float64{{0, 0}, {0.5, 3.5}, {1, 1}, {2.5, -3}, {4, 4}, {-7, 100}, {3.99, -1}}
	for _, x := range points {
		hits := 0

		for _, id := range st.Leaves() {
			if st.Bounds(id).Contains(x) {
				hits++
			}
		}

		assert.Equal(t, 1, hits, "point %v", x)
	}
}

func TestSplitTree_SplitErrors(t *testing.T) {
	t.Parallel()

	at := testmodel.Depth2()
	st, root := rootLeaf(t, at)

	_, _, err := st.Split(root)
	require.ErrorIs(t, err, splittree.ErrNoSplit)

	require.True(t, root.FindBestDomTreeSplit(at, nil))

	_, _, err = st.Split(root)
	require.NoError(t, err)

	_, _, err = st.Split(root)
	require.ErrorIs(t, err, splittree.ErrNotALeaf)

	_, err = st.Leaf(0)
	require.ErrorIs(t, err, splittree.ErrNotALeaf)

	_, err = st.Leaf(99)
	require.ErrorIs(t, err, splittree.ErrUnknownNode)
}

func TestMerge(t *testing.T) {
	t.Parallel()

	at := testmodel.Depth2()
	st, root := rootLeaf(t, at)

	a, b := root.Clone(), root.Clone()
	a.MarkUnreachable(at, 0, 1)
	b.MarkUnreachable(at, 0, 6)

	merged, err := splittree.Merge(a, b)
	require.NoError(t, err)

	for _, n := range []int{1, 3, 4, 6} {
		assert.False(t, merged.IsReachable(0, n), "node %d", n)
	}

	assert.True(t, merged.IsReachable(0, 5))
	assert.True(t, root.IsReachable(0, 1), "inputs are not modified")

	require.NoError(t, st.Replace(merged))

	stored, err := st.Leaf(0)
	require.NoError(t, err)
	assert.Same(t, merged, stored)

	other := splittree.NewLeaf(at, 7, domain.Box{})
	_, err = splittree.Merge(a, other)
	require.ErrorIs(t, err, splittree.ErrLeafMismatch)

	_, err = splittree.Merge()
	require.ErrorIs(t, err, splittree.ErrNothingToMerge)
}

func TestLeafQueue_Order(t *testing.T) {
	t.Parallel()

	at := testmodel.Depth2()
	mk := func(id int, box domain.Box) *splittree.Leaf {
		l := splittree.NewLeaf(at, id, box)
		l.FindBestDomTreeSplit(at, nil)

		return l
	}

	wide := mk(5, domain.Box{})                        // score 1
	narrow := mk(2, domain.Box{0: domain.New(3, 4)})   // score 0
	tie := mk(1, domain.Box{0: domain.New(-1, 1)})     // score 0
	again := mk(9, domain.Box{1: domain.New(-10, 10)}) // score 1

	q := splittree.NewLeafQueue()
	for _, l := range []*splittree.Leaf{narrow, wide, tie, again} {
		q.Push(l)
	}

	q.Push(narrow)
	assert.Equal(t, 4, q.Len())

	top, ok := q.Peek()
	require.True(t, ok)
	assert.Same(t, wide, top)

	var ids []int
	for _, l := range q.Drain() {
		ids = append(ids, l.DomTreeNodeID())
	}

	assert.Equal(t, []int{5, 9, 1, 2}, ids)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestLeafSnapshot(t *testing.T) {
	t.Parallel()

	at := testmodel.Depth2()
	st, root := rootLeaf(t, at)
	require.True(t, root.FindBestDomTreeSplit(at, nil))

	_, right, err := st.Split(root)
	require.NoError(t, err)
	require.True(t, right.FindBestDomTreeSplit(at, nil))

	data, err := splittree.EncodeLeaf(right)
	require.NoError(t, err)

	back, err := splittree.DecodeLeaf(data)
	require.NoError(t, err)
	require.NoError(t, back.Fits(at))

	assert.Equal(t, right.DomTreeNodeID(), back.DomTreeNodeID())
	assert.Equal(t, right.Box(), back.Box())

	for n := range at.Tree(0).NumNodes() {
		assert.Equal(t, right.IsReachable(0, n), back.IsReachable(0, n), "node %d", n)
	}

	ws, _ := right.BestSplit()
	gs, ok := back.BestSplit()
	require.True(t, ok)
	assert.Equal(t, ws, gs)
	assert.Equal(t, right.SplitScore(), back.SplitScore())

	require.ErrorIs(t, back.Fits(testmodel.TwoTrees()), splittree.ErrSnapshotShape)

	dir := t.TempDir()
	require.NoError(t, splittree.SaveSnapshot(dir, "leaves", &splittree.Snapshot{RunID: "r", Leaves: []*splittree.Leaf{right}}))

	snap, err := splittree.LoadSnapshot(dir, "leaves")
	require.NoError(t, err)
	require.Len(t, snap.Leaves, 1)
	assert.Equal(t, "r", snap.RunID)
	assert.Equal(t, right.Box(), snap.Leaves[0].Box())
}
