package addtree_test

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/forestcheck/internal/testmodel"
	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
)

func TestTree_SplitAndNavigate(t *testing.T) {
	t.Parallel()

	tr := addtree.NewTree()
	assert.True(t, tr.IsLeaf(tr.Root()))
	assert.True(t, tr.IsRoot(0))
	assert.Equal(t, -1, tr.Parent(0))

	l, r, err := tr.Split(0, domain.Split{Feature: 1, Threshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, l)
	assert.Equal(t, 2, r)

	assert.True(t, tr.IsInternal(0))
	assert.Equal(t, l, tr.Left(0))
	assert.Equal(t, r, tr.Right(0))
	assert.Equal(t, 0, tr.Parent(l))
	assert.Equal(t, domain.Split{Feature: 1, Threshold: 0.5}, tr.GetSplit(0))
	assert.Equal(t, 3, tr.NumNodes())
	assert.Equal(t, 2, tr.NumLeaves())
	assert.Equal(t, []int{1, 2}, tr.Leaves())
	assert.Equal(t, []int{0}, tr.InternalNodes())
	assert.Equal(t, 1, tr.Depth(r))
	assert.Equal(t, 1, tr.MaxDepth())
}

func TestTree_Errors(t *testing.T) {
	t.Parallel()

	tr := addtree.NewTree()
	_, _, err := tr.Split(0, domain.Split{Feature: 0, Threshold: 1})
	require.NoError(t, err)

	_, _, err = tr.Split(0, domain.Split{Feature: 0, Threshold: 2})
	require.ErrorIs(t, err, addtree.ErrNotLeaf)

	require.ErrorIs(t, tr.SetLeafValue(0, 1), addtree.ErrNotLeaf)
	require.ErrorIs(t, tr.SetLeafValue(7, 1), addtree.ErrNodeRange)

	_, _, err = tr.Split(-1, domain.Split{})
	require.ErrorIs(t, err, addtree.ErrNodeRange)
}

func TestAddTree_Eval(t *testing.T) {
	t.Parallel()

	at := testmodel.Depth2()

	tests := []struct {
		name string
		x    []float64
		want float64
	}{
		{"left-left", []float64{0, 0, 0}, -1},
		{"left-right", []float64{1.9, 1, 100}, 2},
		{"right-left", []float64{2, 0, 4.99}, 3},
		{"right-right", []float64{5, 0, 5}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.InDelta(t, tt.want, at.Eval(tt.x), 1e-12)
		})
	}
}

func TestAddTree_PredictWithBaseScore(t *testing.T) {
	t.Parallel()

	at := testmodel.TwoTrees()

	got := at.Predict([][]float64{{0}, {3}, {4.5}, {5}, {100}})

	assert.Equal(t, []float64{0, -2, -2, 4, 4}, got)
}

func TestAddTree_Splits(t *testing.T) {
	t.Parallel()

	at := testmodel.TwoTrees()
	at.Add(testmodel.TwoTrees().Tree(0))

	assert.Equal(t, map[int][]float64{0: {3, 5}}, at.Splits())
	assert.Equal(t, 1, at.NumFeatures())

	d2 := testmodel.Depth2()
	assert.Equal(t, map[int][]float64{0: {2}, 1: {1}, 2: {5}}, d2.Splits())
	assert.Equal(t, 3, d2.NumFeatures())
}

func TestAddTree_Summarize(t *testing.T) {
	t.Parallel()

	s := testmodel.Depth2().Summarize()

	assert.Equal(t, addtree.Summary{
		Trees: 1, Nodes: 7, Leaves: 4, MaxDepth: 2, Features: 3, Thresholds: 3,
	}, s)
}

func TestTree_PathBox(t *testing.T) {
	t.Parallel()

	tr := testmodel.Depth2().Tree(0)

	box, ok := tr.PathBox(3)
	require.True(t, ok)
	assert.Equal(t, domain.Box{0: domain.New(math.Inf(-1), 2), 1: domain.New(math.Inf(-1), 1)}, box)

	box, ok = tr.PathBox(6)
	require.True(t, ok)
	assert.Equal(t, domain.Box{0: domain.New(2, inf()), 2: domain.New(5, inf())}, box)

	_, ok = testmodel.Contradicting().Tree(0).PathBox(3)
	assert.False(t, ok)
}

func TestTree_LeavesIn(t *testing.T) {
	t.Parallel()

	tr := testmodel.Depth2().Tree(0)

	assert.ElementsMatch(t, []int{3, 4, 5, 6}, tr.LeavesIn(domain.Box{}, nil))
	assert.ElementsMatch(t, []int{5, 6}, tr.LeavesIn(domain.Box{0: domain.New(2, 10)}, nil))
	assert.ElementsMatch(t, []int{4, 5}, tr.LeavesIn(domain.Box{1: domain.New(1, 2), 2: domain.New(0, 5)}, nil))

	pruned := tr.LeavesIn(domain.Box{}, func(node int) bool { return node == 1 })
	assert.ElementsMatch(t, []int{5, 6}, pruned)
}

func TestJSON_RoundTripPreservesPredictions(t *testing.T) {
	t.Parallel()

	at := testmodel.Depth2()
	at.BaseScore = 0.25

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, at.Write(path))

	back, err := addtree.Read(path)
	require.NoError(t, err)

	assert.Equal(t, at.Summarize(), back.Summarize())

	for _, x := range [][]float64{{0, 0, 0}, {0, 5, 0}, {3, 0, 1}, {3, 0, 9}} {
		assert.InDelta(t, at.Eval(x), back.Eval(x), 1e-12)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "missing trees",
			doc:  `{"base_score": 1}`,
			want: addtree.ErrSchema,
		},
		{
			name: "leaf with children",
			doc:  `{"trees":[{"nodes":[{"id":0,"value":1,"left":1}]}]}`,
			want: addtree.ErrSchema,
		},
		{
			name: "internal without threshold",
			doc:  `{"trees":[{"nodes":[{"id":0,"feature":0,"left":1,"right":2}]}]}`,
			want: addtree.ErrSchema,
		},
		{
			name: "child out of range",
			doc:  `{"trees":[{"nodes":[{"id":0,"feature":0,"threshold":1,"left":1,"right":5},{"id":1,"value":0}]}]}`,
			want: addtree.ErrMalformedTree,
		},
		{
			name: "duplicate id",
			doc:  `{"trees":[{"nodes":[{"id":0,"value":0},{"id":0,"value":1}]}]}`,
			want: addtree.ErrMalformedTree,
		},
		{
			name: "orphan node",
			doc:  `{"trees":[{"nodes":[{"id":0,"value":0},{"id":1,"value":1}]}]}`,
			want: addtree.ErrMalformedTree,
		},
		{
			name: "shared child",
			doc: `{"trees":[{"nodes":[
				{"id":0,"feature":0,"threshold":1,"left":1,"right":2},
				{"id":1,"feature":0,"threshold":0,"left":2,"right":3},
				{"id":2,"value":0},{"id":3,"value":1}]}]}`,
			want: addtree.ErrMalformedTree,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := addtree.Decode(strings.NewReader(tt.doc))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecode_Valid(t *testing.T) {
	t.Parallel()

	doc := `{"base_score": 0.5, "trees": [{"nodes": [
		{"id": 0, "feature": 0, "threshold": 1.5, "left": 1, "right": 2},
		{"id": 2, "value": 3},
		{"id": 1, "value": -1}
	]}]}`

	at, err := addtree.Decode(bytes.NewBufferString(doc))
	require.NoError(t, err)

	assert.InDelta(t, -0.5, at.Eval([]float64{1}), 1e-12)
	assert.InDelta(t, 3.5, at.Eval([]float64{1.5}), 1e-12)
	assert.Equal(t, 0, at.Tree(0).Parent(2))
}

func TestRead_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := addtree.Read(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func inf() float64 { return math.Inf(1) }
