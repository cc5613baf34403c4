package addtree

import (
	"slices"
)

// AddTree is an additive ensemble. The prediction for x is BaseScore plus the
// sum of every tree's leaf value reached by x. An AddTree is shared read-only
// between verification tasks once built.
type AddTree struct {
	trees     []*Tree
	BaseScore float64
}

// New returns an empty ensemble.
func New() *AddTree {
	return &AddTree{}
}

// Add appends t and returns its index.
func (a *AddTree) Add(t *Tree) int {
	a.trees = append(a.trees, t)

	return len(a.trees) - 1
}

// Len returns the number of trees.
func (a *AddTree) Len() int { return len(a.trees) }

// Tree returns tree i.
func (a *AddTree) Tree(i int) *Tree { return a.trees[i] }

// Trees returns the trees in order. The slice must not be modified.
func (a *AddTree) Trees() []*Tree { return a.trees }

// Eval predicts a single example.
func (a *AddTree) Eval(x []float64) float64 {
	out := a.BaseScore
	for _, t := range a.trees {
		out += t.Eval(x)
	}

	return out
}

// Predict evaluates every example.
func (a *AddTree) Predict(xs [][]float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = a.Eval(x)
	}

	return out
}

// Splits returns, per feature, the sorted unique thresholds used by any
// internal node of any tree.
func (a *AddTree) Splits() map[int][]float64 {
	out := make(map[int][]float64)

	for _, t := range a.trees {
		for _, n := range t.nodes {
			if n.IsLeaf() {
				continue
			}

			out[n.Split.Feature] = append(out[n.Split.Feature], n.Split.Threshold)
		}
	}

	for f, ts := range out {
		slices.Sort(ts)
		out[f] = slices.Compact(ts)
	}

	return out
}

// NumFeatures returns one more than the highest feature id used.
func (a *AddTree) NumFeatures() int {
	n := 0

	for _, t := range a.trees {
		for _, node := range t.nodes {
			if !node.IsLeaf() {
				n = max(n, node.Split.Feature+1)
			}
		}
	}

	return n
}

// Summary holds structural counts of an ensemble.
type Summary struct {
	Trees      int     `json:"trees"       yaml:"trees"`
	Nodes      int     `json:"nodes"       yaml:"nodes"`
	Leaves     int     `json:"leaves"      yaml:"leaves"`
	MaxDepth   int     `json:"max_depth"   yaml:"max_depth"`
	Features   int     `json:"features"    yaml:"features"`
	Thresholds int     `json:"thresholds"  yaml:"thresholds"`
	BaseScore  float64 `json:"base_score"  yaml:"base_score"`
}

// Summarize counts trees, nodes, leaves and split thresholds.
func (a *AddTree) Summarize() Summary {
	s := Summary{Trees: len(a.trees), BaseScore: a.BaseScore, Features: a.NumFeatures()}

	for _, t := range a.trees {
		s.Nodes += t.NumNodes()
		s.Leaves += t.NumLeaves()
		s.MaxDepth = max(s.MaxDepth, t.MaxDepth())
	}

	for _, ts := range a.Splits() {
		s.Thresholds += len(ts)
	}

	return s
}
