package verifier

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/boxcheck"
	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
	"github.com/Sumatoshi-tech/forestcheck/pkg/splittree"
)

// Search tuning.
const (
	// propagateRounds bounds the fixed-point loop per search node.
	propagateRounds = 8
	// deadlineStride is the number of search nodes between clock reads.
	deadlineStride = 64
	// DefaultPrecheckLimit is the largest candidate-leaf count for which the
	// pseudo-boolean pre-check runs.
	DefaultPrecheckLimit = 512
)

// candidate is one reachable tree leaf together with its path box.
type candidate struct {
	node  int
	value float64
	box   domain.Box
}

// BoxOption configures a BoxSolver.
type BoxOption func(*BoxSolver)

// WithPrecheckLimit sets the candidate count above which the pseudo-boolean
// pre-check is skipped. Zero disables the pre-check.
func WithPrecheckLimit(n int) BoxOption {
	return func(s *BoxSolver) { s.precheckLimit = n }
}

// BoxSolver searches the combinations of reachable tree leaves whose path
// boxes intersect inside the domain-tree leaf. It is exact: SAT comes with a
// concrete witness and UNSAT means no input in the leaf satisfies the
// property.
type BoxSolver struct {
	at   *addtree.AddTree
	leaf *splittree.Leaf
	prop Property

	timeout       time.Duration
	precheckLimit int

	loaded    bool
	template  *boxcheck.Checker
	numTrees  int
	biasVar   int
	outVar    int
	candCache [][]candidate

	model     Model
	hasModel  bool
	checkTime time.Duration
	explored  int
}

// NewBoxSolver returns a solver for leaf searching outputs that satisfy prop.
func NewBoxSolver(at *addtree.AddTree, leaf *splittree.Leaf, prop Property, opts ...BoxOption) (*BoxSolver, error) {
	if err := prop.Validate(); err != nil {
		return nil, err
	}

	s := &BoxSolver{at: at, leaf: leaf, prop: prop, precheckLimit: DefaultPrecheckLimit}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// NewBoxFactory returns a Factory building BoxSolvers for prop.
func NewBoxFactory(prop Property, opts ...BoxOption) Factory {
	return func(at *addtree.AddTree, leaf *splittree.Leaf) (Solver, error) {
		return NewBoxSolver(at, leaf, prop, opts...)
	}
}

// XVar implements Solver.
func (s *BoxSolver) XVar(feature int) Var { return Var{Feature: feature} }

// SetTimeout implements Solver.
func (s *BoxSolver) SetTimeout(d time.Duration) { s.timeout = d }

// CheckTime implements Solver.
func (s *BoxSolver) CheckTime() time.Duration { return s.checkTime }

// Explored returns the number of search nodes visited by the last Check.
func (s *BoxSolver) Explored() int { return s.explored }

// Model implements Solver.
func (s *BoxSolver) Model() (Model, error) {
	if !s.hasModel {
		return Model{}, ErrNoModel
	}

	return s.model, nil
}

// AddAllTrees builds the bound-propagation graph: one variable per tree
// output, a bias fixed to the base score and an output variable equal to
// their sum.
func (s *BoxSolver) AddAllTrees() error {
	n := s.at.Len()

	// Base variables: tree outputs [0, n), bias n, output n+1. Derived: n sums.
	c, err := boxcheck.New(n+2, 2*n+2)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSolverFault, err)
	}

	acc := n
	for i := range n {
		if acc, err = c.AddSum(acc, i); err != nil {
			return fmt.Errorf("%w: %w", ErrSolverFault, err)
		}
	}

	if err := c.AddEq(acc, n+1); err != nil {
		return fmt.Errorf("%w: %w", ErrSolverFault, err)
	}

	s.template = c
	s.numTrees = n
	s.biasVar = n
	s.outVar = n + 1
	s.candCache = make([][]candidate, n)

	for i, t := range s.at.Trees() {
		for _, id := range s.leaf.ReachableLeaves(s.at, i) {
			pb, ok := t.PathBox(id)
			if !ok {
				continue
			}

			s.candCache[i] = append(s.candCache[i], candidate{node: id, value: t.LeafValue(id), box: pb})
		}
	}

	s.loaded = true

	return nil
}

// Check implements Solver.
func (s *BoxSolver) Check(ctx context.Context, constraints ...Expr) (Status, error) {
	start := time.Now()
	defer func() { s.checkTime = time.Since(start) }()

	s.hasModel = false
	s.explored = 0

	if err := ctx.Err(); err != nil {
		return StatusUnknown, err
	}

	box, ok := s.leaf.Box().Meet(s.prop.Inputs)
	if ok {
		box, ok = Restrict(box, constraints...)
	}

	if !ok {
		return StatusUnsat, nil
	}

	if !s.loaded {
		s.setModel(box.Point(s.numFeatures()), math.NaN())

		return StatusSat, nil
	}

	var deadline time.Time
	if s.timeout > 0 {
		deadline = start.Add(s.timeout)
	}

	return s.search(ctx, box, deadline)
}

func (s *BoxSolver) numFeatures() int {
	n := s.at.NumFeatures()
	for f := range s.prop.Inputs {
		n = max(n, f+1)
	}

	for f := range s.leaf.Box() {
		n = max(n, f+1)
	}

	return n
}

func (s *BoxSolver) setModel(x []float64, out float64) {
	if math.IsNaN(out) {
		out = s.at.Eval(x)
	}

	s.model = Model{X: x, Output: out}
	s.hasModel = true
}

// frame is one node of the explicit search stack.
type frame struct {
	depth int
	box   domain.Box
	// picks holds the chosen leaf value of tree order[d] at index d.
	picks []float64
}

func (s *BoxSolver) search(ctx context.Context, box domain.Box, deadline time.Time) (Status, error) {
	cands := make([][]candidate, s.numTrees)

	for i, cs := range s.candCache {
		for _, c := range cs {
			if box.Overlaps(c.box) {
				cands[i] = append(cands[i], c)
			}
		}

		if len(cands[i]) == 0 {
			return StatusUnsat, nil
		}
	}

	// Fail-first: trees with fewer candidates are branched on first.
	order := make([]int, s.numTrees)
	for i := range order {
		order[i] = i
	}

	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(len(cands[a]), len(cands[b])) })

	for _, cs := range cands {
		s.sortCandidates(cs)
	}

	seed, status := s.precheck(cands)
	if status == StatusUnsat {
		return StatusUnsat, nil
	}

	for i, node := range seed {
		idx := slices.IndexFunc(cands[i], func(c candidate) bool { return c.node == node })
		if idx > 0 {
			c := cands[i][idx]
			copy(cands[i][1:idx+1], cands[i][:idx])
			cands[i][0] = c
		}
	}

	stack := []frame{{depth: 0, box: box}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		s.explored++
		if s.explored%deadlineStride == 0 {
			if err := ctx.Err(); err != nil {
				return StatusUnknown, err
			}

			if !deadline.IsZero() && time.Now().After(deadline) {
				return StatusUnknown, nil
			}
		}

		if !s.feasible(f, order, cands) {
			continue
		}

		if f.depth == s.numTrees {
			x := f.box.Point(s.numFeatures())
			out := s.at.Eval(x)

			// Rounding in the summation order can push a boundary output out.
			if !s.prop.Holds(out) {
				continue
			}

			s.setModel(x, out)

			return StatusSat, nil
		}

		tree := order[f.depth]
		cs := cands[tree]

		for i := len(cs) - 1; i >= 0; i-- {
			nb, ok := f.box.Meet(cs[i].box)
			if !ok {
				continue
			}

			picks := make([]float64, f.depth+1)
			copy(picks, f.picks)
			picks[f.depth] = cs[i].value

			stack = append(stack, frame{depth: f.depth + 1, box: nb, picks: picks})
		}
	}

	return StatusUnsat, nil
}

// sortCandidates puts the leaves most likely to satisfy the property first.
func (s *BoxSolver) sortCandidates(cs []candidate) {
	switch {
	case !math.IsInf(s.prop.OutputMin, -1):
		slices.SortStableFunc(cs, func(a, b candidate) int { return cmp.Compare(b.value, a.value) })
	case !math.IsInf(s.prop.OutputMax, 1):
		slices.SortStableFunc(cs, func(a, b candidate) int { return cmp.Compare(a.value, b.value) })
	}
}

// feasible bounds the output reachable from f with the propagation graph:
// trees already chosen are pinned to their leaf value, the rest span the hull
// of their leaves still overlapping f.box.
func (s *BoxSolver) feasible(f frame, order []int, cands [][]candidate) bool {
	c := s.template.Clone()
	ws := boxcheck.Workspace{
		s.biasVar: domain.Point(s.at.BaseScore),
		s.outVar:  domain.New(s.prop.OutputMin, s.prop.OutputMax),
	}

	for d, tree := range order {
		if d < f.depth {
			ws[tree] = domain.Point(f.picks[d])

			continue
		}

		lo, hi := math.Inf(1), math.Inf(-1)

		for _, cand := range cands[tree] {
			if f.box.Overlaps(cand.box) {
				lo, hi = min(lo, cand.value), max(hi, cand.value)
			}
		}

		if lo > hi {
			return false
		}

		ws[tree] = domain.New(lo, hi)
	}

	if c.CopyFromWorkspace(ws) == boxcheck.Invalid {
		return false
	}

	return c.Propagate(propagateRounds) != boxcheck.Invalid
}
