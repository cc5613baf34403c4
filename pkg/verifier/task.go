package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/splittree"
)

// Outcome is the result of verifying one domain-tree leaf. It is one of
// *Sat, *Unsat or *Unknown.
type Outcome interface {
	Status() Status
	Info() Result
	outcome()
}

// Result holds what every outcome reports.
type Result struct {
	LeafID    int
	CheckTime time.Duration
}

// Info returns r.
func (r Result) Info() Result { return r }

func (Result) outcome() {}

// Sat reports a witness inside the leaf.
type Sat struct {
	Result
	Model Model
}

// Status implements Outcome.
func (*Sat) Status() Status { return StatusSat }

// Unsat reports that no input of the leaf satisfies the property.
type Unsat struct {
	Result
}

// Status implements Outcome.
func (*Unsat) Status() Status { return StatusUnsat }

// Unknown reports a timeout. Leaf is the verified leaf with its best split
// already selected, ready for SplitTree.Split.
type Unknown struct {
	Result
	Leaf    *splittree.Leaf
	Timeout time.Duration
}

// Status implements Outcome.
func (*Unknown) Status() Status { return StatusUnknown }

// VerifyLeaf checks leaf under timeout. Timeouts become *Unknown with the
// leaf's best split selected by scorer. Solver failures are wrapped in
// ErrSolverFault; a canceled ctx returns ctx's error.
func VerifyLeaf(
	ctx context.Context,
	at *addtree.AddTree,
	leaf *splittree.Leaf,
	timeout time.Duration,
	factory Factory,
	scorer splittree.Scorer,
) (Outcome, error) {
	id := leaf.DomTreeNodeID()

	s, err := factory(at, leaf)
	if err != nil {
		return nil, fmt.Errorf("%w: leaf %d: %w", ErrSolverFault, id, err)
	}

	s.SetTimeout(timeout)

	if err := s.AddAllTrees(); err != nil {
		return nil, wrapFault(id, err)
	}

	status, err := s.Check(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("leaf %d: %w", id, ctx.Err())
		}

		return nil, wrapFault(id, err)
	}

	res := Result{LeafID: id, CheckTime: s.CheckTime()}

	switch status {
	case StatusSat:
		m, err := s.Model()
		if err != nil {
			return nil, wrapFault(id, err)
		}

		return &Sat{Result: res, Model: m}, nil
	case StatusUnsat:
		return &Unsat{Result: res}, nil
	default:
		leaf.FindBestDomTreeSplit(at, scorer)

		return &Unknown{Result: res, Leaf: leaf, Timeout: timeout}, nil
	}
}

func wrapFault(id int, err error) error {
	if errors.Is(err, ErrSolverFault) {
		return fmt.Errorf("leaf %d: %w", id, err)
	}

	return fmt.Errorf("%w: leaf %d: %w", ErrSolverFault, id, err)
}

// pathFrame is a tree node together with the constraint of the path to it.
type pathFrame struct {
	node int
	path Expr
}

// PathReport counts the tree nodes CheckTreePaths proved unreachable.
type PathReport struct {
	Tree    int
	Checked int
	Pruned  int
}

// CheckTreePaths walks tree treeIndex from the root and marks every child
// whose path constraint is infeasible inside leaf as unreachable. It works on
// a clone of leaf and returns it.
func CheckTreePaths(
	ctx context.Context,
	at *addtree.AddTree,
	treeIndex int,
	leaf *splittree.Leaf,
	factory Factory,
) (*splittree.Leaf, PathReport, error) {
	l := leaf.Clone()
	t := at.Tree(treeIndex)
	rep := PathReport{Tree: treeIndex}

	s, err := factory(at, l)
	if err != nil {
		return nil, rep, fmt.Errorf("%w: tree %d: %w", ErrSolverFault, treeIndex, err)
	}

	stack := []pathFrame{{node: t.Root(), path: True()}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if t.IsLeaf(f.node) {
			continue
		}

		split := t.GetSplit(f.node)
		x := s.XVar(split.Feature)

		children := []pathFrame{
			{node: t.Left(f.node), path: And(x.Lt(split.Threshold), f.path)},
			{node: t.Right(f.node), path: And(x.Ge(split.Threshold), f.path)},
		}

		for _, c := range children {
			if !l.IsReachable(treeIndex, c.node) {
				continue
			}

			rep.Checked++

			status, err := s.Check(ctx, c.path)
			if err != nil {
				if ctx.Err() != nil {
					return nil, rep, ctx.Err()
				}

				return nil, rep, fmt.Errorf("%w: tree %d node %d: %w", ErrSolverFault, treeIndex, c.node, err)
			}

			if status == StatusUnsat {
				l.MarkUnreachable(at, treeIndex, c.node)
				rep.Pruned++

				continue
			}

			stack = append(stack, c)
		}
	}

	return l, rep, nil
}
