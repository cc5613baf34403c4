package verifier

import (
	"github.com/crillab/gophersat/solver"
)

// precheck encodes leaf selection as a pseudo-boolean problem: exactly one
// leaf per tree, and no two leaves whose path boxes are disjoint. Axis-aligned
// boxes that intersect pairwise share a common point, so an UNSAT answer
// proves that no leaf combination exists. On SAT it returns the selected leaf
// per tree as a search seed.
func (s *BoxSolver) precheck(cands [][]candidate) ([]int, Status) {
	total := 0
	for _, cs := range cands {
		total += len(cs)
	}

	if s.precheckLimit <= 0 || total > s.precheckLimit || len(cands) < 2 {
		return nil, StatusUnknown
	}

	// Variables are 1-based; vars[i][j] is leaf j of tree i.
	vars := make([][]int, len(cands))
	next := 1

	var constrs []solver.PBConstr

	for i, cs := range cands {
		vars[i] = make([]int, len(cs))
		for j := range cs {
			vars[i][j] = next
			next++
		}

		constrs = append(constrs, solver.AtLeast(vars[i], 1), solver.AtMost(vars[i], 1))
	}

	for i := range cands {
		for k := i + 1; k < len(cands); k++ {
			for a, ca := range cands[i] {
				for b, cb := range cands[k] {
					if !ca.box.Overlaps(cb.box) {
						constrs = append(constrs, solver.PropClause(-vars[i][a], -vars[k][b]))
					}
				}
			}
		}
	}

	pb := solver.New(solver.ParsePBConstrs(constrs))

	switch pb.Solve() {
	case solver.Unsat:
		return nil, StatusUnsat
	case solver.Sat:
	default:
		return nil, StatusUnknown
	}

	model := pb.Model()
	seed := make([]int, len(cands))

	for i, cs := range cands {
		seed[i] = -1

		for j := range cs {
			if model[vars[i][j]-1] {
				seed[i] = cs[j].node

				break
			}
		}
	}

	return seed, StatusSat
}
