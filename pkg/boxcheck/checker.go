// Package boxcheck implements a box-consistency propagation engine: a DAG of
// arithmetic and cardinality expressions whose node domains are narrowed to a
// fixed point by repeated consistency passes.
//
// Typical use:
//
//	c, _ := boxcheck.New(3, 8)
//	s, _ := c.AddSum(0, 1)
//	_ = c.AddEq(2, s)
//	c.CopyFromWorkspace(boxcheck.Workspace{0: domain.New(-1, 10), 1: domain.New(1, 2)})
//	res := c.Propagate(0) // NoChange or Invalid
package boxcheck

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
)

// UpdateResult is the outcome of one consistency pass.
type UpdateResult int

const (
	// NoChange means no domain was narrowed: the checker is at a fixed point.
	NoChange UpdateResult = iota
	// Updated means at least one domain was narrowed.
	Updated
	// Invalid means some domain became empty: the box is infeasible.
	Invalid
)

func (r UpdateResult) String() string {
	switch r {
	case NoChange:
		return "NOCHANGE"
	case Updated:
		return "UPDATED"
	case Invalid:
		return "INVALID"
	default:
		return fmt.Sprintf("UpdateResult(%d)", int(r))
	}
}

// Workspace assigns external domains to free variables.
type Workspace map[int]domain.RealDomain

// Sentinel errors for graph construction.
var (
	// ErrInvalidCapacity indicates a capacity smaller than the free variable count.
	ErrInvalidCapacity = errors.New("capacity must be at least the number of base variables")
	// ErrCapacityExceeded indicates that no node slot is left for a derived expression.
	ErrCapacityExceeded = errors.New("expression capacity exceeded")
	// ErrNodeOutOfRange indicates a reference to a node id that does not exist.
	ErrNodeOutOfRange = errors.New("node id out of range")
	// ErrInvalidCardinality indicates a k outside [0, len(ids)] or an empty id set.
	ErrInvalidCardinality = errors.New("invalid cardinality bound")
)

type opKind uint8

const (
	opSum opKind = iota
	opSub
	opProd
	opDiv
	opPow2
	opSqrt
	opEq
	opLteq
	opCard
)

var opNames = [...]string{"sum", "sub", "prod", "div", "pow2", "sqrt", "eq", "lteq", "card"}

func (k opKind) String() string { return opNames[k] }

// constraint is one registered relation. For value operators out is the
// derived node; for eq/lteq only a and b are used; cardinality uses ids with
// the allowed true-count range [minTrue, maxTrue].
type constraint struct {
	kind    opKind
	out     int
	a, b    int
	ids     []int
	minTrue int
	maxTrue int
}

// Checker owns an expression DAG and one domain per node.
// A Checker is not safe for concurrent use; Clone gives each task its own.
type Checker struct {
	numBase     int
	numNodes    int
	doms        []domain.RealDomain
	constraints []constraint
	invalid     bool
	changed     bool
}

// New allocates capacity node slots, all unconstrained. The first numBaseVars
// ids are free variables.
func New(numBaseVars, capacity int) (*Checker, error) {
	if numBaseVars < 0 || capacity < numBaseVars {
		return nil, fmt.Errorf("%w: base=%d capacity=%d", ErrInvalidCapacity, numBaseVars, capacity)
	}

	doms := make([]domain.RealDomain, capacity)
	for i := range doms {
		doms[i] = domain.Everything()
	}

	return &Checker{
		numBase:  numBaseVars,
		numNodes: numBaseVars,
		doms:     doms,
	}, nil
}

// NumBaseVars returns the number of free variables.
func (c *Checker) NumBaseVars() int { return c.numBase }

// NumNodes returns the number of allocated nodes (free and derived).
func (c *Checker) NumNodes() int { return c.numNodes }

// Capacity returns the number of node slots.
func (c *Checker) Capacity() int { return len(c.doms) }

// ExprDom returns the current domain of node id.
func (c *Checker) ExprDom(id int) domain.RealDomain {
	return c.doms[id]
}

// IsInvalid reports whether a previous pass proved the box infeasible.
func (c *Checker) IsInvalid() bool { return c.invalid }

// Clone returns a checker sharing the immutable graph but owning a private
// copy of the domains.
func (c *Checker) Clone() *Checker {
	return &Checker{
		numBase:     c.numBase,
		numNodes:    c.numNodes,
		doms:        append([]domain.RealDomain(nil), c.doms...),
		constraints: c.constraints,
		invalid:     c.invalid,
	}
}

func (c *Checker) checkIDs(ids ...int) error {
	for _, id := range ids {
		if id < 0 || id >= c.numNodes {
			return fmt.Errorf("%w: %d (allocated %d)", ErrNodeOutOfRange, id, c.numNodes)
		}
	}

	return nil
}

func (c *Checker) addValue(kind opKind, a, b int) (int, error) {
	if err := c.checkIDs(a, b); err != nil {
		return 0, fmt.Errorf("add %s: %w", kind, err)
	}

	if c.numNodes >= len(c.doms) {
		return 0, fmt.Errorf("add %s: %w (%d)", kind, ErrCapacityExceeded, len(c.doms))
	}

	out := c.numNodes
	c.numNodes++

	// Appending keeps the backing array of clones untouched.
	c.constraints = append(c.constraints[:len(c.constraints):len(c.constraints)],
		constraint{kind: kind, out: out, a: a, b: b})

	return out, nil
}

func (c *Checker) addRelation(cs constraint) {
	c.constraints = append(c.constraints[:len(c.constraints):len(c.constraints)], cs)
}

// AddSum registers z = a + b and returns z.
func (c *Checker) AddSum(a, b int) (int, error) { return c.addValue(opSum, a, b) }

// AddSub registers z = a - b and returns z.
func (c *Checker) AddSub(a, b int) (int, error) { return c.addValue(opSub, a, b) }

// AddProd registers z = a * b and returns z.
func (c *Checker) AddProd(a, b int) (int, error) { return c.addValue(opProd, a, b) }

// AddDiv registers z = a / b and returns z.
func (c *Checker) AddDiv(a, b int) (int, error) { return c.addValue(opDiv, a, b) }

// AddPow2 registers z = a² and returns z.
func (c *Checker) AddPow2(a int) (int, error) { return c.addValue(opPow2, a, a) }

// AddSqrt registers z = sqrt(a) and returns z. a is asserted non-negative.
func (c *Checker) AddSqrt(a int) (int, error) { return c.addValue(opSqrt, a, a) }

// AddEq registers a = b.
func (c *Checker) AddEq(a, b int) error {
	if err := c.checkIDs(a, b); err != nil {
		return fmt.Errorf("add eq: %w", err)
	}

	c.addRelation(constraint{kind: opEq, a: a, b: b})

	return nil
}

// AddLteq registers a <= b.
func (c *Checker) AddLteq(a, b int) error {
	if err := c.checkIDs(a, b); err != nil {
		return fmt.Errorf("add lteq: %w", err)
	}

	c.addRelation(constraint{kind: opLteq, a: a, b: b})

	return nil
}

// AddKOutOfN registers that exactly k (exact) or at most k (!exact) of the
// boolean nodes ids are true.
func (c *Checker) AddKOutOfN(ids []int, k int, exact bool) error {
	minTrue := 0
	if exact {
		minTrue = k
	}

	return c.addCard(ids, minTrue, k)
}

// AddAtLeastK registers that at least k of the boolean nodes ids are true.
func (c *Checker) AddAtLeastK(ids []int, k int) error {
	return c.addCard(ids, k, len(ids))
}

// AddAtMostK registers that at most k of the boolean nodes ids are true.
func (c *Checker) AddAtMostK(ids []int, k int) error {
	return c.addCard(ids, 0, k)
}

func (c *Checker) addCard(ids []int, minTrue, maxTrue int) error {
	if len(ids) == 0 || minTrue < 0 || maxTrue < 0 || minTrue > len(ids) || maxTrue > len(ids) {
		return fmt.Errorf("%w: [%d, %d] of %d", ErrInvalidCardinality, minTrue, maxTrue, len(ids))
	}

	if err := c.checkIDs(ids...); err != nil {
		return fmt.Errorf("add cardinality: %w", err)
	}

	c.addRelation(constraint{
		kind:    opCard,
		ids:     append([]int(nil), ids...),
		minTrue: minTrue,
		maxTrue: maxTrue,
	})

	return nil
}

// CopyFromWorkspace intersects every listed node with the supplied domain.
// On a fresh checker this is an assignment. Ids outside the checker are
// ignored.
func (c *Checker) CopyFromWorkspace(ws Workspace) UpdateResult {
	if c.invalid {
		return Invalid
	}

	c.changed = false

	for id, d := range ws {
		if id < 0 || id >= len(c.doms) {
			continue
		}

		if !c.narrow(id, d) {
			return Invalid
		}
	}

	if c.changed {
		return Updated
	}

	return NoChange
}

// Propagate calls Update until it returns NoChange or Invalid, or until
// maxIter passes ran (maxIter <= 0 means no limit). It returns the last result.
func (c *Checker) Propagate(maxIter int) UpdateResult {
	res := Updated

	for i := 0; res == Updated && (maxIter <= 0 || i < maxIter); i++ {
		res = c.Update()
	}

	return res
}
