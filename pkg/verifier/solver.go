// Package verifier decides whether an additive tree ensemble can produce an
// output satisfying a property within one domain-tree leaf.
//
// The satisfiability capability is the Solver interface. BoxSolver is the
// built-in backend: a branch-and-bound search over per-tree leaf combinations
// whose bounds are narrowed with the boxcheck propagation engine.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
	"github.com/Sumatoshi-tech/forestcheck/pkg/splittree"
)

// Sentinel errors for verification.
var (
	// ErrSolverFault wraps any solver failure other than a timeout.
	ErrSolverFault = errors.New("solver fault")
	// ErrNoModel indicates Model was called without a preceding SAT check.
	ErrNoModel = errors.New("no model available")
	// ErrInvalidProperty indicates an empty output range.
	ErrInvalidProperty = errors.New("invalid property")
)

// Status is the answer of a satisfiability check.
type Status int

// Check statuses.
const (
	StatusUnknown Status = iota
	StatusSat
	StatusUnsat
)

func (s Status) String() string {
	switch s {
	case StatusSat:
		return "SAT"
	case StatusUnsat:
		return "UNSAT"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Model is a satisfying input and the ensemble output it produces.
type Model struct {
	X      []float64 `json:"x"      yaml:"x"`
	Output float64   `json:"output" yaml:"output"`
}

// Property selects the outputs searched for: OutputMin <= output <= OutputMax
// for some input inside Inputs.
type Property struct {
	OutputMin float64
	OutputMax float64
	Inputs    domain.Box
}

// AnyOutput returns a property satisfied by every input.
func AnyOutput() Property {
	return Property{OutputMin: math.Inf(-1), OutputMax: math.Inf(1)}
}

// OutputAtLeast searches for an output of at least t.
func OutputAtLeast(t float64) Property {
	p := AnyOutput()
	p.OutputMin = t

	return p
}

// OutputAtMost searches for an output of at most t.
func OutputAtMost(t float64) Property {
	p := AnyOutput()
	p.OutputMax = t

	return p
}

// Validate rejects NaN bounds and empty output ranges.
func (p Property) Validate() error {
	if math.IsNaN(p.OutputMin) || math.IsNaN(p.OutputMax) || p.OutputMin > p.OutputMax {
		return fmt.Errorf("%w: output range [%v, %v]", ErrInvalidProperty, p.OutputMin, p.OutputMax)
	}

	return nil
}

// Holds reports whether output lies in the property's output range.
func (p Property) Holds(output float64) bool {
	return p.OutputMin <= output && output <= p.OutputMax
}

func (p Property) String() string {
	return fmt.Sprintf("%v <= output <= %v over %s", p.OutputMin, p.OutputMax, p.Inputs)
}

// Solver is the satisfiability capability used for one domain-tree leaf.
// A Solver is used by a single goroutine.
type Solver interface {
	// XVar returns the handle of an input feature.
	XVar(feature int) Var
	// SetTimeout bounds each Check. Zero or negative disables the bound.
	SetTimeout(d time.Duration)
	// AddAllTrees loads the ensemble structure. Checks before it only
	// consider the leaf box and the constraints.
	AddAllTrees() error
	// Check decides the constraints. A timeout is StatusUnknown with a nil
	// error; a canceled ctx returns ctx's error.
	Check(ctx context.Context, constraints ...Expr) (Status, error)
	// Model returns the witness of the last SAT check.
	Model() (Model, error)
	// CheckTime returns the duration of the last Check.
	CheckTime() time.Duration
}

// Factory creates a Solver for one leaf of a domain-tree over at.
type Factory func(at *addtree.AddTree, leaf *splittree.Leaf) (Solver, error)
