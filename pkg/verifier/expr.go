package verifier

import (
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
)

// Expr is a conjunction of threshold constraints on input features.
type Expr interface {
	// restrict narrows box to the inputs satisfying the expression.
	restrict(box domain.Box) (domain.Box, bool)
	String() string
}

// Var is a handle on one input feature.
type Var struct {
	Feature int
}

// Lt constrains the feature below t.
func (v Var) Lt(t float64) Expr { return cmpExpr{split: domain.Split{Feature: v.Feature, Threshold: t}, left: true} }

// Ge constrains the feature at or above t.
func (v Var) Ge(t float64) Expr { return cmpExpr{split: domain.Split{Feature: v.Feature, Threshold: t}} }

type cmpExpr struct {
	split domain.Split
	left  bool
}

func (e cmpExpr) restrict(box domain.Box) (domain.Box, bool) {
	return box.Refine(e.split, e.left)
}

func (e cmpExpr) String() string {
	if e.left {
		return e.split.String()
	}

	return fmt.Sprintf("x%d >= %.6g", e.split.Feature, e.split.Threshold)
}

type andExpr []Expr

// And is the conjunction of es.
func And(es ...Expr) Expr {
	out := make(andExpr, 0, len(es))

	for _, e := range es {
		if inner, ok := e.(andExpr); ok {
			out = append(out, inner...)

			continue
		}

		out = append(out, e)
	}

	return out
}

func (e andExpr) restrict(box domain.Box) (domain.Box, bool) {
	ok := true
	for _, c := range e {
		if box, ok = c.restrict(box); !ok {
			return nil, false
		}
	}

	return box, true
}

func (e andExpr) String() string {
	if len(e) == 0 {
		return "true"
	}

	parts := make([]string, len(e))
	for i, c := range e {
		parts[i] = c.String()
	}

	return strings.Join(parts, " & ")
}

// True is the empty conjunction.
func True() Expr { return andExpr{} }

// Restrict narrows box by every expression and reports whether the result is
// non-empty. box is not modified.
func Restrict(box domain.Box, es ...Expr) (domain.Box, bool) {
	return And(es...).restrict(box.Clone())
}
