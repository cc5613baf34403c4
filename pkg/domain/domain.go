// Package domain provides the half-open real intervals and axis-aligned boxes
// used by the propagation engine, the ensemble model and the domain-tree.
package domain

import (
	"fmt"
	"math"
)

// RealDomain is the half-open interval [Lo, Hi). Lo == Hi denotes the single
// point Lo. Lo > Hi is empty and is never handed out as a valid value.
type RealDomain struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Boolean domains. Unknown truth is Everything.
var (
	True  = RealDomain{Lo: 1, Hi: 1}
	False = RealDomain{Lo: 0, Hi: 0}
)

// Everything returns the unconstrained domain (-Inf, +Inf).
func Everything() RealDomain {
	return RealDomain{Lo: math.Inf(-1), Hi: math.Inf(1)}
}

// New returns [lo, hi).
func New(lo, hi float64) RealDomain {
	return RealDomain{Lo: lo, Hi: hi}
}

// Point returns the single-point domain {v}.
func Point(v float64) RealDomain {
	return RealDomain{Lo: v, Hi: v}
}

// IsEverything reports whether d is unbounded on both sides.
func (d RealDomain) IsEverything() bool {
	return math.IsInf(d.Lo, -1) && math.IsInf(d.Hi, 1)
}

// IsEmpty reports whether d is infeasible.
func (d RealDomain) IsEmpty() bool {
	return d.Lo > d.Hi || math.IsNaN(d.Lo) || math.IsNaN(d.Hi)
}

// IsPoint reports whether d holds exactly one value.
func (d RealDomain) IsPoint() bool {
	return d.Lo == d.Hi
}

// IsTrue reports whether d is the boolean TRUE domain.
func (d RealDomain) IsTrue() bool { return d == True }

// IsFalse reports whether d is the boolean FALSE domain.
func (d RealDomain) IsFalse() bool { return d == False }

// Contains reports whether v lies in d.
func (d RealDomain) Contains(v float64) bool {
	if d.IsPoint() {
		return v == d.Lo
	}

	return d.Lo <= v && v < d.Hi
}

// Overlaps reports whether the regions denoted by d and o share a value,
// honoring the open upper bound.
func (d RealDomain) Overlaps(o RealDomain) bool {
	_, ok := d.Meet(o)

	return ok
}

// Intersect returns [max(Lo), min(Hi)) and whether it is non-empty in the
// propagation sense (Lo <= Hi).
func (d RealDomain) Intersect(o RealDomain) (RealDomain, bool) {
	r := RealDomain{Lo: math.Max(d.Lo, o.Lo), Hi: math.Min(d.Hi, o.Hi)}

	return r, !r.IsEmpty()
}

// Meet intersects the regions denoted by d and o. Unlike Intersect it treats
// Hi as excluded, so [a, b) and [b, c) do not meet.
func (d RealDomain) Meet(o RealDomain) (RealDomain, bool) {
	switch {
	case d.IsPoint() && o.IsPoint():
		return d, d.Lo == o.Lo
	case d.IsPoint():
		return d, o.Contains(d.Lo)
	case o.IsPoint():
		return o, d.Contains(o.Lo)
	}

	r := RealDomain{Lo: math.Max(d.Lo, o.Lo), Hi: math.Min(d.Hi, o.Hi)}

	return r, r.Lo < r.Hi
}

// Lt restricts d to values below t.
func (d RealDomain) Lt(t float64) (RealDomain, bool) {
	if d.Lo >= t {
		return d, false
	}

	return RealDomain{Lo: d.Lo, Hi: math.Min(d.Hi, t)}, true
}

// Ge restricts d to values at or above t.
func (d RealDomain) Ge(t float64) (RealDomain, bool) {
	if d.IsPoint() {
		return d, d.Lo >= t
	}

	if d.Hi <= t {
		return d, false
	}

	return RealDomain{Lo: math.Max(d.Lo, t), Hi: d.Hi}, true
}

// Split divides d at t into [Lo, t) and [t, Hi). t must lie strictly inside d.
func (d RealDomain) Split(t float64) (RealDomain, RealDomain) {
	return RealDomain{Lo: d.Lo, Hi: t}, RealDomain{Lo: t, Hi: d.Hi}
}

// Width returns Hi - Lo.
func (d RealDomain) Width() float64 {
	return d.Hi - d.Lo
}

// String formats d as "[lo, hi)".
func (d RealDomain) String() string {
	if d.IsPoint() {
		return fmt.Sprintf("{%.3g}", d.Lo)
	}

	return fmt.Sprintf("[%.3g, %.3g)", d.Lo, d.Hi)
}
