package domain

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Split is a one-dimensional decision x[Feature] < Threshold. The left branch
// takes values below the threshold, the right branch the rest.
type Split struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
}

// GoesLeft reports whether x is routed to the left branch.
func (s Split) GoesLeft(x []float64) bool {
	return s.Feature < len(x) && x[s.Feature] < s.Threshold
}

func (s Split) String() string {
	return fmt.Sprintf("x%d < %.6g", s.Feature, s.Threshold)
}

// Box is an axis-aligned region, one interval per feature. Features that are
// absent are unconstrained.
type Box map[int]RealDomain

// Get returns the interval of feature f.
func (b Box) Get(f int) RealDomain {
	if d, ok := b[f]; ok {
		return d
	}

	return Everything()
}

// Clone returns an independent copy.
func (b Box) Clone() Box {
	out := make(Box, len(b))
	for f, d := range b {
		out[f] = d
	}

	return out
}

// Refine returns a copy of b restricted to one side of s and whether that
// side is non-empty.
func (b Box) Refine(s Split, left bool) (Box, bool) {
	d := b.Get(s.Feature)

	var (
		r  RealDomain
		ok bool
	)

	if left {
		r, ok = d.Lt(s.Threshold)
	} else {
		r, ok = d.Ge(s.Threshold)
	}

	if !ok {
		return nil, false
	}

	out := b.Clone()
	out[s.Feature] = r

	return out, true
}

// CanGoLeft reports whether some point of b satisfies s.
func (b Box) CanGoLeft(s Split) bool {
	_, ok := b.Get(s.Feature).Lt(s.Threshold)

	return ok
}

// CanGoRight reports whether some point of b violates s.
func (b Box) CanGoRight(s Split) bool {
	_, ok := b.Get(s.Feature).Ge(s.Threshold)

	return ok
}

// Meet intersects two boxes as regions.
func (b Box) Meet(o Box) (Box, bool) {
	out := b.Clone()

	for f, d := range o {
		r, ok := out.Get(f).Meet(d)
		if !ok {
			return nil, false
		}

		out[f] = r
	}

	return out, true
}

// Overlaps reports whether b and o share a point.
func (b Box) Overlaps(o Box) bool {
	for f, d := range o {
		if _, ok := b.Get(f).Meet(d); !ok {
			return false
		}
	}

	return true
}

// Contains reports whether x lies in b. Features beyond len(x) must be
// unconstrained.
func (b Box) Contains(x []float64) bool {
	for f, d := range b {
		if f >= len(x) {
			if !d.IsEverything() {
				return false
			}

			continue
		}

		if !d.Contains(x[f]) {
			return false
		}
	}

	return true
}

// Features returns the constrained feature ids in ascending order.
func (b Box) Features() []int {
	out := make([]int, 0, len(b))
	for f := range b {
		out = append(out, f)
	}

	slices.Sort(out)

	return out
}

// Witness returns a concrete value inside d.
func (d RealDomain) Witness() float64 {
	switch {
	case !math.IsInf(d.Lo, 0):
		return d.Lo
	case !math.IsInf(d.Hi, 0):
		v := d.Hi - 1
		if v == d.Hi {
			v = math.Nextafter(d.Hi, math.Inf(-1))
		}

		return v
	default:
		return 0
	}
}

// Point returns a concrete input of numFeatures values lying inside b.
func (b Box) Point(numFeatures int) []float64 {
	x := make([]float64, numFeatures)
	for f := range x {
		x[f] = b.Get(f).Witness()
	}

	return x
}

func (b Box) String() string {
	var sb strings.Builder

	sb.WriteString("Box{")

	for i, f := range b.Features() {
		if i > 0 {
			sb.WriteString(", ")
		}

		fmt.Fprintf(&sb, "x%d: %s", f, b[f])
	}

	sb.WriteString("}")

	return sb.String()
}
