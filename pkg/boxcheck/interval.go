package boxcheck

import (
	"math"

	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
)

// bounds builds [lo, hi) from exact bounds, widening NaN bounds to the
// unconstrained side.
func bounds(lo, hi float64) domain.RealDomain {
	if math.IsNaN(lo) {
		lo = math.Inf(-1)
	}

	if math.IsNaN(hi) {
		hi = math.Inf(1)
	}

	return domain.New(lo, hi)
}

// widen builds [lo, hi) from computed bounds. Each bound is moved one ulp
// outward so that the result encloses the exact value the float operation
// rounded away from.
func widen(lo, hi float64) domain.RealDomain {
	return bounds(down(lo), up(hi))
}

func down(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}

	return math.Nextafter(v, math.Inf(-1))
}

func up(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}

	return math.Nextafter(v, math.Inf(1))
}

func containsZero(d domain.RealDomain) bool {
	return d.Lo <= 0 && 0 <= d.Hi
}

// mul treats 0 * Inf as 0.
func mul(a, b float64) float64 {
	if a == 0 || b == 0 {
		return 0
	}

	return a * b
}

func mulDom(x, y domain.RealDomain) domain.RealDomain {
	return hull(mul(x.Lo, y.Lo), mul(x.Lo, y.Hi), mul(x.Hi, y.Lo), mul(x.Hi, y.Hi))
}

// divDom computes x / y for a divisor that excludes zero.
func divDom(x, y domain.RealDomain) domain.RealDomain {
	return hull(x.Lo/y.Lo, x.Lo/y.Hi, x.Hi/y.Lo, x.Hi/y.Hi)
}

// hull returns the outward-rounded [min, max] of vs, or everything when a
// corner is undefined.
func hull(vs ...float64) domain.RealDomain {
	lo, hi := math.Inf(1), math.Inf(-1)

	for _, v := range vs {
		if math.IsNaN(v) {
			return domain.Everything()
		}

		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	return widen(lo, hi)
}
