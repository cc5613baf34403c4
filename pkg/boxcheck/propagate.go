package boxcheck

import (
	"math"

	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
)

// Update runs one consistency pass over every constraint in registration
// order. Once Invalid is returned the checker stays invalid; narrowings made
// earlier in the failing pass are kept.
func (c *Checker) Update() UpdateResult {
	if c.invalid {
		return Invalid
	}

	c.changed = false

	for i := range c.constraints {
		if !c.apply(&c.constraints[i]) {
			return Invalid
		}
	}

	if c.changed {
		return Updated
	}

	return NoChange
}

func (c *Checker) apply(cs *constraint) bool {
	switch cs.kind {
	case opSum:
		return c.applySum(cs.out, cs.a, cs.b)
	case opSub:
		return c.applySub(cs.out, cs.a, cs.b)
	case opProd:
		return c.applyProd(cs.out, cs.a, cs.b)
	case opDiv:
		return c.applyDiv(cs.out, cs.a, cs.b)
	case opPow2:
		return c.applyPow2(cs.out, cs.a)
	case opSqrt:
		return c.applySqrt(cs.out, cs.a)
	case opEq:
		return c.applyEq(cs.a, cs.b)
	case opLteq:
		return c.applyLteq(cs.a, cs.b)
	case opCard:
		return c.applyCard(cs)
	default:
		return true
	}
}

// narrow intersects node id with d. It returns false and marks the checker
// invalid when the result is empty.
func (c *Checker) narrow(id int, d domain.RealDomain) bool {
	cur := c.doms[id]

	r, ok := cur.Intersect(d)
	if !ok {
		c.invalid = true

		return false
	}

	if r != cur {
		c.doms[id] = r
		c.changed = true
	}

	return true
}

// z = x + y
func (c *Checker) applySum(z, x, y int) bool {
	dx, dy := c.doms[x], c.doms[y]
	if !c.narrow(z, widen(dx.Lo+dy.Lo, dx.Hi+dy.Hi)) {
		return false
	}

	dz := c.doms[z]
	if !c.narrow(x, widen(dz.Lo-dy.Hi, dz.Hi-dy.Lo)) {
		return false
	}

	dx = c.doms[x]

	return c.narrow(y, widen(dz.Lo-dx.Hi, dz.Hi-dx.Lo))
}

// z = x - y
func (c *Checker) applySub(z, x, y int) bool {
	dx, dy := c.doms[x], c.doms[y]
	if !c.narrow(z, widen(dx.Lo-dy.Hi, dx.Hi-dy.Lo)) {
		return false
	}

	dz := c.doms[z]
	if !c.narrow(x, widen(dz.Lo+dy.Lo, dz.Hi+dy.Hi)) {
		return false
	}

	dx = c.doms[x]

	return c.narrow(y, widen(dx.Lo-dz.Hi, dx.Hi-dz.Lo))
}

// z = x * y
func (c *Checker) applyProd(z, x, y int) bool {
	if !c.narrow(z, mulDom(c.doms[x], c.doms[y])) {
		return false
	}

	dz := c.doms[z]

	if dy := c.doms[y]; !containsZero(dy) {
		if !c.narrow(x, divDom(dz, dy)) {
			return false
		}
	}

	if dx := c.doms[x]; !containsZero(dx) {
		return c.narrow(y, divDom(dz, dx))
	}

	return true
}

// z = x / y
func (c *Checker) applyDiv(z, x, y int) bool {
	if dy := c.doms[y]; !containsZero(dy) {
		if !c.narrow(z, divDom(c.doms[x], dy)) {
			return false
		}
	}

	dz := c.doms[z]
	if !c.narrow(x, mulDom(dz, c.doms[y])) {
		return false
	}

	if !containsZero(dz) {
		return c.narrow(y, divDom(c.doms[x], dz))
	}

	return true
}

// z = x²
func (c *Checker) applyPow2(z, x int) bool {
	dx := c.doms[x]

	lo2, hi2 := dx.Lo*dx.Lo, dx.Hi*dx.Hi

	// Squares are never negative, so the lower bound stays clipped at 0.
	fwd := bounds(math.Max(down(math.Min(lo2, hi2)), 0), up(math.Max(lo2, hi2)))
	if containsZero(dx) {
		fwd = bounds(0, up(math.Max(lo2, hi2)))
	}

	if !c.narrow(z, fwd) {
		return false
	}

	dz := c.doms[z]
	r := up(math.Sqrt(dz.Hi))
	inner := math.Max(down(math.Sqrt(math.Max(dz.Lo, 0))), 0)

	switch {
	case dx.Lo >= 0:
		return c.narrow(x, bounds(inner, r))
	case dx.Hi <= 0:
		return c.narrow(x, bounds(-r, -inner))
	default:
		return c.narrow(x, bounds(-r, r))
	}
}

// z = sqrt(x), x >= 0
func (c *Checker) applySqrt(z, x int) bool {
	if !c.narrow(x, bounds(0, math.Inf(1))) {
		return false
	}

	dx := c.doms[x]
	if !c.narrow(z, bounds(math.Max(down(math.Sqrt(dx.Lo)), 0), up(math.Sqrt(dx.Hi)))) {
		return false
	}

	dz := c.doms[z]
	lo := math.Max(dz.Lo, 0)

	return c.narrow(x, bounds(math.Max(down(lo*lo), 0), up(dz.Hi*dz.Hi)))
}

func (c *Checker) applyEq(a, b int) bool {
	if !c.narrow(a, c.doms[b]) {
		return false
	}

	return c.narrow(b, c.doms[a])
}

// a <= b
func (c *Checker) applyLteq(a, b int) bool {
	if !c.narrow(a, bounds(math.Inf(-1), c.doms[b].Hi)) {
		return false
	}

	return c.narrow(b, bounds(c.doms[a].Lo, math.Inf(1)))
}

func (c *Checker) applyCard(cs *constraint) bool {
	var nTrue, nUnknown int

	for _, id := range cs.ids {
		d := c.doms[id]
		canTrue, canFalse := d.Contains(1), d.Contains(0)

		switch {
		case canTrue && canFalse:
			nUnknown++
		case canTrue:
			nTrue++
		case !canFalse:
			// Neither 0 nor 1 is left: not a boolean any more.
			c.invalid = true

			return false
		}
	}

	if nTrue > cs.maxTrue || nTrue+nUnknown < cs.minTrue {
		c.invalid = true

		return false
	}

	if nUnknown == 0 {
		return true
	}

	var force domain.RealDomain

	switch {
	case nTrue == cs.maxTrue:
		force = domain.False
	case nTrue+nUnknown == cs.minTrue:
		force = domain.True
	default:
		return true
	}

	for _, id := range cs.ids {
		d := c.doms[id]
		if d.Contains(1) && d.Contains(0) {
			if !c.narrow(id, force) {
				return false
			}
		}
	}

	return true
}
