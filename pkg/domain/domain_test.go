package domain_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
)

func TestRealDomain_Everything(t *testing.T) {
	t.Parallel()

	d := domain.Everything()

	assert.True(t, d.IsEverything())
	assert.False(t, d.IsEmpty())
	assert.True(t, d.Contains(1e300))
	assert.False(t, domain.New(0, 1).IsEverything())
}

func TestRealDomain_ContainsHalfOpen(t *testing.T) {
	t.Parallel()

	d := domain.New(-1, 10)

	assert.True(t, d.Contains(-1))
	assert.True(t, d.Contains(9.999))
	assert.False(t, d.Contains(10))
	assert.True(t, domain.True.Contains(1))
	assert.False(t, domain.False.Contains(1))
}

func TestRealDomain_Intersect(t *testing.T) {
	t.Parallel()

	r, ok := domain.New(0, 5).Intersect(domain.New(3, 8))
	require.True(t, ok)
	assert.Equal(t, domain.New(3, 5), r)

	_, ok = domain.False.Intersect(domain.True)
	assert.False(t, ok)

	r, ok = domain.Everything().Intersect(domain.True)
	require.True(t, ok)
	assert.True(t, r.IsTrue())
}

func TestRealDomain_MeetExcludesUpperBound(t *testing.T) {
	t.Parallel()

	_, ok := domain.New(0, 5).Meet(domain.New(5, 8))
	assert.False(t, ok)

	_, ok = domain.New(0, 5).Meet(domain.Point(5))
	assert.False(t, ok)

	r, ok := domain.New(0, 5).Meet(domain.New(4, 8))
	require.True(t, ok)
	assert.Equal(t, domain.New(4, 5), r)
}

func TestRealDomain_LtGe(t *testing.T) {
	t.Parallel()

	d := domain.New(0, 10)

	l, ok := d.Lt(4)
	require.True(t, ok)
	assert.Equal(t, domain.New(0, 4), l)

	r, ok := d.Ge(4)
	require.True(t, ok)
	assert.Equal(t, domain.New(4, 10), r)

	_, ok = d.Lt(0)
	assert.False(t, ok)

	_, ok = d.Ge(10)
	assert.False(t, ok)

	_, ok = domain.Point(3).Ge(3)
	assert.True(t, ok)
}

func TestRealDomain_Split(t *testing.T) {
	t.Parallel()

	l, r := domain.New(-2, 2).Split(0.5)

	assert.Equal(t, domain.New(-2, 0.5), l)
	assert.Equal(t, domain.New(0.5, 2), r)
	assert.Equal(t, "[-2, 0.5)", l.String())
}

func TestRealDomain_Witness(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 3.0, domain.New(3, 4).Witness(), 0)
	assert.Less(t, domain.New(math.Inf(-1), 4).Witness(), 4.0)
	assert.InDelta(t, 0.0, domain.Everything().Witness(), 0)
}

func TestBox_RefineAndPoint(t *testing.T) {
	t.Parallel()

	b := domain.Box{}

	left, ok := b.Refine(domain.Split{Feature: 1, Threshold: 2}, true)
	require.True(t, ok)

	right, ok := left.Refine(domain.Split{Feature: 0, Threshold: -1}, false)
	require.True(t, ok)

	assert.Empty(t, b, "refine must not mutate the receiver")
	assert.Equal(t, domain.New(math.Inf(-1), 2), right.Get(1))
	assert.Equal(t, domain.New(-1, math.Inf(1)), right.Get(0))

	x := right.Point(3)
	assert.True(t, right.Contains(x))

	_, ok = right.Refine(domain.Split{Feature: 1, Threshold: 2}, false)
	assert.False(t, ok)
}

func TestBox_Overlaps(t *testing.T) {
	t.Parallel()

	a := domain.Box{0: domain.New(0, 5)}
	b := domain.Box{0: domain.New(5, 9), 1: domain.New(0, 1)}
	c := domain.Box{0: domain.New(4, 9)}

	assert.False(t, a.Overlaps(b))
	assert.True(t, a.Overlaps(c))

	m, ok := a.Meet(c)
	require.True(t, ok)
	assert.Equal(t, domain.New(4, 5), m.Get(0))
	assert.Equal(t, "Box{x0: [4, 5)}", m.String())
}
