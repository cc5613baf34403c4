package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMeanStdDev(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		values       []float64
		mean, stddev float64
	}{
		{name: "empty", values: nil},
		{name: "single", values: []float64{3}, mean: 3},
		{name: "spread", values: []float64{2, 4, 4, 4, 5, 5, 7, 9}, mean: 5, stddev: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mean, stddev := MeanStdDev(tt.values)
			assert.InDelta(t, tt.mean, mean, 1e-9)
			assert.InDelta(t, tt.stddev, stddev, 1e-9)
		})
	}
}

func TestPercentile(t *testing.T) {
	t.Parallel()

	sorted := []float64{1, 2, 3, 4, 5}

	assert.InDelta(t, 3.0, Percentile(sorted, PercentileMedian), 1e-9)
	assert.InDelta(t, 4.6, Percentile(sorted, PercentileP90), 1e-9)
	assert.InDelta(t, 1.0, Percentile(sorted, -1), 1e-9)
	assert.InDelta(t, 5.0, Percentile(sorted, 2), 1e-9)
	assert.InDelta(t, 0.0, Percentile(nil, PercentileMedian), 0)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	ds := []time.Duration{4 * time.Second, time.Second, 3 * time.Second, 2 * time.Second}

	s := Summarize(ds)

	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 10*time.Second, s.Total)
	assert.Equal(t, 2500*time.Millisecond, s.Mean)
	assert.Equal(t, time.Second, s.Min)
	assert.Equal(t, 4*time.Second, s.Max)
	assert.Equal(t, 2500*time.Millisecond, s.Median)
	assert.Equal(t, 3700*time.Millisecond, s.P90)
	assert.Equal(t, 4*time.Second, ds[0], "input must not be reordered")
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Summary{}, Summarize(nil))
}
