// Package stats summarizes solver check times for verification reports.
// Standard deviations are population deviations.
package stats

import (
	"math"
	"slices"
	"time"
)

// Percentiles reported in a Summary.
const (
	PercentileMedian = 0.5
	PercentileP90    = 0.9
	PercentileP99    = 0.99
)

// Mean returns the arithmetic mean of values, or 0 when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64

	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// MeanStdDev returns the mean and population standard deviation.
func MeanStdDev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}

	mean = Mean(values)

	var sumSq float64

	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}

	return mean, math.Sqrt(sumSq / float64(len(values)))
}

// Percentile returns the p-th percentile of sorted using linear
// interpolation between closest ranks. sorted must be ascending.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}

	idx := min(max(p, 0), 1) * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))

	if lo == hi {
		return sorted[lo]
	}

	frac := idx - float64(lo)

	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Summary describes a set of check times.
type Summary struct {
	Count  int           `json:"count"  yaml:"count"`
	Total  time.Duration `json:"total"  yaml:"total"`
	Mean   time.Duration `json:"mean"   yaml:"mean"`
	StdDev time.Duration `json:"stddev" yaml:"stddev"`
	Min    time.Duration `json:"min"    yaml:"min"`
	Median time.Duration `json:"median" yaml:"median"`
	P90    time.Duration `json:"p90"    yaml:"p90"`
	P99    time.Duration `json:"p99"    yaml:"p99"`
	Max    time.Duration `json:"max"    yaml:"max"`
}

// Summarize computes a Summary of ds. The input is not modified.
func Summarize(ds []time.Duration) Summary {
	if len(ds) == 0 {
		return Summary{}
	}

	secs := make([]float64, len(ds))

	var total time.Duration

	for i, d := range ds {
		secs[i] = d.Seconds()
		total += d
	}

	slices.Sort(secs)

	mean, stddev := MeanStdDev(secs)

	return Summary{
		Count:  len(ds),
		Total:  total,
		Mean:   seconds(mean),
		StdDev: seconds(stddev),
		Min:    seconds(secs[0]),
		Median: seconds(Percentile(secs, PercentileMedian)),
		P90:    seconds(Percentile(secs, PercentileP90)),
		P99:    seconds(Percentile(secs, PercentileP99)),
		Max:    seconds(secs[len(secs)-1]),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
