package observability

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
)

// metricPrefix namespaces every forestcheck instrument.
const metricPrefix = "forestcheck."

// instruments creates the instruments of one forestcheck subsystem. Names are
// given relative to the subsystem, so "tasks.total" under "verify" becomes
// forestcheck.verify.tasks.total. After the first creation error the
// remaining instruments are no-ops and err keeps that first error.
type instruments struct {
	meter  metric.Meter
	prefix string
	noop   metric.Meter
	err    error
}

func newInstruments(mt metric.Meter, subsystem string) *instruments {
	return &instruments{
		meter:  mt,
		prefix: metricPrefix + subsystem + ".",
		noop:   noopmetric.NewMeterProvider().Meter(metricPrefix + subsystem),
	}
}

func (in *instruments) active() metric.Meter {
	if in.err != nil {
		return in.noop
	}

	return in.meter
}

func (in *instruments) counter(name, desc, unit string) metric.Int64Counter {
	c, err := in.active().Int64Counter(in.prefix+name, metric.WithDescription(desc), metric.WithUnit(unit))
	if in.fail(name, err) {
		c, _ = in.noop.Int64Counter(name)
	}

	return c
}

func (in *instruments) gauge(name, desc, unit string) metric.Int64UpDownCounter {
	c, err := in.active().Int64UpDownCounter(in.prefix+name, metric.WithDescription(desc), metric.WithUnit(unit))
	if in.fail(name, err) {
		c, _ = in.noop.Int64UpDownCounter(name)
	}

	return c
}

// seconds creates a duration histogram whose buckets span floor to limit.
func (in *instruments) seconds(name, desc string, floor, limit time.Duration) metric.Float64Histogram {
	h, err := in.active().Float64Histogram(in.prefix+name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets(floor, limit)...),
	)
	if in.fail(name, err) {
		h, _ = in.noop.Float64Histogram(name)
	}

	return h
}

func (in *instruments) fail(name string, err error) bool {
	if err == nil {
		return false
	}

	if in.err == nil {
		in.err = fmt.Errorf("create %s%s: %w", in.prefix, name, err)
	}

	return true
}

// durationBuckets returns 1-2.5-5 steps per decade from floor up to the first
// step at or above limit, in seconds.
func durationBuckets(floor, limit time.Duration) []float64 {
	steps := [...]float64{1, 2.5, 5}

	if floor <= 0 {
		floor = time.Millisecond
	}

	var out []float64

	for decade := floor.Seconds(); ; decade *= 10 {
		for _, s := range steps {
			b := decade * s
			out = append(out, b)

			if b >= limit.Seconds() {
				return out
			}
		}
	}
}
