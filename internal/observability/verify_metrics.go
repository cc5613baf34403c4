package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/forestcheck/pkg/distributed"
)

const attrStatus = "status"

// Check durations are bucketed from 1ms up to the default timeout ceiling.
const checkTimeFloor = time.Millisecond

// VerifyMetrics holds the instruments of a verification run. It satisfies
// distributed.Metrics.
type VerifyMetrics struct {
	tasksTotal    metric.Int64Counter
	checkDuration metric.Float64Histogram
	splitsTotal   metric.Int64Counter
	prunedTotal   metric.Int64Counter
	inflightTasks metric.Int64UpDownCounter
}

// NewVerifyMetrics creates the verification instruments from mt.
func NewVerifyMetrics(mt metric.Meter) (*VerifyMetrics, error) {
	in := newInstruments(mt, "verify")

	vm := &VerifyMetrics{
		tasksTotal:    in.counter("tasks.total", "Finished leaf checks by status", "{task}"),
		checkDuration: in.seconds("check.duration.seconds", "Leaf check duration in seconds", checkTimeFloor, distributed.DefaultTimeoutMax),
		splitsTotal:   in.counter("splits.total", "Domain-tree leaves split after a timeout", "{split}"),
		prunedTotal:   in.counter("pruned.nodes.total", "Tree nodes proven unreachable by path checking", "{node}"),
		inflightTasks: in.gauge("inflight.tasks", "Leaf checks submitted and not yet finished", "{task}"),
	}

	if in.err != nil {
		return nil, in.err
	}

	return vm, nil
}

// TaskStarted counts a submitted leaf check as in flight.
func (vm *VerifyMetrics) TaskStarted(ctx context.Context) {
	vm.inflightTasks.Add(ctx, 1)
}

// TaskFinished records a finished leaf check.
func (vm *VerifyMetrics) TaskFinished(ctx context.Context, status string, checkTime time.Duration) {
	attrs := metric.WithAttributes(attribute.String(attrStatus, status))

	vm.inflightTasks.Add(ctx, -1)
	vm.tasksTotal.Add(ctx, 1, attrs)
	vm.checkDuration.Record(ctx, checkTime.Seconds(), attrs)
}

// LeafSplit counts a timeout split.
func (vm *VerifyMetrics) LeafSplit(ctx context.Context) {
	vm.splitsTotal.Add(ctx, 1)
}

// NodesPruned adds n unreachable tree nodes.
func (vm *VerifyMetrics) NodesPruned(ctx context.Context, n int) {
	vm.prunedTotal.Add(ctx, int64(n))
}
