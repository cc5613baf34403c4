// Package distributed verifies a property over a whole input domain by
// partitioning it into a domain-tree and checking the leaves on a bounded
// worker pool. Leaves whose check times out are split along their best
// split and resubmitted with a larger timeout.
package distributed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/splittree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/verifier"
	"github.com/Sumatoshi-tech/forestcheck/pkg/workpool"
)

const tracerName = "forestcheck"

// Sentinel errors for the orchestrator.
var (
	// ErrInvalidOption indicates an option value out of range.
	ErrInvalidOption = errors.New("invalid option")
	// ErrEnsembleMismatch indicates a domain-tree built over another ensemble.
	ErrEnsembleMismatch = errors.New("domain-tree belongs to another ensemble")
	// ErrAlreadyRun is returned by a second Check.
	ErrAlreadyRun = errors.New("verifier already ran")
)

// Verifier drives one verification run over a SplitTree.
//
// Check owns the SplitTree while it runs: only the orchestrator goroutine
// splits or replaces leaves, and a leaf handed to a task belongs to that task
// until its future completes. Results, State and Err may be called at any time.
type Verifier struct {
	st      *splittree.SplitTree
	at      *addtree.AddTree
	factory verifier.Factory
	cfg     settings
	runID   uuid.UUID

	mu      sync.RWMutex
	state   RunState
	results Results
	err     error

	stop bool
}

// task is a submitted leaf check.
type task struct {
	leaf    int
	timeout time.Duration
	fut     *workpool.Future[verifier.Outcome]
}

func (t *task) Done() <-chan struct{} { return t.fut.Done() }

// New returns a Verifier for st. at must be the ensemble st was built over.
func New(st *splittree.SplitTree, at *addtree.AddTree, factory verifier.Factory, opts ...Option) (*Verifier, error) {
	if st.AddTree() != at {
		return nil, ErrEnsembleMismatch
	}

	cfg := defaultSettings()
	for _, o := range opts {
		o(&cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(tracerName)
	}

	return &Verifier{
		st:      st,
		at:      at,
		factory: factory,
		cfg:     cfg,
		runID:   uuid.New(),
		results: make(Results),
	}, nil
}

func (s settings) validate() error {
	switch {
	case s.workers < 1:
		return fmt.Errorf("%w: workers %d", ErrInvalidOption, s.workers)
	case s.saturateFactor < 0 || math.IsNaN(s.saturateFactor):
		return fmt.Errorf("%w: saturate factor %v", ErrInvalidOption, s.saturateFactor)
	case s.timeoutStart <= 0:
		return fmt.Errorf("%w: start timeout %s", ErrInvalidOption, s.timeoutStart)
	case s.timeoutMax < s.timeoutStart:
		return fmt.Errorf("%w: max timeout %s below start %s", ErrInvalidOption, s.timeoutMax, s.timeoutStart)
	case s.timeoutRate < 1 || math.IsNaN(s.timeoutRate):
		return fmt.Errorf("%w: timeout growth rate %v", ErrInvalidOption, s.timeoutRate)
	}

	return nil
}

// RunID identifies the run in logs, spans and reports.
func (v *Verifier) RunID() string { return v.runID.String() }

type runIDKey struct{}

// RunIDFromContext returns the run id stored by Check in every context it
// hands to logging, path checks and leaf tasks.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)

	return id, ok
}

// State returns the current lifecycle state.
func (v *Verifier) State() RunState {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.state
}

// Err returns the error that failed or stopped the run, if any.
func (v *Verifier) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.err
}

// Results returns a snapshot of the records collected so far.
func (v *Verifier) Results() Results {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.results.clone()
}

func (v *Verifier) record(id int, r Record) {
	v.mu.Lock()
	v.results[id] = r
	v.mu.Unlock()
}

// Check runs the verification to completion, to the first SAT leaf when
// WithStopWhenSat is set, or until ctx ends. A solver fault aborts the run
// and is returned; records collected before it remain available.
func (v *Verifier) Check(ctx context.Context) (err error) {
	v.mu.Lock()
	if v.state != StateIdle {
		v.mu.Unlock()

		return ErrAlreadyRun
	}

	v.state = StateRunning
	v.mu.Unlock()

	ctx, span := v.cfg.tracer.Start(ctx, "forestcheck.verify.run",
		trace.WithAttributes(
			attribute.String("run.id", v.RunID()),
			attribute.Int("run.workers", v.cfg.workers),
			attribute.Int("run.trees", v.at.Len()),
		))

	defer func() {
		v.finish(err)

		res := v.Results()
		span.SetAttributes(
			attribute.Int("run.leaves.sat", res.Count(verifier.StatusSat)),
			attribute.Int("run.leaves.unsat", res.Count(verifier.StatusUnsat)),
			attribute.Int("run.leaves.unknown", res.Count(verifier.StatusUnknown)),
		)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	ctx = context.WithValue(ctx, runIDKey{}, v.RunID())

	log := v.cfg.logger
	log.InfoContext(ctx, "verification started",
		"trees", v.at.Len(), "workers", v.cfg.workers, "timeout", v.cfg.timeoutStart)

	leaves, err := v.liveLeaves()
	if err != nil {
		return err
	}

	if v.cfg.checkPaths {
		for i, l := range leaves {
			pruned, err := v.checkPaths(ctx, log, l)
			if err != nil {
				return err
			}

			if err := v.st.Replace(pruned); err != nil {
				return err
			}

			leaves[i] = pruned
		}
	}

	if v.cfg.saturateStart && v.cfg.saturateFactor > 0 {
		ntasks := int(math.Round(v.cfg.saturateFactor * float64(v.cfg.workers)))

		leaves, err = v.generateSplits(leaves, ntasks)
		if err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)

	pool := workpool.New(v.cfg.workers)
	defer pool.Close()
	defer cancel()

	pending := make([]*task, 0, len(leaves))

	for _, l := range leaves {
		t, err := v.submit(runCtx, pool, l, v.cfg.timeoutStart)
		if err != nil {
			v.cancelAll(ctx, pending)

			return err
		}

		pending = append(pending, t)
	}

	return v.loop(ctx, runCtx, log, pool, pending)
}

func (v *Verifier) loop(ctx, runCtx context.Context, log *slog.Logger, pool *workpool.Pool, pending []*task) error {
	for len(pending) > 0 {
		if v.stop {
			log.InfoContext(ctx, "stop requested, canceling remaining tasks", "tasks", len(pending))
			v.cancelAll(ctx, pending)

			return nil
		}

		if err := workpool.WaitAny(ctx, pending); err != nil {
			v.cancelAll(ctx, pending)

			return err
		}

		next := make([]*task, 0, len(pending)+1)

		for i, t := range pending {
			if !t.fut.IsDone() {
				next = append(next, t)

				continue
			}

			more, err := v.handleDone(ctx, runCtx, log, pool, t)
			if err != nil {
				v.cancelAll(ctx, next)
				v.cancelAll(ctx, pending[i+1:])

				return err
			}

			next = append(next, more...)
		}

		pending = next
	}

	return nil
}

func (v *Verifier) finish(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.err = err

	switch {
	case err == nil && v.stop:
		v.state = StateStopped
	case err == nil:
		v.state = StateCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		v.state = StateStopped
	default:
		v.state = StateFailed
	}
}

// cancelAll drops tasks whose outcome will never be handled. Each one is
// reported finished exactly once: "discarded" when its result was already in,
// "canceled" otherwise.
func (v *Verifier) cancelAll(ctx context.Context, ts []*task) {
	for _, t := range ts {
		status := "canceled"
		if t.fut.IsDone() {
			status = "discarded"
		}

		v.cfg.metrics.TaskFinished(ctx, status, 0)
		t.fut.Cancel()
	}
}

func (v *Verifier) liveLeaves() ([]*splittree.Leaf, error) {
	ids := v.st.Leaves()
	out := make([]*splittree.Leaf, 0, len(ids))

	for _, id := range ids {
		l, err := v.st.Leaf(id)
		if err != nil {
			return nil, err
		}

		out = append(out, l)
	}

	return out, nil
}

// checkPaths prunes leaf against every tree in parallel and merges the
// per-tree results.
func (v *Verifier) checkPaths(ctx context.Context, log *slog.Logger, leaf *splittree.Leaf) (*splittree.Leaf, error) {
	n := v.at.Len()
	if n == 0 {
		return leaf, nil
	}

	pruned := make([]*splittree.Leaf, n)
	reports := make([]verifier.PathReport, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.cfg.workers)

	for i := range n {
		g.Go(func() error {
			tctx, span := v.cfg.tracer.Start(gctx, "forestcheck.verify.paths",
				trace.WithAttributes(attribute.Int("tree.index", i), attribute.Int("leaf.id", leaf.DomTreeNodeID())))
			defer span.End()

			l, rep, err := verifier.CheckTreePaths(tctx, v.at, i, leaf, v.factory)
			if err != nil {
				span.RecordError(err)

				return fmt.Errorf("check paths of tree %d: %w", i, err)
			}

			span.SetAttributes(attribute.Int("tree.pruned", rep.Pruned))
			pruned[i], reports[i] = l, rep

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, rep := range reports {
		total += rep.Pruned
	}

	v.cfg.metrics.NodesPruned(ctx, total)
	log.InfoContext(ctx, "paths checked", "leaf", leaf.DomTreeNodeID(), "trees", n, "unreachable", total)

	return splittree.Merge(pruned...)
}

// generateSplits splits the highest scoring leaves until there are ntasks
// leaves or no leaf has a split with a positive score.
func (v *Verifier) generateSplits(leaves []*splittree.Leaf, ntasks int) ([]*splittree.Leaf, error) {
	q := splittree.NewLeafQueue()

	var fixed []*splittree.Leaf

	push := func(l *splittree.Leaf) {
		if l.FindBestDomTreeSplit(v.at, v.cfg.scorer) && l.SplitScore() > 0 {
			q.Push(l)
		} else {
			fixed = append(fixed, l)
		}
	}

	for _, l := range leaves {
		push(l)
	}

	for q.Len()+len(fixed) < ntasks {
		l, ok := q.Pop()
		if !ok {
			break
		}

		left, right, err := v.st.Split(l)
		if err != nil {
			return nil, err
		}

		s, _ := l.BestSplit()
		v.record(l.DomTreeNodeID(), Record{Status: verifier.StatusUnknown, Split: &s})

		push(left)
		push(right)
	}

	return append(q.Drain(), fixed...), nil
}

func (v *Verifier) submit(ctx context.Context, pool *workpool.Pool, leaf *splittree.Leaf, timeout time.Duration) (*task, error) {
	id := leaf.DomTreeNodeID()

	fut, err := workpool.Submit(ctx, pool, func(taskCtx context.Context) (verifier.Outcome, error) {
		return v.verifyLeaf(taskCtx, leaf, timeout)
	})
	if err != nil {
		return nil, fmt.Errorf("submit leaf %d: %w", id, err)
	}

	v.cfg.metrics.TaskStarted(ctx)
	v.record(id, Record{Status: verifier.StatusUnknown, Timeout: timeout, Pending: true})

	return &task{leaf: id, timeout: timeout, fut: fut}, nil
}

func (v *Verifier) verifyLeaf(ctx context.Context, leaf *splittree.Leaf, timeout time.Duration) (verifier.Outcome, error) {
	ctx, span := v.cfg.tracer.Start(ctx, "forestcheck.verify.leaf",
		trace.WithAttributes(
			attribute.String("run.id", v.RunID()),
			attribute.Int("leaf.id", leaf.DomTreeNodeID()),
			attribute.Int64("leaf.timeout_ms", timeout.Milliseconds()),
		))
	defer span.End()

	out, err := verifier.VerifyLeaf(ctx, v.at, leaf, timeout, v.factory, v.cfg.scorer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(attribute.String("leaf.status", out.Status().String()))

	return out, nil
}

// nextTimeout grows prev by the configured rate, capped at the maximum.
func (v *Verifier) nextTimeout(prev time.Duration) time.Duration {
	return min(v.cfg.timeoutMax, time.Duration(float64(prev)*v.cfg.timeoutRate))
}

func (v *Verifier) handleDone(
	ctx, runCtx context.Context, log *slog.Logger, pool *workpool.Pool, t *task,
) ([]*task, error) {
	out, err := t.fut.Result()
	if err != nil {
		v.cfg.metrics.TaskFinished(ctx, "error", 0)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, err
	}

	info := out.Info()
	v.cfg.metrics.TaskFinished(ctx, out.Status().String(), info.CheckTime)

	switch o := out.(type) {
	case *verifier.Sat:
		m := o.Model
		v.record(t.leaf, Record{Status: verifier.StatusSat, CheckTime: info.CheckTime, Timeout: t.timeout, Model: &m})
		log.InfoContext(ctx, "leaf verified", "leaf", t.leaf, "status", o.Status(), "check_time", info.CheckTime)

		if v.cfg.stopWhenSat {
			v.stop = true
		}

		return nil, nil
	case *verifier.Unsat:
		v.record(t.leaf, Record{Status: verifier.StatusUnsat, CheckTime: info.CheckTime, Timeout: t.timeout})
		log.InfoContext(ctx, "leaf verified", "leaf", t.leaf, "status", o.Status(), "check_time", info.CheckTime)

		return nil, nil
	case *verifier.Unknown:
		return v.handleUnknown(ctx, runCtx, log, pool, t, o)
	default:
		return nil, fmt.Errorf("%w: leaf %d: unexpected outcome %T", verifier.ErrSolverFault, t.leaf, out)
	}
}

func (v *Verifier) handleUnknown(
	ctx, runCtx context.Context, log *slog.Logger, pool *workpool.Pool, t *task, o *verifier.Unknown,
) ([]*task, error) {
	next := v.nextTimeout(t.timeout)

	s, ok := o.Leaf.BestSplit()
	if !ok {
		if t.timeout >= v.cfg.timeoutMax {
			v.record(t.leaf, Record{Status: verifier.StatusUnknown, CheckTime: o.CheckTime, Timeout: t.timeout})
			log.WarnContext(ctx, "leaf unresolved at max timeout", "leaf", t.leaf, "timeout", t.timeout)

			return nil, nil
		}

		log.InfoContext(ctx, "leaf timed out without a split, retrying",
			"leaf", t.leaf, "timeout", t.timeout, "next_timeout", next)

		rt, err := v.submit(runCtx, pool, o.Leaf, next)
		if err != nil {
			return nil, err
		}

		return []*task{rt}, nil
	}

	left, right, err := v.st.Split(o.Leaf)
	if err != nil {
		return nil, err
	}

	v.cfg.metrics.LeafSplit(ctx)
	v.record(t.leaf, Record{Status: verifier.StatusUnknown, CheckTime: o.CheckTime, Timeout: t.timeout, Split: &s})

	log.InfoContext(ctx, "leaf timed out, splitting",
		"leaf", t.leaf, "check_time", o.CheckTime, "timeout", t.timeout,
		"split", s.String(), "score", o.Leaf.SplitScore(), "balance", o.Leaf.SplitBalance(),
		"left", left.DomTreeNodeID(), "right", right.DomTreeNodeID(), "next_timeout", next)

	out := make([]*task, 0, 2)

	for _, l := range []*splittree.Leaf{left, right} {
		nt, err := v.submit(runCtx, pool, l, next)
		if err != nil {
			v.cancelAll(ctx, out)

			return nil, err
		}

		out = append(out, nt)
	}

	return out, nil
}
