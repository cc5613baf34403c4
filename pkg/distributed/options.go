package distributed

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/forestcheck/pkg/splittree"
)

// Defaults applied by New.
const (
	DefaultSaturateFactor = 1.0
	DefaultTimeoutStart   = 60 * time.Second
	DefaultTimeoutMax     = 3600 * time.Second
	DefaultTimeoutRate    = 1.5
)

// Metrics receives orchestrator events. internal/observability.VerifyMetrics
// implements it on top of OpenTelemetry instruments.
type Metrics interface {
	TaskStarted(ctx context.Context)
	TaskFinished(ctx context.Context, status string, checkTime time.Duration)
	LeafSplit(ctx context.Context)
	NodesPruned(ctx context.Context, n int)
}

type nopMetrics struct{}

func (nopMetrics) TaskStarted(context.Context)                         {}
func (nopMetrics) TaskFinished(context.Context, string, time.Duration) {}
func (nopMetrics) LeafSplit(context.Context)                           {}
func (nopMetrics) NodesPruned(context.Context, int)                    {}

type settings struct {
	checkPaths     bool
	saturateStart  bool
	saturateFactor float64
	stopWhenSat    bool
	timeoutStart   time.Duration
	timeoutMax     time.Duration
	timeoutRate    float64
	workers        int
	scorer         splittree.Scorer
	logger         *slog.Logger
	metrics        Metrics
	tracer         trace.Tracer
}

func defaultSettings() settings {
	return settings{
		checkPaths:     true,
		saturateStart:  true,
		saturateFactor: DefaultSaturateFactor,
		timeoutStart:   DefaultTimeoutStart,
		timeoutMax:     DefaultTimeoutMax,
		timeoutRate:    DefaultTimeoutRate,
		workers:        runtime.NumCPU(),
		scorer:         splittree.ReachabilityScorer{},
		metrics:        nopMetrics{},
	}
}

// Option configures a Verifier.
type Option func(*settings)

// WithCheckPaths toggles the initial path pruning of every tree.
func WithCheckPaths(on bool) Option {
	return func(s *settings) { s.checkPaths = on }
}

// WithSaturateFromStart toggles splitting the domain before the first
// dispatch. With it off the initial leaves are submitted as they are.
func WithSaturateFromStart(on bool) Option {
	return func(s *settings) { s.saturateStart = on }
}

// WithSaturateWorkers sets the up-front split target to
// round(factor * workers) leaves. A factor of zero behaves like
// WithSaturateFromStart(false).
func WithSaturateWorkers(factor float64) Option {
	return func(s *settings) { s.saturateFactor = factor }
}

// WithStopWhenSat ends the run at the first SAT leaf.
func WithStopWhenSat(on bool) Option {
	return func(s *settings) { s.stopWhenSat = on }
}

// WithTimeouts sets the first per-leaf timeout, its upper bound and the
// factor applied on every resubmission.
func WithTimeouts(start, limit time.Duration, rate float64) Option {
	return func(s *settings) {
		s.timeoutStart = start
		s.timeoutMax = limit
		s.timeoutRate = rate
	}
}

// WithWorkers bounds the number of concurrently verified leaves.
func WithWorkers(n int) Option {
	return func(s *settings) { s.workers = n }
}

// WithScorer replaces the split scorer. nil keeps the ReachabilityScorer.
func WithScorer(sc splittree.Scorer) Option {
	return func(s *settings) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default(). Records are logged
// with a context that carries the run id, see RunIDFromContext.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics sets the event sink for metrics.
func WithMetrics(m Metrics) Option {
	return func(s *settings) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the tracer. When nil, falls back to otel.Tracer("forestcheck").
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}
