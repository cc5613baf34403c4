package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/forestcheck/internal/observability"
	"github.com/Sumatoshi-tech/forestcheck/pkg/distributed"
	"github.com/Sumatoshi-tech/forestcheck/pkg/verifier"
)

// parseLevel maps a config log level name to an slog level.
func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
}

// VerifyOptions translates the verify and pool sections into orchestrator
// options. Zero durations and rates fall back to the package defaults.
func (c *Config) VerifyOptions() []distributed.Option {
	v := c.Verify

	start := orDefault(v.TimeoutStart, distributed.DefaultTimeoutStart)
	limit := orDefault(v.TimeoutMax, distributed.DefaultTimeoutMax)
	limit = max(limit, start)

	rate := v.TimeoutRate
	if rate == 0 {
		rate = distributed.DefaultTimeoutRate
	}

	opts := []distributed.Option{
		distributed.WithCheckPaths(v.CheckPaths),
		distributed.WithStopWhenSat(v.StopWhenSat),
		distributed.WithSaturateFromStart(v.SaturateFromStart),
		distributed.WithSaturateWorkers(v.SaturateFactor),
		distributed.WithTimeouts(start, limit, rate),
	}

	if c.Pool.Workers > 0 {
		opts = append(opts, distributed.WithWorkers(c.Pool.Workers))
	}

	return opts
}

// BoxOptions returns the solver options derived from the verify section.
func (c *Config) BoxOptions() []verifier.BoxOption {
	return []verifier.BoxOption{verifier.WithPrecheckLimit(c.Verify.PrecheckLimit)}
}

// ObservabilityConfig builds the telemetry config for the given mode.
func (c *Config) ObservabilityConfig(mode observability.AppMode, version string) observability.Config {
	o := c.Observability
	cfg := observability.DefaultConfig()

	cfg.ServiceVersion = version
	cfg.Environment = o.Environment
	cfg.Mode = mode
	cfg.OTLPEndpoint = o.OTLPEndpoint
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(o.OTLPHeaders)
	cfg.OTLPInsecure = o.OTLPInsecure
	cfg.Prometheus = o.MetricsAddr != ""
	cfg.DebugTrace = o.DebugTrace
	cfg.SampleRatio = o.SampleRatio
	cfg.TraceVerbose = o.TraceVerbose
	cfg.LogJSON = o.LogJSON

	// Validate has already rejected unknown levels.
	cfg.LogLevel, _ = parseLevel(o.LogLevel)

	return cfg
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}

	return def
}
