package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/forestcheck/pkg/distributed"
)

// Keys stamped on every record.
const (
	logKeyService = "service"
	logKeyMode    = "mode"
	logKeyEnv     = "env"
	logKeyRun     = "run"
	logKeyTraceID = "trace_id"
	logKeySpanID  = "span_id"
)

// NewLogger builds the CLI logger: text or JSON on cfg.LogOutput (stderr by
// default), filtered at cfg.LogLevel and wrapped in a RunHandler.
func NewLogger(cfg Config) *slog.Logger {
	out := cfg.LogOutput
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var inner slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.LogJSON {
		inner = slog.NewJSONHandler(out, opts)
	}

	return slog.New(NewRunHandler(inner, cfg.ServiceName, cfg.Environment, cfg.Mode))
}

// RunHandler ties log records to the verification they belong to. A record
// logged under a verify run gets the run id, and one logged inside a
// recorded span gets its trace and span ids. Service metadata is attached at
// construction so it stays top-level under WithGroup.
type RunHandler struct {
	inner slog.Handler
}

// NewRunHandler wraps inner. env is omitted when empty.
func NewRunHandler(inner slog.Handler, service, env string, mode AppMode) *RunHandler {
	attrs := []slog.Attr{slog.String(logKeyService, service), slog.String(logKeyMode, string(mode))}
	if env != "" {
		attrs = append(attrs, slog.String(logKeyEnv, env))
	}

	return &RunHandler{inner: inner.WithAttrs(attrs)}
}

// Enabled implements slog.Handler.
func (h *RunHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RunHandler) Handle(ctx context.Context, record slog.Record) error {
	if id, ok := distributed.RunIDFromContext(ctx); ok {
		record.AddAttrs(slog.String(logKeyRun, id))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(
			slog.String(logKeyTraceID, sc.TraceID().String()),
			slog.String(logKeySpanID, sc.SpanID().String()),
		)
	}

	if err := h.inner.Handle(ctx, record); err != nil {
		return fmt.Errorf("log %q: %w", record.Message, err)
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (h *RunHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RunHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *RunHandler) WithGroup(name string) slog.Handler {
	return &RunHandler{inner: h.inner.WithGroup(name)}
}
