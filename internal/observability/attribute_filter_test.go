package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/forestcheck/internal/observability"
)

func filteredSpanAttrs(t *testing.T, logger *slog.Logger, kvs ...attribute.KeyValue) map[string]any {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), logger)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.SetAttributes(kvs...)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	m := make(map[string]any, len(spans[0].Attributes))
	for _, a := range spans[0].Attributes {
		m[string(a.Key)] = a.Value.AsInterface()
	}

	return m
}

func TestAttributeFilter_AllowsRunAttributes(t *testing.T) {
	t.Parallel()

	attrs := filteredSpanAttrs(t, nil,
		attribute.String("run.id", "abc"),
		attribute.Int("leaf.id", 7),
		attribute.Int("tree.index", 2),
		attribute.String("error.type", "timeout"),
		attribute.Bool("error", true),
	)

	assert.Equal(t, "abc", attrs["run.id"])
	assert.Equal(t, int64(7), attrs["leaf.id"])
	assert.Equal(t, int64(2), attrs["tree.index"])
	assert.Equal(t, "timeout", attrs["error.type"])
	assert.Equal(t, true, attrs["error"])
}

func TestAttributeFilter_BlocksInputsAndUnknownKeys(t *testing.T) {
	t.Parallel()

	attrs := filteredSpanAttrs(t, nil,
		attribute.Float64Slice("model.input", []float64{1, 2}),
		attribute.String("user.email", "alice@example.com"),
		attribute.String("random", "x"),
		attribute.Int("model.trees", 3),
	)

	assert.NotContains(t, attrs, "model.input")
	assert.NotContains(t, attrs, "user.email")
	assert.NotContains(t, attrs, "random")
	assert.Equal(t, int64(3), attrs["model.trees"])
}

func TestAttributeFilter_WarnsWithLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	filteredSpanAttrs(t, logger, attribute.String("user.secret", "val"))

	assert.Contains(t, buf.String(), "user.secret")
	assert.Contains(t, buf.String(), "blocked")
}
