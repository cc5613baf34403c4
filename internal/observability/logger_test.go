package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/forestcheck/internal/observability"
	"github.com/Sumatoshi-tech/forestcheck/internal/testmodel"
	"github.com/Sumatoshi-tech/forestcheck/pkg/distributed"
	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
	"github.com/Sumatoshi-tech/forestcheck/pkg/splittree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/verifier"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	return record
}

func TestRunHandler_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(observability.NewRunHandler(inner, "test-svc", "test", observability.ModeVerify))

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})

	logger.InfoContext(trace.ContextWithSpanContext(context.Background(), sc), "leaf verified")

	record := decodeRecord(t, &buf)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["trace_id"])
	assert.Equal(t, "0102030405060708", record["span_id"])
	assert.Equal(t, "test-svc", record["service"])
	assert.Equal(t, "test", record["env"])
	assert.Equal(t, "verify", record["mode"])
}

func TestRunHandler_NoTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(observability.NewRunHandler(inner, "forestcheck", "", observability.ModePredict))

	logger.InfoContext(context.Background(), "no span")

	record := decodeRecord(t, &buf)
	assert.NotContains(t, record, "trace_id")
	assert.NotContains(t, record, "env")
	assert.Equal(t, "forestcheck", record["service"])
	assert.Equal(t, "predict", record["mode"])
}

func TestRunHandler_GroupsAndAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(observability.NewRunHandler(inner, "forestcheck", "", observability.ModeVerify))

	logger.With(slog.String("run", "r1")).WithGroup("leaf").InfoContext(context.Background(), "split", slog.Int("id", 4))

	record := decodeRecord(t, &buf)
	assert.Equal(t, "forestcheck", record["service"])
	assert.Equal(t, "r1", record["run"])

	leaf, ok := record["leaf"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 4, leaf["id"], 0)
}

func TestRunHandler_RespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(observability.NewRunHandler(inner, "forestcheck", "", observability.ModeVerify))

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLogger_StampsVerifyRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogJSON = true
	cfg.LogOutput = &buf

	at := testmodel.Depth2()
	prop := verifier.OutputAtLeast(3)

	v, err := distributed.New(splittree.New(at, domain.Box{}), at, verifier.NewBoxFactory(prop),
		distributed.WithWorkers(1),
		distributed.WithTimeouts(time.Second, time.Second, 2),
		distributed.WithLogger(observability.NewLogger(cfg)),
	)
	require.NoError(t, err)
	require.NoError(t, v.Check(context.Background()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)

	for _, line := range lines {
		var record map[string]any

		require.NoError(t, json.Unmarshal([]byte(line), &record), line)
		assert.Equal(t, v.RunID(), record["run"], line)
		assert.Equal(t, "forestcheck", record["service"])
	}
}

func TestRunHandler_NoRunOutsideCheck(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogJSON = true
	cfg.LogOutput = &buf

	observability.NewLogger(cfg).InfoContext(context.Background(), "model loaded")

	assert.NotContains(t, decodeRecord(t, &buf), "run")
}
