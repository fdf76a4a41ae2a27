package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	return entry
}

func TestTraceHandler_NoSpanContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "scan finished", "lane", "cabecera")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.Equal(t, "scan finished", entry["msg"])
	assert.Equal(t, "cabecera", entry["lane"])
}

func TestTraceHandler_WithSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "process_file")
	defer span.End()

	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(ctx, "file committed")

	entry := decode(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
}

func TestTraceHandler_Enabled(t *testing.T) {
	h := NewTraceHandler(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))
	assert.True(t, h.Enabled(ctx, slog.LevelError))
}

func TestTraceHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewTraceHandler(slog.NewJSONHandler(&buf, nil))

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("lane", "detalle")})
	require.IsType(t, &TraceHandler{}, withAttrs)

	withGroup := withAttrs.WithGroup("file")
	require.IsType(t, &TraceHandler{}, withGroup)

	slog.New(withGroup).Info("claimed", "name", "detalle_001.txt")

	entry := decode(t, &buf)
	assert.Equal(t, "detalle", entry["lane"])
	assert.Equal(t, map[string]any{"name": "detalle_001.txt"}, entry["file"])
}

func TestTraceHandler_NilHandler(t *testing.T) {
	assert.Panics(t, func() { NewTraceHandler(nil) })
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx, logger := With(WithLogger(context.Background(), base), "lane", "leyenda")
	require.Same(t, logger, LoggerFromContext(ctx))

	LoggerFromContext(ctx).Info("poll")
	assert.Equal(t, "leyenda", decode(t, &buf)["lane"])
}

func TestLoggerFromContext_Default(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))
}
