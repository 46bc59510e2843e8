package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunID(t *testing.T) {
	id1 := NewRunID()
	id2 := NewRunID()

	if id1 == "" {
		t.Error("NewRunID returned empty string")
	}
	if id1 == id2 {
		t.Error("NewRunID returned duplicate IDs")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRunID(ctx))
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetTool(ctx))

	ctx = WithTraceID(ctx, "trace")
	ctx = WithRunID(ctx, "run")
	ctx = WithTool(ctx, "sum")

	tc := FromContext(ctx)
	assert.Equal(t, &TraceContext{TraceID: "trace", RunID: "run", Tool: "sum"}, tc)
}

func TestNewRunContext(t *testing.T) {
	t.Run("explicit run id", func(t *testing.T) {
		ctx := NewRunContext(context.Background(), "sum", "r1")
		assert.Equal(t, "r1", GetRunID(ctx))
		assert.Equal(t, "sum", GetTool(ctx))
		assert.NotEmpty(t, GetTraceID(ctx))
	})

	t.Run("inherits run id", func(t *testing.T) {
		parent := WithRunID(context.Background(), "outer")
		ctx := NewRunContext(parent, "kv.delete", "")
		assert.Equal(t, "outer", GetRunID(ctx))
		assert.Equal(t, "kv.delete", GetTool(ctx))
	})

	t.Run("generates run id", func(t *testing.T) {
		ctx := NewRunContext(context.Background(), "echo", "")
		assert.NotEmpty(t, GetRunID(ctx))
	})

	t.Run("keeps trace id", func(t *testing.T) {
		parent := WithTraceID(context.Background(), "t1")
		ctx := NewRunContext(parent, "echo", "")
		assert.Equal(t, "t1", GetTraceID(ctx))
	})
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTool(WithRunID(context.Background(), "r9"), "sum")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hi")

	out := buf.String()
	assert.Contains(t, out, `"run_id":"r9"`)
	assert.Contains(t, out, `"tool":"sum"`)

	buf.Reset()
	logger = LoggerFromContext(context.Background(), base)
	logger.Info().Msg("plain")
	assert.NotContains(t, buf.String(), "run_id")
}

func TestStartToolSpan(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("toolrun-test"))

	ctx, span := StartToolSpan(context.Background(), "toolrun/test", "tool.call", "sum", "r1")
	require.NotNil(t, span)
	assert.True(t, span.SpanContext().IsValid())
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
	EndSpan(span, errors.New("boom"))

	assert.NoError(t, ShutdownOpenTelemetry(context.Background()))
}
