package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartTurnWithNilTracerReturnsNoopSpan(t *testing.T) {
	ctx, span := StartTurn(context.Background(), nil, "sess-1", "corr-1")
	require.NotNil(t, span)
	assert.NotNil(t, ctx)
	EndWithError(span, nil)
}

func TestStartToolCallWithNilTracerReturnsNoopSpan(t *testing.T) {
	ctx, span := StartToolCall(context.Background(), nil, "read_file")
	require.NotNil(t, span)
	assert.NotNil(t, ctx)
	EndWithError(span, errors.New("boom"))
}

func TestProviderTracerStartsRealSpan(t *testing.T) {
	provider := NewProvider(1.0)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	tracer := Tracer(provider, "test")
	ctx, span := StartTurn(context.Background(), tracer, "sess-1", "corr-1")
	require.NotNil(t, span)
	assert.True(t, span.SpanContext().IsValid())
	assert.NotNil(t, ctx)

	_, toolSpan := StartToolCall(ctx, tracer, "write_file")
	require.NotNil(t, toolSpan)
	assert.True(t, toolSpan.SpanContext().IsValid())

	EndWithError(toolSpan, nil)
	EndWithError(span, errors.New("turn failed"))
}

func TestTracerFallsBackToGlobalWhenProviderNil(t *testing.T) {
	tracer := Tracer(nil, "test")
	assert.NotNil(t, tracer)
}
