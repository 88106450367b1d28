package dpopmiddleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNoopTracer(t *testing.T) {
	tracer := &NoopTracer{}

	ctx, span := tracer.StartSpan(context.Background(), "test-operation")

	assert.Equal(t, context.Background(), ctx)
	span.SetTag("key", "value")
	span.Finish()
}

func TestOpenTelemetryTracer(t *testing.T) {
	tracer := NewOpenTelemetryTracer(noop.NewTracerProvider().Tracer("test"))

	ctx, span := tracer.StartSpan(context.Background(), "test-operation")

	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
	assert.NotNil(t, oteltrace.SpanFromContext(ctx))

	span.SetTag("auth.scheme", "DPoP")
	span.SetTag("status", 401)
	span.Finish()
}
