package purgo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/synoptiq/go-purgo"
)

func createTestTracer() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	spanRecorder := tracetest.NewSpanRecorder()
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(spanRecorder),
	)
	return spanRecorder, tracerProvider
}

func findSpanByName(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func findAttribute(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func spanContextValid(ctx context.Context) bool {
	return oteltrace.SpanFromContext(ctx).SpanContext().IsValid()
}

func TestTracedStep(t *testing.T) {
	recorder, tp := createTestTracer()

	step := purgo.NewTracedStep(named("clean"),
		purgo.WithStepTracer(tp.Tracer("test")),
		purgo.WithStepAttributes(attribute.String("owner", "data")),
	)
	assert.Equal(t, "clean", step.Name())
	require.NoError(t, step.Run(context.Background(), purgo.NewParams(nil)))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "step.clean", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)

	name, ok := findAttribute(span, purgo.AttrStepName)
	require.True(t, ok)
	assert.Equal(t, "clean", name.AsString())

	owner, ok := findAttribute(span, "owner")
	require.True(t, ok)
	assert.Equal(t, "data", owner.AsString())

	_, ok = findAttribute(span, purgo.AttrDurationMs)
	assert.True(t, ok)
}

func TestTracedStepError(t *testing.T) {
	recorder, tp := createTestTracer()
	boom := errors.New("boom")

	step := purgo.NewTracedStep(
		purgo.NewStep("clean", func(context.Context, *purgo.Params) error { return boom }),
		purgo.WithStepTracerProvider(purgo.WrapTracerProvider(tp)),
	)
	assert.ErrorIs(t, step.Run(context.Background(), purgo.NewParams(nil)), boom)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestPipelineSpans(t *testing.T) {
	recorder, tp := createTestTracer()

	var innerSpanValid bool
	p, err := purgo.New("unused.csv",
		purgo.WithName("titanic"),
		purgo.WithParams(testParams),
		purgo.WithTracerProvider(purgo.WrapTracerProvider(tp)),
		noopReader(&trace{}),
		purgo.WithSteps(purgo.NewStep("inspect", func(ctx context.Context, _ *purgo.Params) error {
			innerSpanValid = spanContextValid(ctx)
			return nil
		})),
	)
	require.NoError(t, err)
	require.NoError(t, p.Process(context.Background()))
	assert.True(t, innerSpanValid)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	root := findSpanByName(spans, "titanic.Process")
	require.NotNil(t, root)
	assert.Equal(t, codes.Ok, root.Status().Code)

	runID, ok := findAttribute(root, purgo.AttrRunID)
	require.True(t, ok)
	assert.Equal(t, p.RunID(), runID.AsString())

	count, ok := findAttribute(root, purgo.AttrStepCount)
	require.True(t, ok)
	assert.Equal(t, int64(2), count.AsInt64())

	for i, name := range []string{"step.read", "step.inspect"} {
		span := findSpanByName(spans, name)
		require.NotNil(t, span, name)
		assert.Equal(t, root.SpanContext().SpanID(), span.Parent().SpanID(), name)

		index, ok := findAttribute(span, purgo.AttrStepIndex)
		require.True(t, ok)
		assert.Equal(t, int64(i), index.AsInt64())
	}

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPipelineSpanOnFailure(t *testing.T) {
	recorder, tp := createTestTracer()

	p, err := purgo.New("unused.csv",
		purgo.WithParams(testParams),
		purgo.WithTracerProvider(purgo.WrapTracerProvider(tp)),
		noopReader(&trace{}),
		purgo.WithSteps(purgo.NewStep("fails", func(context.Context, *purgo.Params) error {
			return errors.New("boom")
		})),
	)
	require.NoError(t, err)
	require.Error(t, p.Process(context.Background()))

	root := findSpanByName(recorder.Ended(), purgo.DefaultPipelineName+".Process")
	require.NotNil(t, root)
	assert.Equal(t, codes.Error, root.Status().Code)
	assert.Contains(t, root.Status().Description, `step "fails" (index 1)`)

	step := findSpanByName(recorder.Ended(), "step.fails")
	require.NotNil(t, step)
	assert.Equal(t, codes.Error, step.Status().Code)
}

func TestNoopTracerProvider(t *testing.T) {
	provider := &purgo.NoopTracerProvider{}
	_, span := provider.Tracer("test").Start(context.Background(), "op")
	assert.False(t, span.IsRecording())
	span.End()
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestWrapTracerProviderShutdown(t *testing.T) {
	recorder, tp := createTestTracer()
	wrapped := purgo.WrapTracerProvider(tp)

	require.NoError(t, wrapped.Shutdown(context.Background()))

	_, span := wrapped.Tracer("test").Start(context.Background(), "after-shutdown")
	span.End()
	assert.Empty(t, recorder.Ended())

	global := purgo.WrapTracerProvider(nil)
	assert.NoError(t, global.Shutdown(context.Background()))
}
