package purgo

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/synoptiq/go-purgo"

// Span attribute keys.
const (
	AttrPipelineName = attribute.Key("purgo.pipeline.name")
	AttrRunID        = attribute.Key("purgo.run.id")
	AttrStepName     = attribute.Key("purgo.step.name")
	AttrStepIndex    = attribute.Key("purgo.step.index")
	AttrStepCount    = attribute.Key("purgo.pipeline.steps")
	AttrDurationMs   = attribute.Key("purgo.step.duration_ms")
)

// TracerProvider hands out tracers and flushes them on shutdown.
type TracerProvider interface {
	Tracer(name string, options ...trace.TracerOption) trace.Tracer
	Shutdown(ctx context.Context) error
}

// NoopTracerProvider creates tracers that record nothing.
type NoopTracerProvider struct{}

// Ensure NoopTracerProvider implements TracerProvider.
var _ TracerProvider = (*NoopTracerProvider)(nil)

// Tracer returns a no-op tracer.
func (*NoopTracerProvider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return noop.NewTracerProvider().Tracer(name, options...)
}

// Shutdown does nothing.
func (*NoopTracerProvider) Shutdown(_ context.Context) error {
	return nil
}

// otelTracerProvider adapts an OpenTelemetry trace.TracerProvider that may lack
// a Shutdown method (such as the global one).
type otelTracerProvider struct {
	tp     trace.TracerProvider
	global bool
}

func (p *otelTracerProvider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return p.tp.Tracer(name, options...)
}

func (p *otelTracerProvider) Shutdown(ctx context.Context) error {
	if p.global {
		return nil
	}
	if s, ok := p.tp.(interface{ Shutdown(context.Context) error }); ok {
		return s.Shutdown(ctx)
	}
	return nil
}

// WrapTracerProvider adapts any OpenTelemetry tracer provider, such as an
// sdktrace.TracerProvider, to TracerProvider. Shutdown is forwarded when the
// wrapped provider supports it. A nil provider stands for the global one,
// which is never shut down.
func WrapTracerProvider(tp trace.TracerProvider) TracerProvider {
	if tp == nil {
		return &otelTracerProvider{tp: otel.GetTracerProvider(), global: true}
	}
	return &otelTracerProvider{tp: tp}
}

// TracedStep wraps any Step with OpenTelemetry tracing
type TracedStep struct {
	// The underlying step
	step Step

	// Tracer to use
	tracer trace.Tracer

	// Attributes to add to spans
	attributes []attribute.KeyValue
}

// Ensure TracedStep implements Step.
var _ Step = (*TracedStep)(nil)

// TracedStepOption is a function that configures a TracedStep.
type TracedStepOption func(*TracedStep)

// WithStepTracer sets a custom tracer for the TracedStep.
func WithStepTracer(tracer trace.Tracer) TracedStepOption {
	return func(ts *TracedStep) {
		if tracer != nil {
			ts.tracer = tracer
		}
	}
}

// WithStepTracerProvider takes the tracer from provider.
func WithStepTracerProvider(provider TracerProvider) TracedStepOption {
	return func(ts *TracedStep) {
		if provider != nil {
			ts.tracer = provider.Tracer(instrumentationName)
		}
	}
}

// WithStepAttributes adds custom attributes to spans created by the TracedStep.
func WithStepAttributes(attrs ...attribute.KeyValue) TracedStepOption {
	return func(ts *TracedStep) {
		ts.attributes = append(ts.attributes, attrs...)
	}
}

// NewTracedStep creates a new TracedStep that wraps the given step.
func NewTracedStep(step Step, options ...TracedStepOption) *TracedStep {
	ts := &TracedStep{
		step:   step,
		tracer: otel.Tracer(instrumentationName),
	}

	for _, option := range options {
		option(ts)
	}

	return ts
}

// Name returns the name of the wrapped step.
func (ts *TracedStep) Name() string {
	return ts.step.Name()
}

// Unwrap returns the wrapped step.
func (ts *TracedStep) Unwrap() Step {
	return ts.step
}

// Run implements the Step interface for TracedStep.
func (ts *TracedStep) Run(ctx context.Context, params *Params) error {
	name := ts.step.Name()
	attrs := append([]attribute.KeyValue{AttrStepName.String(name)}, ts.attributes...)

	ctx, span := ts.tracer.Start(ctx, "step."+name, trace.WithAttributes(attrs...))
	defer span.End()

	startTime := time.Now()
	err := ts.step.Run(ctx, params)
	span.SetAttributes(AttrDurationMs.Int64(time.Since(startTime).Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
