package purgo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// defaultServiceVersion is reported when the tracing config names none.
const defaultServiceVersion = "0.1.0"

// ObservabilityFactory creates observability components from pipeline configuration.
type ObservabilityFactory struct {
	logger *slog.Logger
}

// ObservabilityOption configures an ObservabilityFactory.
type ObservabilityOption func(*ObservabilityFactory)

// WithFactoryLogger sets the logger used by logging metrics collectors.
func WithFactoryLogger(logger *slog.Logger) ObservabilityOption {
	return func(f *ObservabilityFactory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewObservabilityFactory creates a new factory for observability components.
func NewObservabilityFactory(options ...ObservabilityOption) *ObservabilityFactory {
	f := &ObservabilityFactory{logger: slog.Default()}
	for _, option := range options {
		option(f)
	}
	return f
}

// CreateTracerProvider creates a TracerProvider based on the pipeline tracing configuration.
func (f *ObservabilityFactory) CreateTracerProvider(
	config PipelineTracingConfig,
	serviceName string,
) (TracerProvider, error) {
	if !config.Enabled {
		return &NoopTracerProvider{}, nil
	}

	switch config.Type {
	case TracingTypeNoop, "":
		return &NoopTracerProvider{}, nil
	case TracingTypeZipkin:
		return f.createZipkinTracerProvider(config, serviceName)
	case TracingTypeOTLP:
		return f.createOTLPTracerProvider(config, serviceName)
	default:
		return nil, NewInvalidValueError("tracing type", config.Type, "expected otlp, zipkin or noop")
	}
}

// CreateMetricsCollector creates a MetricsCollector based on the pipeline metrics configuration.
func (f *ObservabilityFactory) CreateMetricsCollector(config PipelineMetricsConfig) (MetricsCollector, error) {
	if !config.Enabled {
		return &NoopMetricsCollector{}, nil
	}

	switch config.Type {
	case MetricsTypeNoop, "":
		return &NoopMetricsCollector{}, nil
	case MetricsTypeLogging:
		return NewLoggingMetricsCollector(f.logger), nil
	case MetricsTypePrometheus:
		return NewPrometheusMetricsCollector(), nil
	default:
		return nil, NewInvalidValueError("metrics type", config.Type, "expected prometheus, logging or noop")
	}
}

func (f *ObservabilityFactory) createOTLPTracerProvider(
	config PipelineTracingConfig,
	serviceName string,
) (TracerProvider, error) {
	if config.Endpoint == "" {
		return nil, errors.New("otlp endpoint is required")
	}

	// The gRPC connection is established lazily on first export.
	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(config.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	return newSDKTracerProvider(exporter, config, serviceName)
}

func (f *ObservabilityFactory) createZipkinTracerProvider(
	config PipelineTracingConfig,
	serviceName string,
) (TracerProvider, error) {
	if config.Endpoint == "" {
		return nil, errors.New("zipkin endpoint is required")
	}

	exporter, err := zipkin.New(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Zipkin exporter: %w", err)
	}

	return newSDKTracerProvider(exporter, config, serviceName)
}

func newSDKTracerProvider(
	exporter sdktrace.SpanExporter,
	config PipelineTracingConfig,
	serviceName string,
) (TracerProvider, error) {
	version := config.ServiceVersion
	if version == "" {
		version = defaultServiceVersion
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return WrapTracerProvider(tp), nil
}
