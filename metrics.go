package purgo

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	plog "github.com/synoptiq/go-purgo/log"
)

// MetricsCollector defines an interface for collecting metrics about pipeline runs.
// This allows for integration with various monitoring systems like Prometheus.
type MetricsCollector interface {
	// PipelineStarted is called when Process begins.
	PipelineStarted(ctx context.Context, pipelineName string)
	// PipelineCompleted is called when Process returns, with the run error if any.
	PipelineCompleted(ctx context.Context, pipelineName string, duration time.Duration, err error)

	// StepStarted is called before a step runs.
	StepStarted(ctx context.Context, stepName string)
	// StepCompleted is called when a step returns without error.
	StepCompleted(ctx context.Context, stepName string, duration time.Duration)
	// StepError is called when a step returns an error.
	StepError(ctx context.Context, stepName string, err error)

	// WarningRaised is called for every non-fatal warning.
	WarningRaised(ctx context.Context, source string)

	// RowsRemoved reports rows dropped from a table by a step.
	RowsRemoved(ctx context.Context, stepName, table string, count int)
	// CellsReplaced reports cells overwritten with a sentinel value by a step.
	CellsReplaced(ctx context.Context, stepName, table string, count int)
}

// NoopMetricsCollector is a metrics collector that does nothing.
// It's useful as a default when no metrics collection is needed.
type NoopMetricsCollector struct{}

// Ensure NoopMetricsCollector implements MetricsCollector
var _ MetricsCollector = (*NoopMetricsCollector)(nil)

// PipelineStarted implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) PipelineStarted(_ context.Context, _ string) {}

// PipelineCompleted implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) PipelineCompleted(_ context.Context, _ string, _ time.Duration, _ error) {
}

// StepStarted implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) StepStarted(_ context.Context, _ string) {}

// StepCompleted implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) StepCompleted(_ context.Context, _ string, _ time.Duration) {}

// StepError implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) StepError(_ context.Context, _ string, _ error) {}

// WarningRaised implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) WarningRaised(_ context.Context, _ string) {}

// RowsRemoved implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) RowsRemoved(_ context.Context, _, _ string, _ int) {}

// CellsReplaced implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) CellsReplaced(_ context.Context, _, _ string, _ int) {}

// DefaultMetricsCollector is the default metrics collector used when none is provided.
var DefaultMetricsCollector MetricsCollector = &NoopMetricsCollector{}

// LoggingMetricsCollector writes every metric as a structured log record.
// It is meant for development and for pipelines run from the command line.
type LoggingMetricsCollector struct {
	logger *slog.Logger
	level  slog.Level
}

// Ensure LoggingMetricsCollector implements MetricsCollector.
var _ MetricsCollector = (*LoggingMetricsCollector)(nil)

// NewLoggingMetricsCollector creates a collector logging at info level.
// A nil logger falls back to slog.Default().
func NewLoggingMetricsCollector(logger *slog.Logger) *LoggingMetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingMetricsCollector{logger: logger, level: slog.LevelInfo}
}

func (l *LoggingMetricsCollector) log(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.logger.LogAttrs(ctx, l.level, msg, attrs...)
}

// PipelineStarted logs when a pipeline run starts.
func (l *LoggingMetricsCollector) PipelineStarted(ctx context.Context, pipelineName string) {
	l.log(ctx, "metrics: pipeline started", plog.Pipeline(pipelineName))
}

// PipelineCompleted logs when a pipeline run finishes.
func (l *LoggingMetricsCollector) PipelineCompleted(
	ctx context.Context,
	pipelineName string,
	duration time.Duration,
	err error,
) {
	attrs := []slog.Attr{plog.Pipeline(pipelineName), slog.Duration("duration", duration)}
	if err != nil {
		attrs = append(attrs, plog.Error(err))
	}
	l.log(ctx, "metrics: pipeline completed", attrs...)
}

// StepStarted logs when a step starts.
func (l *LoggingMetricsCollector) StepStarted(ctx context.Context, stepName string) {
	l.log(ctx, "metrics: step started", plog.StepName(stepName))
}

// StepCompleted logs when a step completes.
func (l *LoggingMetricsCollector) StepCompleted(ctx context.Context, stepName string, duration time.Duration) {
	l.log(ctx, "metrics: step completed", plog.StepName(stepName), slog.Duration("duration", duration))
}

// StepError logs when a step errors.
func (l *LoggingMetricsCollector) StepError(ctx context.Context, stepName string, err error) {
	l.log(ctx, "metrics: step error", plog.StepName(stepName), plog.Error(err))
}

// WarningRaised logs a warning count increment.
func (l *LoggingMetricsCollector) WarningRaised(ctx context.Context, source string) {
	l.log(ctx, "metrics: warning raised", plog.Source(source))
}

// RowsRemoved logs dropped rows.
func (l *LoggingMetricsCollector) RowsRemoved(ctx context.Context, stepName, table string, count int) {
	l.log(ctx, "metrics: rows removed",
		plog.StepName(stepName), slog.String("table", table), slog.Int("count", count))
}

// CellsReplaced logs replaced cells.
func (l *LoggingMetricsCollector) CellsReplaced(ctx context.Context, stepName, table string, count int) {
	l.log(ctx, "metrics: cells replaced",
		plog.StepName(stepName), slog.String("table", table), slog.Int("count", count))
}

// PrometheusMetricsCollector implements MetricsCollector for Prometheus.
// Every collector owns its registry, so several pipelines can run in one
// process without duplicate registration errors.
type PrometheusMetricsCollector struct {
	registry *prometheus.Registry

	pipelineRuns     *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	stepStarted      *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	stepErrors       *prometheus.CounterVec
	warnings         *prometheus.CounterVec
	rowsRemoved      *prometheus.CounterVec
	cellsReplaced    *prometheus.CounterVec
}

// Ensure PrometheusMetricsCollector implements MetricsCollector.
var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)

// NewPrometheusMetricsCollector creates a collector backed by a fresh registry.
func NewPrometheusMetricsCollector() *PrometheusMetricsCollector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusMetricsCollector{
		registry: reg,
		pipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "purgo_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		}, []string{"pipeline", "status"}),
		pipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "purgo_pipeline_duration_seconds",
			Help:    "Duration of pipeline runs",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline"}),
		stepStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "purgo_step_started_total",
			Help: "Total number of steps started",
		}, []string{"step"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "purgo_step_duration_seconds",
			Help:    "Duration of successful step runs",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
		stepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "purgo_step_errors_total",
			Help: "Total number of step errors by step",
		}, []string{"step"}),
		warnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "purgo_warnings_total",
			Help: "Total number of non-fatal warnings by source",
		}, []string{"source"}),
		rowsRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "purgo_rows_removed_total",
			Help: "Total number of table rows removed",
		}, []string{"step", "table"}),
		cellsReplaced: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "purgo_cells_replaced_total",
			Help: "Total number of table cells replaced with a sentinel value",
		}, []string{"step", "table"}),
	}
}

// Registry returns the registry holding the collector's metrics, for
// exposition with promhttp or inspection in tests.
func (p *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return p.registry
}

// PipelineStarted is a no-op: runs are counted on completion, by outcome.
func (p *PrometheusMetricsCollector) PipelineStarted(_ context.Context, _ string) {}

// PipelineCompleted counts the run and records its duration.
func (p *PrometheusMetricsCollector) PipelineCompleted(
	_ context.Context,
	pipelineName string,
	duration time.Duration,
	err error,
) {
	status := "completed"
	if err != nil {
		status = "failed"
	}
	p.pipelineRuns.WithLabelValues(pipelineName, status).Inc()
	p.pipelineDuration.WithLabelValues(pipelineName).Observe(duration.Seconds())
}

// StepStarted increments the step started counter.
func (p *PrometheusMetricsCollector) StepStarted(_ context.Context, stepName string) {
	p.stepStarted.WithLabelValues(stepName).Inc()
}

// StepCompleted records step duration.
func (p *PrometheusMetricsCollector) StepCompleted(_ context.Context, stepName string, duration time.Duration) {
	p.stepDuration.WithLabelValues(stepName).Observe(duration.Seconds())
}

// StepError increments the step error counter.
func (p *PrometheusMetricsCollector) StepError(_ context.Context, stepName string, _ error) {
	p.stepErrors.WithLabelValues(stepName).Inc()
}

// WarningRaised increments the warning counter.
func (p *PrometheusMetricsCollector) WarningRaised(_ context.Context, source string) {
	p.warnings.WithLabelValues(source).Inc()
}

// RowsRemoved adds count to the removed rows counter.
func (p *PrometheusMetricsCollector) RowsRemoved(_ context.Context, stepName, table string, count int) {
	p.rowsRemoved.WithLabelValues(stepName, table).Add(float64(count))
}

// CellsReplaced adds count to the replaced cells counter.
func (p *PrometheusMetricsCollector) CellsReplaced(_ context.Context, stepName, table string, count int) {
	p.cellsReplaced.WithLabelValues(stepName, table).Add(float64(count))
}

// MetricatedStep wraps any Step with metrics collection
type MetricatedStep struct {
	// The underlying step
	step Step

	// Metrics collector
	collector MetricsCollector
}

// Ensure MetricatedStep implements Step.
var _ Step = (*MetricatedStep)(nil)

// NewMetricatedStep creates a new metricated step that wraps an existing step.
// A nil collector uses DefaultMetricsCollector.
func NewMetricatedStep(step Step, collector MetricsCollector) *MetricatedStep {
	if collector == nil {
		collector = DefaultMetricsCollector
	}
	return &MetricatedStep{step: step, collector: collector}
}

// Name returns the name of the wrapped step.
func (ms *MetricatedStep) Name() string {
	return ms.step.Name()
}

// Unwrap returns the wrapped step.
func (ms *MetricatedStep) Unwrap() Step {
	return ms.step
}

// Run implements the Step interface for MetricatedStep.
func (ms *MetricatedStep) Run(ctx context.Context, params *Params) error {
	name := ms.step.Name()
	startTime := time.Now()

	ms.collector.StepStarted(ctx, name)

	err := ms.step.Run(ctx, params)
	if err != nil {
		ms.collector.StepError(ctx, name, err)
		return err
	}

	ms.collector.StepCompleted(ctx, name, time.Since(startTime))
	return nil
}
