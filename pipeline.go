package purgo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	plog "github.com/synoptiq/go-purgo/log"
)

// DefaultPipelineName is used in logs, metrics and spans when no name is set.
const DefaultPipelineName = "purgo"

// State is the lifecycle state of a Pipeline.
type State int

const (
	// StateReady is the state after construction. Steps can be added and removed.
	StateReady State = iota
	// StateRunning is the state while Process executes steps.
	StateRunning
	// StateCompleted is the state after a run in which every step succeeded.
	StateCompleted
	// StateFailed is the state after a run stopped by a step error or cancellation.
	StateFailed
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// pipelineConfig holds everything New needs, as set by Options.
type pipelineConfig struct {
	steps     []Step
	stepsSet  bool
	params    map[string]any
	configSrc string
	reader    Step
	readerSet bool

	name           string
	logger         *slog.Logger
	collector      MetricsCollector
	tracerProvider TracerProvider
}

// Option configures a Pipeline built by New.
type Option func(*pipelineConfig)

// WithSteps sets the steps that run after the reader, in order.
// Calling WithSteps with no steps still counts as supplying a step list.
func WithSteps(steps ...Step) Option {
	return func(cfg *pipelineConfig) {
		cfg.steps = append([]Step(nil), steps...)
		cfg.stepsSet = true
	}
}

// WithParams seeds the parameter store with a copy of params.
// An empty map counts as no params at all.
func WithParams(params map[string]any) Option {
	return func(cfg *pipelineConfig) {
		cfg.params = params
	}
}

// WithConfigFile loads the initial parameters from a JSON or YAML file.
// It is ignored, with a warning, when WithParams is also given.
func WithConfigFile(path string) Option {
	return func(cfg *pipelineConfig) {
		cfg.configSrc = path
	}
}

// WithReader replaces the built-in reader inserted at position 0.
func WithReader(reader Step) Option {
	return func(cfg *pipelineConfig) {
		cfg.reader = reader
		cfg.readerSet = true
	}
}

// WithName sets the pipeline name used in logs, metrics and spans.
func WithName(name string) Option {
	return func(cfg *pipelineConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *pipelineConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithMetricsCollector sets the collector that receives pipeline and step
// metrics. Default: DefaultMetricsCollector.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(cfg *pipelineConfig) {
		if collector != nil {
			cfg.collector = collector
		}
	}
}

// WithTracerProvider sets the provider for the run span and the step spans.
// Default: the global OpenTelemetry provider.
func WithTracerProvider(provider TracerProvider) Option {
	return func(cfg *pipelineConfig) {
		if provider != nil {
			cfg.tracerProvider = provider
		}
	}
}

// Position tells Add where to insert a step. Build one with At, Before or After.
type Position struct {
	kind   positionKind
	index  int
	anchor string
}

type positionKind int

const (
	positionNone positionKind = iota
	positionIndex
	positionBefore
	positionAfter
)

// At positions a step at absolute index i.
func At(i int) Position {
	return Position{kind: positionIndex, index: i}
}

// Before positions a step directly before the first step named name.
func Before(name string) Position {
	return Position{kind: positionBefore, anchor: name}
}

// After positions a step directly after the first step named name.
func After(name string) Position {
	return Position{kind: positionAfter, anchor: name}
}

// String describes the position, e.g. "after read".
func (p Position) String() string {
	switch p.kind {
	case positionIndex:
		return fmt.Sprintf("at %d", p.index)
	case positionBefore:
		return "before " + p.anchor
	case positionAfter:
		return "after " + p.anchor
	default:
		return "unset"
	}
}

// Pipeline owns one Sequence and one Params store and runs the steps strictly
// one after another. A Pipeline is not safe for concurrent use.
type Pipeline struct {
	name     string
	params   *Params
	sequence *Sequence

	logger    *slog.Logger
	collector MetricsCollector
	provider  TracerProvider
	tracer    trace.Tracer

	state      State
	runID      string
	failedStep int
	warnings   []Warning
}

// New builds a pipeline reading dataSourcePath. The checks run in this order
// and the first failure aborts construction:
//
//  1. params and a config file both given: the config file is ignored with a warning
//  2. neither params nor a config file: ArgumentsError
//  3. a nil step in WithSteps: InvalidTypeError naming its index
//  4. a step list with an empty resolved parameter mapping: ArgumentsError
//  5. an empty data source path: ArgumentsError
//  6. WithReader(nil): InvalidTypeError
//
// The config file is read after these checks, or before check 4 when a step
// list was given.
//
// The store is seeded with the parameters and KeyDataSourcePath, the reader
// is inserted at index 0 and the given steps are appended after it.
func New(dataSourcePath string, opts ...Option) (*Pipeline, error) {
	cfg := &pipelineConfig{
		name:      DefaultPipelineName,
		logger:    slog.Default(),
		collector: DefaultMetricsCollector,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var warnings []Warning
	hasParams := len(cfg.params) > 0
	hasConfig := strings.TrimSpace(cfg.configSrc) != ""

	if hasParams && hasConfig {
		warnings = append(warnings, Warning{
			Source:  cfg.name,
			Message: fmt.Sprintf("both params and config file %q were given, the config file is ignored", cfg.configSrc),
			Time:    time.Now(),
		})
		hasConfig = false
	}

	if !hasParams && !hasConfig {
		return nil, NewArgumentsError("either params or a config file must be provided")
	}

	for i, step := range cfg.steps {
		if err := validateStep(fmt.Sprintf("steps[%d]", i), step); err != nil {
			return nil, err
		}
	}

	mapping := cfg.params
	loaded := hasParams
	load := func() error {
		m, err := LoadParams(cfg.configSrc)
		if err != nil {
			return fmt.Errorf("failed to load config file %q: %w", cfg.configSrc, err)
		}
		mapping, loaded = m, true
		return nil
	}

	// The empty-mapping check needs the file, every other check runs before it is read.
	if cfg.stepsSet && !loaded {
		if err := load(); err != nil {
			return nil, err
		}
	}

	if cfg.stepsSet && len(mapping) == 0 {
		return nil, NewArgumentsError("steps were given but config file %q holds no parameters", cfg.configSrc)
	}

	if strings.TrimSpace(dataSourcePath) == "" {
		return nil, NewArgumentsError("a data source path is required")
	}

	reader := cfg.reader
	if cfg.readerSet {
		if err := validateStep("reader", reader); err != nil {
			return nil, err
		}
	} else {
		reader = NewReader()
	}

	if !loaded {
		if err := load(); err != nil {
			return nil, err
		}
	}

	if cfg.tracerProvider == nil {
		cfg.tracerProvider = WrapTracerProvider(nil)
	}

	p := &Pipeline{
		name:       cfg.name,
		params:     NewParams(mapping),
		logger:     cfg.logger.With(plog.Pipeline(cfg.name)),
		collector:  cfg.collector,
		provider:   cfg.tracerProvider,
		tracer:     cfg.tracerProvider.Tracer(instrumentationName),
		state:      StateReady,
		failedStep: -1,
	}
	p.params.Set(KeyDataSourcePath, dataSourcePath)
	p.sequence = NewSequence(p.params)

	if err := p.sequence.InsertAt(0, reader, nil); err != nil {
		return nil, err
	}
	for _, step := range cfg.steps {
		if err := p.sequence.InsertAt(p.sequence.Len(), step, nil); err != nil {
			return nil, err
		}
	}

	for _, w := range warnings {
		p.recordWarning(context.Background(), w)
	}

	return p, nil
}

func errNotConstructed() error {
	return NewArgumentsError("pipeline was not constructed, use New")
}

// Add inserts step at pos and merges params into the store.
// Add fails with ErrPipelineRunning while Process is executing.
func (p *Pipeline) Add(step Step, params map[string]any, pos Position) error {
	if p == nil {
		return errNotConstructed()
	}
	if p.state == StateRunning {
		return ErrPipelineRunning
	}
	if err := validateStep("step", step); err != nil {
		return err
	}

	var err error
	switch pos.kind {
	case positionIndex:
		err = p.sequence.InsertAt(pos.index, step, params)
	case positionBefore:
		err = p.sequence.InsertRelative(pos.anchor, step, params, RelationBefore)
	case positionAfter:
		err = p.sequence.InsertRelative(pos.anchor, step, params, RelationAfter)
	default:
		return NewArgumentsError("a position is required for step %q: use At, Before or After", step.Name())
	}
	if err != nil {
		return err
	}

	p.failedStep = -1
	p.logger.Debug("step added", plog.StepName(step.Name()), slog.String("position", pos.String()))
	return nil
}

// Remove removes the first step named name. Values it wrote to the store stay.
func (p *Pipeline) Remove(name string) error {
	if p == nil {
		return errNotConstructed()
	}
	if p.state == StateRunning {
		return ErrPipelineRunning
	}
	if err := p.sequence.Remove(name); err != nil {
		return err
	}
	p.failedStep = -1
	p.logger.Debug("step removed", plog.StepName(name))
	return nil
}

// Process runs every step in order against the shared store. The first
// failing step stops the run; its error is returned as a *StepError. There
// is no rollback: mutations made before the failure stay in the store.
//
// A panic in a step's Setup, Run or Close is returned as a *StepError.
// The context is checked between steps; once it is done the run stops with
// an error matching ErrPipelineCancelled. A pipeline may be processed again
// after it completed or failed; the store keeps what earlier runs wrote.
func (p *Pipeline) Process(ctx context.Context) (err error) {
	if p == nil {
		return errNotConstructed()
	}
	if p.state == StateRunning {
		return ErrPipelineRunning
	}

	p.state = StateRunning
	p.runID = uuid.NewString()
	p.failedStep = -1

	steps := p.sequence.Steps()
	logger := p.logger.With(plog.RunID(p.runID))

	ctx, span := p.tracer.Start(ctx, p.name+".Process",
		trace.WithAttributes(
			AttrPipelineName.String(p.name),
			AttrRunID.String(p.runID),
			AttrStepCount.Int(len(steps)),
		),
	)
	defer span.End()

	ctx = withRun(ctx, &runContext{
		pipeline:  p.name,
		runID:     p.runID,
		logger:    logger,
		collector: p.collector,
		record:    p.recordWarning,
	})

	startTime := time.Now()
	p.collector.PipelineStarted(ctx, p.name)
	logger.InfoContext(ctx, "pipeline started", slog.Int("steps", len(steps)))

	err = p.run(ctx, logger, steps)
	if closeErr := closeSteps(context.WithoutCancel(ctx), steps); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	duration := time.Since(startTime)
	p.collector.PipelineCompleted(ctx, p.name, duration, err)

	if err != nil {
		p.state = StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "pipeline failed", plog.Error(err), slog.Duration("duration", duration))
		return err
	}

	p.state = StateCompleted
	span.SetStatus(codes.Ok, "")
	logger.InfoContext(ctx, "pipeline completed", slog.Duration("duration", duration))
	return nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, steps []Step) error {
	if err := setupSteps(ctx, steps); err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			p.failedStep = stepErr.StepIndex
		}
		return err
	}

	for i, step := range steps {
		name := step.Name()

		if ctxErr := ctx.Err(); ctxErr != nil {
			p.failedStep = i
			return fmt.Errorf("%w before step %q: %w", ErrPipelineCancelled, name, ctxErr)
		}

		stepLogger := logger.With(plog.StepName(name), plog.StepIndex(i))
		stepLogger.DebugContext(ctx, "step started")
		startTime := time.Now()

		instrumented := NewTracedStep(
			NewMetricatedStep(step, p.collector),
			WithStepTracer(p.tracer),
			WithStepAttributes(AttrStepIndex.Int(i)),
		)
		if err := guard(func() error { return instrumented.Run(ctx, p.params) }); err != nil {
			p.failedStep = i
			stepLogger.DebugContext(ctx, "step failed", plog.Error(err))
			return NewStepError(name, i, err)
		}

		stepLogger.DebugContext(ctx, "step completed", slog.Duration("duration", time.Since(startTime)))
	}
	return nil
}

func (p *Pipeline) recordWarning(ctx context.Context, w Warning) {
	p.warnings = append(p.warnings, w)
	p.collector.WarningRaised(ctx, w.Source)
	p.logger.LogAttrs(ctx, slog.LevelWarn, w.Message, plog.Source(w.Source))
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	if p == nil {
		return ""
	}
	return p.name
}

// Len returns the number of steps, the reader included.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return p.sequence.Len()
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	if p == nil {
		return nil
	}
	return p.sequence.Names()
}

// Params returns the shared parameter store. It lives as long as the pipeline.
func (p *Pipeline) Params() *Params {
	if p == nil {
		return nil
	}
	return p.params
}

// Sequence returns the underlying step sequence. Mutating it directly
// bypasses the running-state checks of Add and Remove.
func (p *Pipeline) Sequence() *Sequence {
	if p == nil {
		return nil
	}
	return p.sequence
}

// MetricsCollector returns the collector receiving the pipeline's metrics.
func (p *Pipeline) MetricsCollector() MetricsCollector {
	if p == nil {
		return nil
	}
	return p.collector
}

// Shutdown flushes and stops the tracer provider. The pipeline must not be
// processed afterwards.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if p == nil {
		return errNotConstructed()
	}
	if p.state == StateRunning {
		return ErrPipelineRunning
	}
	return p.provider.Shutdown(ctx)
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	if p == nil {
		return StateReady
	}
	return p.state
}

// RunID returns the ID of the last run, or "" before the first Process.
func (p *Pipeline) RunID() string {
	if p == nil {
		return ""
	}
	return p.runID
}

// Warnings returns the warnings raised so far, oldest first.
func (p *Pipeline) Warnings() []Warning {
	if p == nil {
		return nil
	}
	return append([]Warning(nil), p.warnings...)
}

// Info returns a read-only snapshot for diagnostics. A nil pipeline yields
// an empty snapshot with no failed step.
func (p *Pipeline) Info() Info {
	if p == nil {
		return Info{FailedStep: -1}
	}
	return Info{
		Name:       p.name,
		RunID:      p.runID,
		State:      p.state,
		Steps:      p.sequence.Names(),
		Params:     p.params.Snapshot(),
		Warnings:   p.Warnings(),
		FailedStep: p.failedStep,
	}
}
