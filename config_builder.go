package purgo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	plog "github.com/synoptiq/go-purgo/log"
)

// Error messages
const (
	ErrFactoryExists  = "step factory already registered for name: %s"
	ErrExecutorExists = "executor with name '%s' is already registered"
)

// Names of the factories registered by DefaultRegistry.
const (
	FactoryReadData       = "read_data"
	FactoryHandleOutliers = "handle_outliers"
	FactoryWriteTable     = "write_table"
	FactoryStepFunc       = "step_func"
)

// StepFactory constructs a step named name from the factory config of a
// step definition.
type StepFactory func(name string, config map[string]any) (Step, error)

// Registry holds registered step factories and user-defined executors.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]StepFactory
	executors map[string]StepFunc
}

// NewRegistry creates a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]StepFactory),
		executors: make(map[string]StepFunc),
	}
}

// DefaultRegistry returns a registry with the built-in factories:
// read_data, handle_outliers, write_table and step_func. step_func builds a
// step from the executor named by the "executor" config key.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.factories[FactoryReadData] = func(name string, config map[string]any) (Step, error) {
		if err := noConfig(FactoryReadData, config); err != nil {
			return nil, err
		}
		return NewReader(WithReaderName(name)), nil
	}
	r.factories[FactoryHandleOutliers] = func(name string, config map[string]any) (Step, error) {
		if err := noConfig(FactoryHandleOutliers, config); err != nil {
			return nil, err
		}
		return NewOutlierHandler(WithOutlierStepName(name)), nil
	}
	r.factories[FactoryWriteTable] = func(name string, config map[string]any) (Step, error) {
		if err := noConfig(FactoryWriteTable, config); err != nil {
			return nil, err
		}
		return NewWriter(WithWriterName(name)), nil
	}
	r.factories[FactoryStepFunc] = r.buildStepFunc
	return r
}

func noConfig(factory string, config map[string]any) error {
	if len(config) == 0 {
		return nil
	}
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return NewArgumentsError("factory %q takes no config, got keys %v; step inputs belong in params", factory, keys)
}

func (r *Registry) buildStepFunc(name string, config map[string]any) (Step, error) {
	raw, ok := config["executor"]
	if !ok {
		return nil, NewArgumentsError("factory %q requires an \"executor\" config key", FactoryStepFunc)
	}
	executor, ok := raw.(string)
	if !ok {
		return nil, NewInvalidTypeError("executor", "string", raw)
	}
	fn, ok := r.GetExecutor(executor)
	if !ok {
		return nil, NewNotFoundError("executor", executor)
	}
	return NewStep(name, fn), nil
}

// RegisterFactory adds a new step factory under name.
// Returns an error if a factory is already registered under this name.
func (r *Registry) RegisterFactory(name string, factory StepFactory) error {
	if factory == nil {
		return NewInvalidTypeError(name, "purgo.StepFactory", factory)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf(ErrFactoryExists, name)
	}
	r.factories[name] = factory
	return nil
}

// GetFactory retrieves a step factory by its name.
func (r *Registry) GetFactory(name string) (StepFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[name]
	return factory, ok
}

// RegisterExecutor allows users to register their custom step functions,
// for use with the step_func factory.
// Returns an error if an executor is already registered with this name.
func (r *Registry) RegisterExecutor(name string, fn StepFunc) error {
	if fn == nil {
		return NewInvalidTypeError(name, "purgo.StepFunc", fn)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[name]; exists {
		return fmt.Errorf(ErrExecutorExists, name)
	}
	r.executors[name] = fn
	return nil
}

// GetExecutor retrieves a user-defined function by its name.
func (r *Registry) GetExecutor(name string) (StepFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.executors[name]
	return fn, ok
}

// BuildPipelineFromConfig is the main entry point for creating a runnable
// pipeline from a parsed definition. It validates the config, creates the
// configured observability components, then adds each step in order.
// Options are applied after those derived from the config and win over them.
func BuildPipelineFromConfig(config *PipelineConfig, registry *Registry, opts ...Option) (p *Pipeline, err error) {
	if config == nil {
		return nil, NewArgumentsError("a pipeline configuration is required")
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	logger := slog.Default()
	if config.LogLevel != "" {
		logger = plog.NewWithLevel(config.Name, "pipeline", config.Version, plog.ParseLevel(config.LogLevel))
	}

	factory := NewObservabilityFactory(WithFactoryLogger(logger))
	collector, err := factory.CreateMetricsCollector(config.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}
	provider, err := factory.CreateTracerProvider(config.Tracing, config.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}
	defer func() {
		if err != nil {
			_ = provider.Shutdown(context.Background())
		}
	}()

	options := []Option{
		WithName(config.Name),
		WithLogger(logger),
		WithMetricsCollector(collector),
		WithTracerProvider(provider),
	}
	if len(config.Params) > 0 {
		options = append(options, WithParams(config.Params))
	}
	if config.ConfigFile != "" {
		options = append(options, WithConfigFile(config.ConfigFile))
	}
	if config.Reader != nil {
		reader, err := buildStep(registry, ReaderStepName, config.Reader.Factory, config.Reader.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to build reader: %w", err)
		}
		options = append(options, WithReader(reader))
	}
	options = append(options, opts...)

	p, err = New(config.DataSource, options...)
	if err != nil {
		return nil, err
	}

	for i := range config.Steps {
		stepConfig := &config.Steps[i]
		step, err := buildStep(registry, stepConfig.Name, stepConfig.Factory, stepConfig.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to build step #%d ('%s'): %w", i, stepConfig.Name, err)
		}
		if rl := stepConfig.RateLimit; rl != nil {
			var limiterOpts []RateLimiterOption
			if rl.Timeout > 0 {
				limiterOpts = append(limiterOpts, WithLimiterTimeout(rl.Timeout))
			}
			step = NewRateLimitedStep(step, rate.Limit(rl.Rate), rl.Burst, limiterOpts...)
		}

		pos, ok := stepConfig.Position()
		if !ok {
			pos = At(p.Len())
		}
		if err := p.Add(step, stepConfig.Params, pos); err != nil {
			return nil, fmt.Errorf("failed to add step #%d ('%s'): %w", i, stepConfig.Name, err)
		}
	}

	return p, nil
}

func buildStep(registry *Registry, name, factoryName string, config map[string]any) (Step, error) {
	factory, ok := registry.GetFactory(factoryName)
	if !ok {
		return nil, NewNotFoundError("step factory", factoryName)
	}
	step, err := factory(name, config)
	if err != nil {
		return nil, err
	}
	if err := validateStep(name, step); err != nil {
		return nil, err
	}
	return step, nil
}
