package purgo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

const (
	// PipelineVersion is the default version of the pipeline configuration.
	PipelineVersion = "1.0.0"
)

// LoadParams reads a parameter mapping from a .json, .yaml or .yml file.
// Paths are resolved like data sources, so bucket URLs work too.
// The top level of the document must be an object.
func LoadParams(src string) (map[string]any, error) {
	var b buckets
	defer b.close() //nolint:errcheck // read-only

	data, err := b.readAll(context.Background(), src)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := extOf(src); ext {
	case ".json":
		return LoadParamsFromJSON(data)
	case ".yaml", ".yml":
		return LoadParamsFromYAML(data)
	default:
		return nil, NewInvalidValueError("config file", src, fmt.Sprintf("unsupported extension %q, expected .json, .yaml or .yml", ext))
	}
}

// LoadParamsFromJSON parses a JSON object into a parameter mapping. With a
// gjson path, only the object found at that path is used, e.g.
// "pipelines.titanic.params".
func LoadParamsFromJSON(data []byte, jsonPath ...string) (map[string]any, error) {
	if !gjson.ValidBytes(data) {
		return nil, NewInvalidValueError("config", len(data), "malformed JSON document")
	}

	result := gjson.ParseBytes(data)
	if len(jsonPath) > 0 && jsonPath[0] != "" {
		result = result.Get(jsonPath[0])
		if !result.Exists() {
			return nil, NewNotFoundError("config path", jsonPath[0])
		}
	}

	if !result.IsObject() {
		return nil, NewInvalidTypeError("config", "JSON object", result.Type.String())
	}
	params, ok := result.Value().(map[string]any)
	if !ok {
		return nil, NewInvalidTypeError("config", "JSON object", result.Value())
	}
	return params, nil
}

// LoadParamsFromYAML parses a YAML mapping into a parameter mapping.
// An empty document yields an empty mapping.
func LoadParamsFromYAML(data []byte) (map[string]any, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if doc == nil {
		return map[string]any{}, nil
	}
	params, ok := doc.(map[string]any)
	if !ok {
		return nil, NewInvalidTypeError("config", "YAML mapping", doc)
	}
	return params, nil
}

// TracingType selects the tracing backend of a pipeline.
type TracingType string

const (
	// TracingTypeOTLP exports spans over OTLP/gRPC.
	TracingTypeOTLP TracingType = "otlp"
	// TracingTypeZipkin exports spans to a Zipkin collector.
	TracingTypeZipkin TracingType = "zipkin"
	// TracingTypeNoop represents no tracing.
	TracingTypeNoop TracingType = "noop"
)

// PipelineTracingConfig holds the configuration for tracing in a pipeline.
type PipelineTracingConfig struct {
	Enabled        bool        `yaml:"enabled"`
	Type           TracingType `yaml:"type"                      validate:"omitempty,oneof=otlp zipkin noop"`
	Endpoint       string      `yaml:"endpoint"`                  // host:port for OTLP, a URL for Zipkin
	ServiceVersion string      `yaml:"service_version,omitempty"` // reported as service.version
}

// MetricsType selects the metrics backend of a pipeline.
type MetricsType string

const (
	// MetricsTypePrometheus collects into a Prometheus registry.
	MetricsTypePrometheus MetricsType = "prometheus"
	// MetricsTypeLogging writes metrics as log records.
	MetricsTypeLogging MetricsType = "logging"
	// MetricsTypeNoop represents no metrics.
	MetricsTypeNoop MetricsType = "noop"
)

// PipelineMetricsConfig holds the configuration for metrics in a pipeline.
type PipelineMetricsConfig struct {
	Enabled bool        `yaml:"enabled"`
	Type    MetricsType `yaml:"type"     validate:"omitempty,oneof=prometheus logging noop"`
	// Endpoint is the listen address of the /metrics handler served by
	// the command line tools, e.g. ":9090".
	Endpoint string `yaml:"endpoint"`
}

// RateLimitConfig throttles a step, see NewRateLimitedStep.
type RateLimitConfig struct {
	Rate    float64       `yaml:"rate"              validate:"gt=0"` // runs per second
	Burst   int           `yaml:"burst"             validate:"gte=1"`
	Timeout time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`
}

// StepConfig describes one step of a pipeline definition. At most one of
// Index, Before and After may be set; without any the step is appended.
type StepConfig struct {
	Name    string `yaml:"name"             validate:"required"`
	Factory string `yaml:"factory"          validate:"required"`
	Index   *int   `yaml:"index,omitempty"  validate:"omitempty,gte=0"`
	Before  string `yaml:"before,omitempty"`
	After   string `yaml:"after,omitempty"`
	// Params are merged into the store when the step is added.
	Params map[string]any `yaml:"params,omitempty"`
	// Config is passed to the step factory.
	Config    map[string]any   `yaml:"config,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty" validate:"omitempty"`
}

// ReaderConfig replaces the built-in reader of a pipeline definition.
type ReaderConfig struct {
	Factory string         `yaml:"factory"          validate:"required"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// PipelineConfig holds the parsed definition of a single pipeline.
type PipelineConfig struct {
	Version    string         `yaml:"version"               validate:"required"`
	Name       string         `yaml:"pipeline_name"         validate:"required"`
	DataSource string         `yaml:"data_source"           validate:"required"`
	Params     map[string]any `yaml:"params,omitempty"`
	ConfigFile string         `yaml:"config_file,omitempty"`
	Reader     *ReaderConfig  `yaml:"reader,omitempty"      validate:"omitempty"`
	Steps      []StepConfig   `yaml:"steps"                 validate:"dive"`
	LogLevel   string         `yaml:"log_level,omitempty"   validate:"omitempty,oneof=debug info warn error"`

	Tracing PipelineTracingConfig `yaml:"tracing,omitempty"`
	Metrics PipelineMetricsConfig `yaml:"metrics,omitempty"`
}

// Validate checks the pipeline configuration for correctness using struct tags.
func (pc *PipelineConfig) Validate() error {
	validate := validator.New()

	if err := validate.Struct(pc); err != nil {
		return fmt.Errorf("pipeline configuration validation failed: %w", err)
	}

	for i, step := range pc.Steps {
		if err := step.validatePosition(); err != nil {
			return fmt.Errorf("validation failed for step #%d ('%s'): %w", i, step.Name, err)
		}
	}
	return nil
}

func (sc *StepConfig) validatePosition() error {
	set := 0
	if sc.Index != nil {
		set++
	}
	if sc.Before != "" {
		set++
	}
	if sc.After != "" {
		set++
	}
	if set > 1 {
		return NewArgumentsError("only one of index, before and after may be set")
	}
	return nil
}

// Position returns where the step goes in the sequence. Steps without a
// position are appended, which is reported by the boolean.
func (sc *StepConfig) Position() (Position, bool) {
	switch {
	case sc.Index != nil:
		return At(*sc.Index), true
	case sc.Before != "":
		return Before(sc.Before), true
	case sc.After != "":
		return After(sc.After), true
	default:
		return Position{}, false
	}
}

// LoadPipelineConfigFromYAML parses and validates a pipeline definition.
func LoadPipelineConfigFromYAML(data []byte) (*PipelineConfig, error) {
	cfg := &PipelineConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline configuration: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = PipelineVersion
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPipelineConfig reads a pipeline definition from a YAML file or bucket URL.
func LoadPipelineConfig(src string) (*PipelineConfig, error) {
	var b buckets
	defer b.close() //nolint:errcheck // read-only

	data, err := b.readAll(context.Background(), src)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline configuration: %w", err)
	}
	cfg, err := LoadPipelineConfigFromYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	return cfg, nil
}
