package purgo

import (
	"context"
	"reflect"
)

// Step is a named unit of work over the shared parameter store.
// Run reads and writes params in place; it has no other output.
// The name is used to position other steps relative to this one.
type Step interface {
	Name() string
	Run(ctx context.Context, params *Params) error
}

// StepFunc is a function that runs against the parameter store.
type StepFunc func(ctx context.Context, params *Params) error

// funcStep binds a StepFunc to a name.
type funcStep struct {
	name string
	fn   StepFunc
}

// NewStep creates a Step named name that calls fn.
// Parameters a step needs beyond the store are captured by the closure.
func NewStep(name string, fn StepFunc) Step {
	return &funcStep{name: name, fn: fn}
}

// Name implements the Step interface.
func (s *funcStep) Name() string {
	return s.name
}

// Run implements the Step interface.
func (s *funcStep) Run(ctx context.Context, params *Params) error {
	return s.fn(ctx, params)
}

// validateStep reports whether step can be placed in a sequence.
func validateStep(name string, step Step) error {
	if step == nil {
		return NewInvalidTypeError(name, "purgo.Step", step)
	}
	if rv := reflect.ValueOf(step); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return NewInvalidTypeError(name, "non-nil purgo.Step", step)
	}
	if fs, ok := step.(*funcStep); ok && fs.fn == nil {
		return NewInvalidTypeError(name, "purgo.Step with a non-nil function", step)
	}
	return nil
}
