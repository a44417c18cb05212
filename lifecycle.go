package purgo

import (
	"context"
	"errors"
	"fmt"
)

// Initializer is implemented by steps that need a setup call before a run.
// Process calls Setup on every such step, in sequence order, before the
// first step runs. A Setup error aborts the run before any step executes.
type Initializer interface {
	Setup(ctx context.Context) error
}

// Closer is implemented by steps that hold resources between runs, such as
// open buckets. Process calls Close on every such step, in reverse sequence
// order, once the run ends, whether it failed or not.
type Closer interface {
	Close(ctx context.Context) error
}

// unwrapper is implemented by step decorators.
type unwrapper interface {
	Unwrap() Step
}

// asLifecycle finds the first layer of step, decorators included, that
// implements T.
func asLifecycle[T any](step Step) (T, bool) {
	for step != nil {
		if v, ok := step.(T); ok {
			return v, true
		}
		u, ok := step.(unwrapper)
		if !ok {
			break
		}
		step = u.Unwrap()
	}
	var zero T
	return zero, false
}

func setupSteps(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		initializer, ok := asLifecycle[Initializer](step)
		if !ok {
			continue
		}
		if err := guard(func() error { return initializer.Setup(ctx) }); err != nil {
			return NewStepError(step.Name(), i, fmt.Errorf("setup failed: %w", err))
		}
	}
	return nil
}

func closeSteps(ctx context.Context, steps []Step) error {
	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		closer, ok := asLifecycle[Closer](steps[i])
		if !ok {
			continue
		}
		if err := guard(func() error { return closer.Close(ctx) }); err != nil {
			errs = append(errs, NewStepError(steps[i].Name(), i, fmt.Errorf("close failed: %w", err)))
		}
	}
	return errors.Join(errs...)
}

// guard calls fn and returns a panic raised inside it as an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
