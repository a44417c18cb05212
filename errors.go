package purgo

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error classes produced by this package.
// Every typed error below matches exactly one of them with errors.Is.
var (
	// ErrArguments marks missing or mutually exclusive arguments.
	ErrArguments = errors.New("invalid arguments")
	// ErrInvalidType marks a parameter of the wrong shape or type.
	ErrInvalidType = errors.New("invalid type")
	// ErrInvalidValue marks a value outside of its allowed domain.
	ErrInvalidValue = errors.New("invalid value")
	// ErrInvalidArgument marks a positional argument (an index) out of range.
	// It is a subclass of ErrInvalidValue.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks a reference to a step, column or key that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPipelineRunning is returned when the sequence is mutated, or Process is
	// called again, while the pipeline is processing.
	ErrPipelineRunning = errors.New("pipeline is running")
	// ErrPipelineCancelled is returned when the context is done between steps.
	ErrPipelineCancelled = errors.New("pipeline cancelled")
)

// ArgumentsError reports missing or mutually exclusive arguments.
type ArgumentsError struct {
	Message string
}

// Error implements the error interface for ArgumentsError.
func (e *ArgumentsError) Error() string {
	return fmt.Sprintf("arguments error: %s", e.Message)
}

// Is reports whether target is ErrArguments.
func (e *ArgumentsError) Is(target error) bool {
	return target == ErrArguments
}

// NewArgumentsError creates a new ArgumentsError.
func NewArgumentsError(format string, args ...any) *ArgumentsError {
	return &ArgumentsError{Message: fmt.Sprintf(format, args...)}
}

// InvalidTypeError reports a value whose type does not match what the consumer expects.
type InvalidTypeError struct {
	// Name identifies the offending parameter, option or element.
	Name string
	// Expected describes the expected type.
	Expected string
	// Value is the offending value.
	Value any
}

// Error implements the error interface for InvalidTypeError.
func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("%q should be of type %s, received %v of type %T", e.Name, e.Expected, e.Value, e.Value)
}

// Is reports whether target is ErrInvalidType.
func (e *InvalidTypeError) Is(target error) bool {
	return target == ErrInvalidType
}

// NewInvalidTypeError creates a new InvalidTypeError.
func NewInvalidTypeError(name, expected string, value any) *InvalidTypeError {
	return &InvalidTypeError{Name: name, Expected: expected, Value: value}
}

// InvalidValueError reports a value outside of its allowed domain.
type InvalidValueError struct {
	Name    string
	Value   any
	Message string
}

// Error implements the error interface for InvalidValueError.
func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %v for %q: %s", e.Value, e.Name, e.Message)
}

// Is reports whether target is ErrInvalidValue.
func (e *InvalidValueError) Is(target error) bool {
	return target == ErrInvalidValue
}

// NewInvalidValueError creates a new InvalidValueError.
func NewInvalidValueError(name string, value any, message string) *InvalidValueError {
	return &InvalidValueError{Name: name, Value: value, Message: message}
}

// IndexError reports an insertion index outside of [0, Length].
type IndexError struct {
	Index  int
	Length int
}

// Error implements the error interface for IndexError.
func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range [0, %d]", e.Index, e.Length)
}

// Is reports whether target is ErrInvalidArgument or ErrInvalidValue.
func (e *IndexError) Is(target error) bool {
	return target == ErrInvalidArgument || target == ErrInvalidValue
}

// NotFoundError reports a reference to something that does not exist.
type NotFoundError struct {
	// Kind is what was looked up, e.g. "step" or "column".
	Kind string
	Name string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}

// StepError represents an error that occurred in a specific pipeline step.
type StepError struct {
	// StepName is the name of the step where the error occurred
	StepName string
	// StepIndex is the position of the step in the sequence when it ran
	StepIndex int
	// OriginalError is the underlying error that occurred
	OriginalError error
}

// Error implements the error interface for StepError.
func (e *StepError) Error() string {
	if e.StepName != "" {
		return fmt.Sprintf("step %q (index %d): %v", e.StepName, e.StepIndex, e.OriginalError)
	}
	return fmt.Sprintf("step %d: %v", e.StepIndex, e.OriginalError)
}

// Unwrap returns the underlying error for compatibility with errors.Is and errors.As.
func (e *StepError) Unwrap() error {
	return e.OriginalError
}

// NewStepError creates a new StepError with the provided details.
func NewStepError(stepName string, stepIndex int, err error) *StepError {
	return &StepError{
		StepName:      stepName,
		StepIndex:     stepIndex,
		OriginalError: err,
	}
}
