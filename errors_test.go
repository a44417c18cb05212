package purgo_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/synoptiq/go-purgo"
)

func TestErrorClasses(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		is      []error
		isNot   []error
		message string
	}{
		{
			name:    "arguments",
			err:     purgo.NewArgumentsError("need %d of them", 2),
			is:      []error{purgo.ErrArguments},
			isNot:   []error{purgo.ErrInvalidValue},
			message: "arguments error: need 2 of them",
		},
		{
			name:    "invalid type",
			err:     purgo.NewInvalidTypeError("cols", "[]string", 3),
			is:      []error{purgo.ErrInvalidType},
			isNot:   []error{purgo.ErrInvalidValue},
			message: `"cols" should be of type []string, received 3 of type int`,
		},
		{
			name:    "invalid value",
			err:     purgo.NewInvalidValueError("first_quartile", 1.5, "must be in (0, 1)"),
			is:      []error{purgo.ErrInvalidValue},
			isNot:   []error{purgo.ErrInvalidArgument},
			message: `invalid value 1.5 for "first_quartile": must be in (0, 1)`,
		},
		{
			name:    "index",
			err:     &purgo.IndexError{Index: 5, Length: 2},
			is:      []error{purgo.ErrInvalidArgument, purgo.ErrInvalidValue},
			isNot:   []error{purgo.ErrNotFound},
			message: "index 5 out of range [0, 2]",
		},
		{
			name:    "not found",
			err:     purgo.NewNotFoundError("step", "write"),
			is:      []error{purgo.ErrNotFound},
			isNot:   []error{purgo.ErrArguments},
			message: `step "write" not found`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.EqualError(t, tc.err, tc.message)
			wrapped := fmt.Errorf("context: %w", tc.err)
			for _, target := range tc.is {
				assert.ErrorIs(t, wrapped, target)
			}
			for _, target := range tc.isNot {
				assert.NotErrorIs(t, wrapped, target)
			}
		})
	}
}

func TestStepErrorUnwraps(t *testing.T) {
	cause := purgo.NewNotFoundError("column", "age")
	err := purgo.NewStepError("handle_outliers", 1, cause)

	assert.EqualError(t, err, `step "handle_outliers" (index 1): column "age" not found`)
	assert.ErrorIs(t, err, purgo.ErrNotFound)

	var notFound *purgo.NotFoundError
	assert.True(t, errors.As(err, &notFound))
	assert.Equal(t, "age", notFound.Name)

	anonymous := purgo.NewStepError("", 3, errors.New("boom"))
	assert.EqualError(t, anonymous, "step 3: boom")
}

func TestWarnOutsideRun(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(previous)

	ctx := context.Background()
	purgo.Warn(ctx, "standalone", "nothing to do")

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "source=standalone")
	assert.Same(t, slog.Default(), purgo.LoggerFromContext(ctx))
	assert.Empty(t, purgo.RunIDFromContext(ctx))
}

func TestWarningString(t *testing.T) {
	w := purgo.Warning{Source: "read", Message: "no test data"}
	assert.Equal(t, "read: no test data", w.String())
}
