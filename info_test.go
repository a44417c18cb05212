package purgo_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synoptiq/go-purgo"
)

func TestInfoDOT(t *testing.T) {
	p, err := purgo.New("unused.csv",
		purgo.WithName("titanic"),
		purgo.WithParams(testParams),
		purgo.WithSteps(named("handle_outliers"), named("write")),
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Info().DOT(&buf))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "strict digraph {"), out)
	assert.Contains(t, out, `label="titanic"`)
	assert.Contains(t, out, `rankdir="LR"`)
	for _, name := range []string{"read", "handle_outliers", "write"} {
		assert.Contains(t, out, `label="`+name+`"`)
	}
	assert.Contains(t, out, `"0:read" -> "1:handle_outliers"`)
	assert.Contains(t, out, `"1:handle_outliers" -> "2:write"`)
	assert.Contains(t, strings.ToLower(out), "4682b4")
	assert.NotContains(t, strings.ToLower(out), "dc143c")
}

func TestInfoDOTMarksFailedStep(t *testing.T) {
	p, err := purgo.New("unused.csv",
		purgo.WithParams(testParams),
		noopReader(&trace{}),
		purgo.WithSteps(purgo.NewStep("fails", func(context.Context, *purgo.Params) error {
			return errors.New("boom")
		})),
	)
	require.NoError(t, err)
	require.Error(t, p.Process(context.Background()))

	var buf bytes.Buffer
	require.NoError(t, p.Info().DOT(&buf))
	assert.Contains(t, strings.ToLower(buf.String()), "dc143c")
}

func TestInfoStringIncludesRun(t *testing.T) {
	p, err := purgo.New("unused.csv",
		purgo.WithParams(testParams),
		noopReader(&trace{}),
	)
	require.NoError(t, err)
	require.NoError(t, p.Process(context.Background()))

	info := p.Info()
	assert.Equal(t, purgo.StateCompleted, info.State)
	assert.Contains(t, info.String(), "run="+p.RunID())
	assert.Contains(t, info.String(), "[completed]")
}

func TestInfoFailedStepResetsOnMutation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*purgo.Pipeline) error
	}{
		{"add before failed step", func(p *purgo.Pipeline) error { return p.Add(named("fix"), nil, purgo.Before("fails")) }},
		{"remove failed step", func(p *purgo.Pipeline) error { return p.Remove("fails") }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := purgo.New("unused.csv",
				purgo.WithParams(testParams),
				noopReader(&trace{}),
				purgo.WithSteps(purgo.NewStep("fails", func(context.Context, *purgo.Params) error {
					return errors.New("boom")
				}), named("write")),
			)
			require.NoError(t, err)
			require.Error(t, p.Process(context.Background()))
			require.Equal(t, 1, p.Info().FailedStep)

			require.NoError(t, tc.mutate(p))
			assert.Equal(t, -1, p.Info().FailedStep)

			var buf bytes.Buffer
			require.NoError(t, p.Info().DOT(&buf))
			assert.NotContains(t, strings.ToLower(buf.String()), "dc143c")
		})
	}
}
