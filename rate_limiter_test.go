package purgo_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/synoptiq/go-purgo"
)

func countingStep(name string, runs *atomic.Int32) purgo.Step {
	return purgo.NewStep(name, func(context.Context, *purgo.Params) error {
		runs.Add(1)
		return nil
	})
}

func TestRateLimitedStepRuns(t *testing.T) {
	var runs atomic.Int32
	step := purgo.NewRateLimitedStep(countingStep("write", &runs), rate.Inf, 1)

	assert.Equal(t, "write", step.Name())
	assert.Equal(t, "write", step.Unwrap().Name())

	for range 5 {
		require.NoError(t, step.Run(context.Background(), purgo.NewParams(nil)))
	}
	assert.Equal(t, int32(5), runs.Load())
}

func TestRateLimitedStepTimeout(t *testing.T) {
	var runs atomic.Int32
	step := purgo.NewRateLimitedStep(countingStep("write", &runs), rate.Every(time.Hour), 1,
		purgo.WithLimiterTimeout(20*time.Millisecond))

	require.NoError(t, step.Run(context.Background(), purgo.NewParams(nil)))

	err := step.Run(context.Background(), purgo.NewParams(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `rate limit wait for step "write"`)
	assert.Equal(t, int32(1), runs.Load())
}

func TestRateLimitedStepCancelledContext(t *testing.T) {
	var runs atomic.Int32
	step := purgo.NewRateLimitedStep(countingStep("write", &runs), rate.Every(time.Hour), 1,
		purgo.WithLimiterTimeout(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, step.Run(ctx, purgo.NewParams(nil)))
	assert.Equal(t, int32(0), runs.Load())
}

func TestRateLimitedStepAllowAndBurst(t *testing.T) {
	var runs atomic.Int32
	step := purgo.NewRateLimitedStep(countingStep("write", &runs), rate.Every(time.Hour), 2)

	assert.True(t, step.Allow())
	assert.True(t, step.Allow())
	assert.False(t, step.Allow())

	step.SetLimit(rate.Inf)
	assert.True(t, step.Allow())
}

func TestRateLimitedStepSetBurst(t *testing.T) {
	var runs atomic.Int32
	step := purgo.NewRateLimitedStep(countingStep("write", &runs), rate.Every(time.Hour), 1)

	assert.True(t, step.Allow())
	assert.False(t, step.Allow())

	// Raising the burst does not refill tokens already spent.
	step.SetBurst(3)
	assert.Zero(t, countAllowed(step, 5))
}

func countAllowed(step *purgo.RateLimitedStep, n int) int {
	allowed := 0
	for range n {
		if step.Allow() {
			allowed++
		}
	}
	return allowed
}

func TestRateLimitedStepInPipeline(t *testing.T) {
	tr := &trace{}
	lc := &lifecycleStep{name: "res", tr: tr}

	p, err := purgo.New("unused.csv",
		purgo.WithParams(testParams),
		noopReader(tr),
		purgo.WithSteps(purgo.NewRateLimitedStep(lc, rate.Inf, 1)),
	)
	require.NoError(t, err)
	require.NoError(t, p.Process(context.Background()))

	assert.Equal(t, []string{"setup:res", "read", "run:res", "close:res"}, tr.list())
}
