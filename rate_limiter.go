package purgo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedStep is a step decorator that limits how often a step runs.
// It is meant for steps that talk to throttled remote systems, such as
// readers and writers backed by cloud buckets.
type RateLimitedStep struct {
	step    Step
	limiter *rate.Limiter
	timeout time.Duration
	mu      sync.RWMutex
}

var _ Step = (*RateLimitedStep)(nil)

// RateLimiterOption is a function that configures a RateLimitedStep.
type RateLimiterOption func(*RateLimitedStep)

// WithLimiterTimeout sets a timeout for waiting for the limiter.
// Zero waits for as long as the run context allows.
func WithLimiterTimeout(timeout time.Duration) RateLimiterOption {
	return func(rl *RateLimitedStep) {
		rl.timeout = timeout
	}
}

// NewRateLimitedStep creates a new rate limiter around step.
// r is the rate limit (e.g., 10 means 10 runs per second)
// b is the maximum burst size (maximum number of tokens that can be consumed in a single burst)
func NewRateLimitedStep(
	step Step,
	r rate.Limit,
	b int,
	options ...RateLimiterOption,
) *RateLimitedStep {
	rl := &RateLimitedStep{
		step:    step,
		limiter: rate.NewLimiter(r, b),
		timeout: time.Second, // Default timeout
	}

	for _, option := range options {
		option(rl)
	}

	return rl
}

// Name returns the name of the wrapped step.
func (rl *RateLimitedStep) Name() string {
	return rl.step.Name()
}

// Unwrap returns the wrapped step.
func (rl *RateLimitedStep) Unwrap() Step {
	return rl.step
}

// Run waits for a token, then runs the wrapped step.
func (rl *RateLimitedStep) Run(ctx context.Context, params *Params) error {
	rl.mu.RLock()
	timeout := rl.timeout
	rl.mu.RUnlock()

	limiterCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		limiterCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := rl.limiter.Wait(limiterCtx); err != nil {
		return fmt.Errorf("rate limit wait for step %q: %w", rl.step.Name(), err)
	}

	return rl.step.Run(ctx, params)
}

// SetLimit updates the rate limit.
func (rl *RateLimitedStep) SetLimit(r rate.Limit) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(r)
}

// SetBurst updates the burst limit.
func (rl *RateLimitedStep) SetBurst(b int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetBurst(b)
}

// Allow checks if the step could run now without blocking. It consumes a
// token when it returns true.
func (rl *RateLimitedStep) Allow() bool {
	return rl.limiter.Allow()
}
