package purgo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	plog "github.com/synoptiq/go-purgo/log"
)

// Warning is a non-fatal condition raised while building or running a
// pipeline. Execution continues with a defined fallback.
type Warning struct {
	// Source names the pipeline or step that raised the warning.
	Source  string
	Message string
	Time    time.Time
}

// String returns "source: message".
func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Source, w.Message)
}

// runContext is what a running pipeline exposes to its steps via the context.
type runContext struct {
	pipeline  string
	runID     string
	logger    *slog.Logger
	collector MetricsCollector
	record    func(ctx context.Context, w Warning)
}

type runContextKey struct{}

func withRun(ctx context.Context, rc *runContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

func runFrom(ctx context.Context) (*runContext, bool) {
	rc, ok := ctx.Value(runContextKey{}).(*runContext)
	return rc, ok && rc != nil
}

// Warn raises a warning from a step. Inside Process the warning is recorded
// on the pipeline, logged and counted; outside of a run it is only logged
// with slog.Default.
func Warn(ctx context.Context, source, message string) {
	w := Warning{Source: source, Message: message, Time: time.Now()}

	if rc, ok := runFrom(ctx); ok {
		rc.record(ctx, w)
		return
	}
	slog.Default().LogAttrs(ctx, slog.LevelWarn, message, plog.Source(source))
}

// LoggerFromContext returns the logger of the running pipeline, already
// carrying the pipeline name and run ID, or slog.Default outside of a run.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if rc, ok := runFrom(ctx); ok && rc.logger != nil {
		return rc.logger
	}
	return slog.Default()
}

// MetricsFromContext returns the collector of the running pipeline, or
// DefaultMetricsCollector outside of a run.
func MetricsFromContext(ctx context.Context) MetricsCollector {
	if rc, ok := runFrom(ctx); ok && rc.collector != nil {
		return rc.collector
	}
	return DefaultMetricsCollector
}

// RunIDFromContext returns the ID of the current run, or "".
func RunIDFromContext(ctx context.Context) string {
	if rc, ok := runFrom(ctx); ok {
		return rc.runID
	}
	return ""
}
