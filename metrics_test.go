package purgo_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synoptiq/go-purgo"
)

// mockMetricsCollector counts every call by method and step.
type mockMetricsCollector struct {
	mu    sync.Mutex
	calls map[string]int
	rows  map[string]int
	cells map[string]int
}

func newMockMetricsCollector() *mockMetricsCollector {
	return &mockMetricsCollector{
		calls: make(map[string]int),
		rows:  make(map[string]int),
		cells: make(map[string]int),
	}
}

func (m *mockMetricsCollector) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[key]++
}

func (m *mockMetricsCollector) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

func (m *mockMetricsCollector) PipelineStarted(_ context.Context, _ string) {
	m.inc("pipeline_started")
}

func (m *mockMetricsCollector) PipelineCompleted(_ context.Context, _ string, _ time.Duration, err error) {
	if err != nil {
		m.inc("pipeline_failed")
		return
	}
	m.inc("pipeline_completed")
}

func (m *mockMetricsCollector) StepStarted(_ context.Context, name string) {
	m.inc("step_started:" + name)
}

func (m *mockMetricsCollector) StepCompleted(_ context.Context, name string, _ time.Duration) {
	m.inc("step_completed:" + name)
}

func (m *mockMetricsCollector) StepError(_ context.Context, name string, _ error) {
	m.inc("step_error:" + name)
}

func (m *mockMetricsCollector) WarningRaised(_ context.Context, source string) {
	m.inc("warning:" + source)
}

func (m *mockMetricsCollector) RowsRemoved(_ context.Context, _, table string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[table] += count
}

func (m *mockMetricsCollector) CellsReplaced(_ context.Context, _, table string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[table] += count
}

func TestMetricatedStep(t *testing.T) {
	collector := newMockMetricsCollector()
	step := purgo.NewMetricatedStep(named("clean"), collector)

	assert.Equal(t, "clean", step.Name())
	require.NoError(t, step.Run(context.Background(), purgo.NewParams(nil)))

	assert.Equal(t, 1, collector.count("step_started:clean"))
	assert.Equal(t, 1, collector.count("step_completed:clean"))
	assert.Equal(t, 0, collector.count("step_error:clean"))
}

func TestMetricatedStepError(t *testing.T) {
	collector := newMockMetricsCollector()
	boom := errors.New("boom")
	step := purgo.NewMetricatedStep(
		purgo.NewStep("clean", func(context.Context, *purgo.Params) error { return boom }),
		collector,
	)

	assert.ErrorIs(t, step.Run(context.Background(), purgo.NewParams(nil)), boom)
	assert.Equal(t, 1, collector.count("step_started:clean"))
	assert.Equal(t, 0, collector.count("step_completed:clean"))
	assert.Equal(t, 1, collector.count("step_error:clean"))
}

func TestMetricatedStepNilCollector(t *testing.T) {
	step := purgo.NewMetricatedStep(named("clean"), nil)
	assert.NoError(t, step.Run(context.Background(), purgo.NewParams(nil)))
	assert.Equal(t, "clean", step.Unwrap().Name())
}

func TestPipelineReportsMetrics(t *testing.T) {
	collector := newMockMetricsCollector()
	test := purgo.NewTable()
	require.NoError(t, test.AddNumericColumn("x", []float64{0, 50, 200}))

	p, err := purgo.New("unused.csv",
		purgo.WithParams(map[string]any{purgo.KeyTestTable: test}),
		purgo.WithMetricsCollector(collector),
		purgo.WithReader(purgo.NewStep("read", func(_ context.Context, params *purgo.Params) error {
			params.Set(purgo.KeyTrainTable, rangeTable(t, 100))
			return nil
		})),
		purgo.WithSteps(purgo.NewOutlierHandler(), purgo.NewStep("warns", func(ctx context.Context, _ *purgo.Params) error {
			purgo.Warn(ctx, "warns", "odd")
			return nil
		})),
	)
	require.NoError(t, err)
	require.NoError(t, p.Process(context.Background()))

	assert.Equal(t, 1, collector.count("pipeline_started"))
	assert.Equal(t, 1, collector.count("pipeline_completed"))
	for _, name := range []string{"read", purgo.OutlierStepName, "warns"} {
		assert.Equal(t, 1, collector.count("step_started:"+name), name)
		assert.Equal(t, 1, collector.count("step_completed:"+name), name)
	}
	assert.Equal(t, 1, collector.count("warning:warns"))
	assert.Equal(t, map[string]int{purgo.KeyTrainTable: 10, purgo.KeyTestTable: 2}, collector.rows)
	assert.Same(t, collector, p.MetricsCollector())
}

func TestPipelineReportsFailure(t *testing.T) {
	collector := newMockMetricsCollector()
	p, err := purgo.New("unused.csv",
		purgo.WithParams(testParams),
		purgo.WithMetricsCollector(collector),
		noopReader(&trace{}),
		purgo.WithSteps(purgo.NewStep("fails", func(context.Context, *purgo.Params) error {
			return errors.New("boom")
		})),
	)
	require.NoError(t, err)
	require.Error(t, p.Process(context.Background()))

	assert.Equal(t, 1, collector.count("pipeline_failed"))
	assert.Equal(t, 1, collector.count("step_error:fails"))
}

func TestPrometheusMetricsCollector(t *testing.T) {
	collector := purgo.NewPrometheusMetricsCollector()
	path := writeFile(t, "data.csv", rangeCSV(100))

	p, err := purgo.New(path,
		purgo.WithParams(map[string]any{purgo.KeyRemoveOutliers: false, purgo.KeyReplace: true, purgo.KeyTarget: "y"}),
		purgo.WithMetricsCollector(collector),
		purgo.WithSteps(purgo.NewOutlierHandler()),
	)
	require.NoError(t, err)
	require.NoError(t, p.Process(context.Background()))

	reg := collector.Registry()
	expected := `
# HELP purgo_cells_replaced_total Total number of table cells replaced with a sentinel value
# TYPE purgo_cells_replaced_total counter
purgo_cells_replaced_total{step="handle_outliers",table="train_df"} 10
# HELP purgo_pipeline_runs_total Total number of pipeline runs by outcome
# TYPE purgo_pipeline_runs_total counter
purgo_pipeline_runs_total{pipeline="purgo",status="completed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"purgo_cells_replaced_total", "purgo_pipeline_runs_total"))

	count, err := testutil.GatherAndCount(reg, "purgo_step_started_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "purgo_step_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPrometheusCollectorsAreIndependent(t *testing.T) {
	a := purgo.NewPrometheusMetricsCollector()
	b := purgo.NewPrometheusMetricsCollector()

	a.WarningRaised(context.Background(), "read")
	a.WarningRaised(context.Background(), "read")

	countA, err := testutil.GatherAndCount(a.Registry(), "purgo_warnings_total")
	require.NoError(t, err)
	assert.Equal(t, 1, countA)

	countB, err := testutil.GatherAndCount(b.Registry(), "purgo_warnings_total")
	require.NoError(t, err)
	assert.Equal(t, 0, countB)
}

func TestLoggingMetricsCollector(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	collector := purgo.NewLoggingMetricsCollector(logger)
	ctx := context.Background()

	collector.PipelineStarted(ctx, "titanic")
	collector.RowsRemoved(ctx, "handle_outliers", "train_df", 10)
	collector.StepError(ctx, "read", errors.New("no file"))
	collector.PipelineCompleted(ctx, "titanic", time.Second, nil)

	out := buf.String()
	assert.Contains(t, out, `"msg":"metrics: pipeline started","pipeline":"titanic"`)
	assert.Contains(t, out, `"step":"handle_outliers","table":"train_df","count":10`)
	assert.Contains(t, out, `"error":"no file"`)
	assert.Equal(t, 4, strings.Count(out, "\n"))
}

func TestMetricsFromContextOutsideRun(t *testing.T) {
	assert.Same(t, purgo.DefaultMetricsCollector, purgo.MetricsFromContext(context.Background()))
}
