package purgo_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/synoptiq/go-purgo"
)

// writeFile writes content to name inside a fresh temporary directory.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// rangeCSV returns a csv with columns id, x and y where x runs from 1 to n.
func rangeCSV(n int) string {
	var b strings.Builder
	b.WriteString("id,x,y\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "r%d,%d,%d\n", i, i, i%2)
	}
	return b.String()
}

// rangeTable returns a table with a text id column and a numeric x column
// running from 1 to n.
func rangeTable(t *testing.T, n int) *purgo.Table {
	t.Helper()
	ids := make([]string, n)
	xs := make([]float64, n)
	for i := range n {
		ids[i] = fmt.Sprintf("r%d", i+1)
		xs[i] = float64(i + 1)
	}
	table := purgo.NewTable()
	require.NoError(t, table.AddTextColumn("id", ids))
	require.NoError(t, table.AddNumericColumn("x", xs))
	return table
}

// trace records the order in which steps ran.
type trace struct {
	mu    sync.Mutex
	names []string
}

func (tr *trace) add(name string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.names = append(tr.names, name)
}

func (tr *trace) list() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.names...)
}

// recordStep returns a step that appends its name to tr.
func recordStep(name string, tr *trace) purgo.Step {
	return purgo.NewStep(name, func(_ context.Context, _ *purgo.Params) error {
		tr.add(name)
		return nil
	})
}

// noopReader replaces the built-in reader so tests need no data file.
func noopReader(tr *trace) purgo.Option {
	return purgo.WithReader(recordStep(purgo.ReaderStepName, tr))
}

// lifecycleStep implements Initializer and Closer and records every call.
type lifecycleStep struct {
	name     string
	tr       *trace
	setupErr error
	runErr   error
	closeErr error
}

func (s *lifecycleStep) Name() string { return s.name }

func (s *lifecycleStep) Setup(_ context.Context) error {
	s.tr.add("setup:" + s.name)
	return s.setupErr
}

func (s *lifecycleStep) Run(_ context.Context, _ *purgo.Params) error {
	s.tr.add("run:" + s.name)
	return s.runErr
}

func (s *lifecycleStep) Close(_ context.Context) error {
	s.tr.add("close:" + s.name)
	return s.closeErr
}
