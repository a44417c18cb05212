package purgo

import (
	"context"
	"fmt"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"
)

// OutlierStepName is the name of the outlier handling step.
const OutlierStepName = "handle_outliers"

// OutlierSentinel replaces out-of-range cells in replace mode.
const OutlierSentinel = -999

// KeyOutlierBounds is where the outlier step stores the bounds it computed,
// as a map[string]Bounds keyed by column.
const KeyOutlierBounds = "outlier_bounds"

// Default quantiles for the outlier bounds.
const (
	DefaultFirstQuantile = 0.05
	DefaultThirdQuantile = 0.95
)

// Bounds is the inclusive range of values kept for one column.
type Bounds struct {
	Lower float64
	Upper float64
}

// Contains reports whether v is within the bounds. NaN is never contained.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// OutlierHandler trims or flags outliers of the numeric columns of the
// training table and, when present, the test table. Bounds come from the
// training table only: the KeyFirstQuantile and KeyThirdQuantile quantiles,
// interpolated linearly and rounded half to even.
//
// In remove mode (KeyRemoveOutliers, the default) both tables keep only the
// rows whose value lies within the bounds for every working column; rows
// with a missing value in a working column are removed too. In replace mode
// (KeyReplace) each cell outside the bounds of its column is set to
// OutlierSentinel and the row count is unchanged.
//
// The working columns are KeyColumns, or every numeric training column when
// it is unset, minus KeyCategoricalColumns and KeyTarget.
type OutlierHandler struct {
	name string
}

var _ Step = (*OutlierHandler)(nil)

// OutlierOption configures an OutlierHandler.
type OutlierOption func(*OutlierHandler)

// WithOutlierStepName overrides the step name.
func WithOutlierStepName(name string) OutlierOption {
	return func(h *OutlierHandler) {
		if name != "" {
			h.name = name
		}
	}
}

// NewOutlierHandler creates the outlier handling step.
func NewOutlierHandler(options ...OutlierOption) *OutlierHandler {
	h := &OutlierHandler{name: OutlierStepName}
	for _, option := range options {
		option(h)
	}
	return h
}

// Name implements the Step interface.
func (h *OutlierHandler) Name() string {
	return h.name
}

type outlierSettings struct {
	train   *Table
	test    *Table
	cols    []string
	remove  bool
	replace bool
	lower   float64
	upper   float64
}

// Run implements the Step interface.
func (h *OutlierHandler) Run(ctx context.Context, params *Params) error {
	s, err := h.settings(ctx, params)
	if err != nil {
		return err
	}
	if !s.remove && !s.replace {
		return nil
	}
	if len(s.cols) == 0 {
		Warn(ctx, h.name, "no numeric columns left to handle outliers on")
		return nil
	}

	bounds, err := h.bounds(ctx, s)
	if err != nil {
		return err
	}
	params.Set(KeyOutlierBounds, bounds)

	collector := MetricsFromContext(ctx)

	if s.remove {
		train, removed, err := removeOutliers(s.train, bounds, "train")
		if err != nil {
			return err
		}
		params.Set(KeyTrainTable, train)
		collector.RowsRemoved(ctx, h.name, KeyTrainTable, removed)

		if s.test != nil {
			test, removed, err := removeOutliers(s.test, bounds, "test")
			if err != nil {
				return err
			}
			params.Set(KeyTestTable, test)
			collector.RowsRemoved(ctx, h.name, KeyTestTable, removed)
		}
		return nil
	}

	train, replaced, err := replaceOutliers(s.train, bounds, "train")
	if err != nil {
		return err
	}
	params.Set(KeyTrainTable, train)
	collector.CellsReplaced(ctx, h.name, KeyTrainTable, replaced)

	if s.test != nil {
		test, replaced, err := replaceOutliers(s.test, bounds, "test")
		if err != nil {
			return err
		}
		params.Set(KeyTestTable, test)
		collector.CellsReplaced(ctx, h.name, KeyTestTable, replaced)
	}
	return nil
}

// settings validates the parameters in a fixed order and resolves the
// working columns.
func (h *OutlierHandler) settings(ctx context.Context, params *Params) (*outlierSettings, error) {
	s := &outlierSettings{
		remove: true,
		lower:  DefaultFirstQuantile,
		upper:  DefaultThirdQuantile,
	}

	train, found, err := params.Table(KeyTrainTable)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, NewArgumentsError("%q is required to handle outliers", KeyTrainTable)
	}
	s.train = train

	if test, found, err := params.Table(KeyTestTable); err != nil {
		return nil, err
	} else if found {
		s.test = test
	}

	if v, found, err := params.Bool(KeyRemoveOutliers); err != nil {
		return nil, err
	} else if found {
		s.remove = v
	}
	if v, found, err := params.Bool(KeyReplace); err != nil {
		return nil, err
	} else if found {
		s.replace = v
	}
	if s.remove && s.replace {
		return nil, NewArgumentsError("%q and %q cannot both be true", KeyRemoveOutliers, KeyReplace)
	}
	if !s.remove && !s.replace {
		Warn(ctx, h.name, fmt.Sprintf("%q and %q are both false, no operation will be performed", KeyRemoveOutliers, KeyReplace))
	}

	if v, found, err := params.Float(KeyFirstQuantile); err != nil {
		return nil, err
	} else if found {
		s.lower = v
	}
	if v, found, err := params.Float(KeyThirdQuantile); err != nil {
		return nil, err
	} else if found {
		s.upper = v
	}
	if s.lower <= 0 || s.lower >= 1 || math.IsNaN(s.lower) {
		return nil, NewInvalidValueError(KeyFirstQuantile, s.lower, "must be within (0, 1)")
	}
	if s.upper <= 0 || s.upper >= 1 || math.IsNaN(s.upper) {
		return nil, NewInvalidValueError(KeyThirdQuantile, s.upper, "must be within (0, 1)")
	}
	if s.lower > s.upper {
		return nil, NewInvalidValueError(KeyFirstQuantile, s.lower,
			fmt.Sprintf("must not be greater than %s %v", KeyThirdQuantile, s.upper))
	}

	cols, err := workingColumns(params, train)
	if err != nil {
		return nil, err
	}
	s.cols = cols
	return s, nil
}

func workingColumns(params *Params, train *Table) ([]string, error) {
	catCols, _, err := params.Strings(KeyCategoricalColumns)
	if err != nil {
		return nil, err
	}
	target, _, err := params.String(KeyTarget)
	if err != nil {
		return nil, err
	}
	excluded := func(name string) bool {
		return (target != "" && name == target) || slices.Contains(catCols, name)
	}

	explicit, found, err := params.Strings(KeyColumns)
	if err != nil {
		return nil, err
	}

	var cols []string
	if found {
		for _, name := range explicit {
			if excluded(name) {
				continue
			}
			c, ok := train.Column(name)
			if !ok {
				return nil, NewNotFoundError("column", name)
			}
			if !c.IsNumeric() {
				return nil, NewInvalidTypeError(name, "numeric column", c.Kind().String())
			}
			cols = append(cols, name)
		}
		return cols, nil
	}

	for _, name := range train.Columns() {
		c, _ := train.Column(name)
		if excluded(name) || !c.IsNumeric() {
			continue
		}
		cols = append(cols, name)
	}
	return cols, nil
}

// bounds computes the bounds of every working column concurrently.
// Columns without a single value are dropped with a warning.
func (h *OutlierHandler) bounds(ctx context.Context, s *outlierSettings) (map[string]Bounds, error) {
	results := make([]Bounds, len(s.cols))
	empty := make([]bool, len(s.cols))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range s.cols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, _ := s.train.Column(name)
			values := c.Floats()
			if !slices.ContainsFunc(values, func(v float64) bool { return !math.IsNaN(v) }) {
				empty[i] = true
				return nil
			}
			lo, err := RoundedQuantile(values, s.lower)
			if err != nil {
				return fmt.Errorf("column %q: %w", name, err)
			}
			hi, err := RoundedQuantile(values, s.upper)
			if err != nil {
				return fmt.Errorf("column %q: %w", name, err)
			}
			results[i] = Bounds{Lower: lo, Upper: hi}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]Bounds, len(s.cols))
	for i, name := range s.cols {
		if empty[i] {
			Warn(ctx, h.name, fmt.Sprintf("column %q has no values, it is left untouched", name))
			continue
		}
		out[name] = results[i]
	}
	return out, nil
}

type boundColumn struct {
	col    *Column
	bounds Bounds
}

func bindColumns(t *Table, bounds map[string]Bounds, which string) ([]boundColumn, error) {
	names := make([]string, 0, len(bounds))
	for name := range bounds {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]boundColumn, 0, len(names))
	for _, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, NewNotFoundError(which+" column", name)
		}
		if !c.IsNumeric() {
			return nil, NewInvalidTypeError(name, "numeric column", c.Kind().String())
		}
		out = append(out, boundColumn{col: c, bounds: bounds[name]})
	}
	return out, nil
}

func removeOutliers(t *Table, bounds map[string]Bounds, which string) (*Table, int, error) {
	cols, err := bindColumns(t, bounds, which)
	if err != nil {
		return nil, 0, err
	}
	kept := t.Filter(func(row int) bool {
		for _, bc := range cols {
			if !bc.bounds.Contains(bc.col.Float(row)) {
				return false
			}
		}
		return true
	})
	return kept, t.Len() - kept.Len(), nil
}

func replaceOutliers(t *Table, bounds map[string]Bounds, which string) (*Table, int, error) {
	out := t.Clone()
	cols, err := bindColumns(out, bounds, which)
	if err != nil {
		return nil, 0, err
	}

	replaced := 0
	for _, bc := range cols {
		name := bc.col.Name()
		for row := 0; row < out.Len(); row++ {
			v := bc.col.Float(row)
			if v < bc.bounds.Lower || v > bc.bounds.Upper {
				if err := out.SetFloat(name, row, OutlierSentinel); err != nil {
					return nil, 0, err
				}
				replaced++
			}
		}
	}
	return out, replaced, nil
}
