package purgo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synoptiq/go-purgo"
)

func TestTableFromRecordsInfersKinds(t *testing.T) {
	table, err := purgo.TableFromRecords(
		[]string{"name", "age", "fare"},
		[][]string{
			{"alice", "22", "7.25"},
			{"bob", "", "NaN"},
			{"carol", "38", "71.28"},
		},
	)
	require.NoError(t, err)

	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 3, table.Width())
	assert.Equal(t, []string{"name", "age", "fare"}, table.Columns())

	name, ok := table.Column("name")
	require.True(t, ok)
	assert.Equal(t, purgo.TextColumn, name.Kind())
	assert.True(t, math.IsNaN(name.Float(0)))

	age, _ := table.Column("age")
	assert.True(t, age.IsNumeric())
	assert.True(t, math.IsNaN(age.Float(1)))
	assert.Equal(t, "", age.Text(1))
	assert.Equal(t, "22", age.Text(0))

	assert.Equal(t, []string{"bob", "", ""}, table.Row(1))
	assert.Equal(t, "Table(3 rows x 3 cols)", table.String())
}

func TestTableFromRecordsShortRecord(t *testing.T) {
	_, err := purgo.TableFromRecords([]string{"a", "b"}, [][]string{{"1"}})
	assert.ErrorIs(t, err, purgo.ErrInvalidValue)
}

func TestTableColumnValidation(t *testing.T) {
	table := purgo.NewTable()
	require.NoError(t, table.AddNumericColumn("x", []float64{1, 2}))

	assert.ErrorIs(t, table.AddNumericColumn("x", []float64{1, 2}), purgo.ErrInvalidValue)
	assert.ErrorIs(t, table.AddTextColumn("", []string{"a", "b"}), purgo.ErrInvalidValue)
	assert.ErrorIs(t, table.AddTextColumn("y", []string{"a"}), purgo.ErrInvalidValue)
	assert.False(t, table.HasColumn("y"))
}

func TestTableFilterAndClone(t *testing.T) {
	table := rangeTable(t, 5)
	x, _ := table.Column("x")

	even := table.Filter(func(row int) bool { return int(x.Float(row))%2 == 0 })
	assert.Equal(t, 2, even.Len())
	assert.Equal(t, 5, table.Len())

	ids, _ := even.Column("id")
	assert.Equal(t, []string{"r2", "r4"}, ids.Strings())

	clone := table.Clone()
	require.NoError(t, clone.SetFloat("x", 0, -1))
	assert.InDelta(t, 1.0, x.Float(0), 1e-9)

	cx, _ := clone.Column("x")
	assert.InDelta(t, -1.0, cx.Float(0), 1e-9)
}

func TestTableSetFloatErrors(t *testing.T) {
	table := rangeTable(t, 3)

	assert.ErrorIs(t, table.SetFloat("nope", 0, 1), purgo.ErrNotFound)
	assert.ErrorIs(t, table.SetFloat("id", 0, 1), purgo.ErrInvalidType)
	assert.ErrorIs(t, table.SetFloat("x", 3, 1), purgo.ErrInvalidArgument)
}

func TestQuantile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		q      float64
		want   float64
	}{
		{"median even", []float64{4, 1, 3, 2}, 0.5, 2.5},
		{"median odd", []float64{3, 1, 2}, 0.5, 2},
		{"min", []float64{3, 1, 2}, 0, 1},
		{"max", []float64{3, 1, 2}, 1, 3},
		{"nan ignored", []float64{math.NaN(), 1, 2, 3}, 0.5, 2},
		{"single value", []float64{7}, 0.05, 7},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := purgo.Quantile(tc.values, tc.q)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestQuantileErrors(t *testing.T) {
	_, err := purgo.Quantile([]float64{1}, 1.5)
	assert.ErrorIs(t, err, purgo.ErrInvalidValue)

	_, err = purgo.Quantile([]float64{math.NaN()}, 0.5)
	assert.ErrorIs(t, err, purgo.ErrInvalidValue)

	_, err = purgo.Quantile(nil, 0.5)
	assert.ErrorIs(t, err, purgo.ErrInvalidValue)
}

func TestRoundedQuantile(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i + 1)
	}

	lo, err := purgo.RoundedQuantile(values, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, lo, 1e-9) // 5.95

	hi, err := purgo.RoundedQuantile(values, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 95.0, hi, 1e-9) // 95.05

	half, err := purgo.RoundedQuantile([]float64{1, 2, 3, 4}, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, half, 1e-9) // 2.5 rounds to even
}
