package purgo

import (
	"math"
	"sort"
)

// Quantile returns the q-th quantile of values using linear interpolation
// between the closest ranks. NaN values are ignored.
func Quantile(values []float64, q float64) (float64, error) {
	if q < 0 || q > 1 || math.IsNaN(q) {
		return 0, NewInvalidValueError("quantile", q, "must be within [0, 1]")
	}

	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return 0, NewInvalidValueError("values", len(values), "no numeric values to compute a quantile from")
	}
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo], nil
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac, nil
}

// RoundedQuantile returns Quantile rounded to the nearest integer, ties to even.
func RoundedQuantile(values []float64, q float64) (float64, error) {
	v, err := Quantile(values, q)
	if err != nil {
		return 0, err
	}
	return math.RoundToEven(v), nil
}
