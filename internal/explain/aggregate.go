// Package explain turns per-head attention matrices into per-line salience
// scores for a function-level vulnerability prediction.
package explain

import (
	"fmt"
	"math"
)

// Matrix is one L×L attention slice indexed as m[query][key].
type Matrix [][]float32

// Aggregate sums each slice along the query axis, so every key position
// gets the attention mass it received, adds the results across slices and
// min-max normalizes the total into [0,1]. When every raw value is equal
// the result is all zeros.
func Aggregate(slices []Matrix, seqLen int) ([]float64, error) {
	if len(slices) == 0 {
		return nil, ErrNoAttention
	}
	if seqLen < 0 {
		return nil, &ShapeError{Field: "sequence length", Got: seqLen, Want: 0}
	}

	raw := make([]float64, seqLen)
	for s, m := range slices {
		if len(m) != seqLen {
			return nil, &ShapeError{Field: fmt.Sprintf("slice %d rows", s), Got: len(m), Want: seqLen}
		}
		for q, row := range m {
			if len(row) != seqLen {
				return nil, &ShapeError{Field: fmt.Sprintf("slice %d row %d length", s, q), Got: len(row), Want: seqLen}
			}
			for k, w := range row {
				f := float64(w)
				if math.IsNaN(f) || math.IsInf(f, 0) {
					return nil, fmt.Errorf("slice %d [%d][%d]: %w", s, q, k, ErrNonFinite)
				}
				raw[k] += f
			}
		}
	}

	normalize(raw)
	return raw, nil
}

// normalize rescales v in place to [0,1].
func normalize(v []float64) {
	if len(v) == 0 {
		return
	}
	lo := v[0]
	for _, x := range v[1:] {
		lo = math.Min(lo, x)
	}
	hi := 0.0
	for i := range v {
		v[i] -= lo
		hi = math.Max(hi, v[i])
	}
	if hi == 0 {
		return
	}
	for i := range v {
		v[i] /= hi
	}
}
