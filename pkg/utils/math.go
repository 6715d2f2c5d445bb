package utils

import (
	"fmt"
	"math"
)

// NormalizeL2 scales x in place to unit length and returns the original norm.
// A zero vector is left as is.
func NormalizeL2(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return 0
	}
	norm := math.Sqrt(sum)
	inv := float32(1 / norm)
	for i := range x {
		x[i] *= inv
	}
	return norm
}

// MeanPool averages vecs into a single unit-length vector of width dims.
func MeanPool(vecs [][]float32, dims int) ([]float32, error) {
	if len(vecs) == 0 {
		return nil, fmt.Errorf("mean pool: no vectors")
	}
	out := make([]float32, dims)
	for _, v := range vecs {
		if len(v) != dims {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(v), dims)
		}
		for i, x := range v {
			out[i] += x
		}
	}
	NormalizeL2(out)
	return out, nil
}
