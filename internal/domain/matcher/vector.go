package matcher

import (
	"fmt"
	"math"

	apperrors "github.com/yanqian/support-copilot/pkg/errors"
)

// Vector is a fixed-length embedding produced by one model.
type Vector []float32

// Dims returns the vector dimensionality.
func (v Vector) Dims() int {
	return len(v)
}

// Cosine returns dot(a,b) / (|a| * |b|).
// A zero-norm operand yields 0. Vectors of different length are rejected.
func Cosine(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, apperrors.Wrap(CodeDimensionMismatch, fmt.Sprintf("vectors must have the same length, got %d and %d", len(a), len(b)), nil)
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push |sim| slightly past 1
	return math.Max(-1, math.Min(1, sim)), nil
}
