package utils

import "math"

// NormalizeL2 scales x in place to unit L2 norm so that inner product equals
// cosine similarity. A zero vector is left unchanged; callers that must
// reject zero vectors check before normalizing.
func NormalizeL2(x []float32) {
	norm := float32(0)
	for _, v := range x {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(float64(norm)))
	for i := range x {
		x[i] *= inv
	}
}
