// Package vector provides the similarity functions used to rank index items.
package vector

import (
	"fmt"
	"math"
)

// Norm returns the Euclidean (L2) norm of v. The norm of an empty vector is 0.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// DotProduct returns the sum of the pairwise products of a and b.
// Callers must pass vectors of equal length; a mismatch is a programming error and panics.
func DotProduct(a, b []float64) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vector: dot product of mismatched lengths %d and %d", len(a), len(b)))
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

// CosineSimilarity returns the cosine of the angle between a and b.
// A zero vector yields a non-finite result.
func CosineSimilarity(a, b []float64) float64 {
	return DotProduct(a, b) / (Norm(a) * Norm(b))
}

// NormalizedCosineSimilarity is CosineSimilarity with precomputed norms.
// The index stores each item's norm at write time so queries only compute the query norm once.
func NormalizedCosineSimilarity(a []float64, normA float64, b []float64, normB float64) float64 {
	return DotProduct(a, b) / (normA * normB)
}

// IsZero reports whether every component of v is zero (or v is empty).
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
