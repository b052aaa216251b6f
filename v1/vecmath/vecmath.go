// Package vecmath holds the small vector kernels shared by search, RAG,
// reduction, clustering and quality metrics. Dot products accumulate in
// float64 so that results do not depend on summation order precision of float32.
package vecmath

import (
	"errors"
	"math"
)

// ErrLengthMismatch is returned when two vectors of different length are compared.
var ErrLengthMismatch = errors.New("vecmath: vector length mismatch")

// Cosine returns the cosine similarity of a and b in [-1, 1].
// A zero vector has similarity 0 with everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrLengthMismatch
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return clamp(dot/(math.Sqrt(na)*math.Sqrt(nb)), -1, 1), nil
}

// Norm returns the Euclidean norm of v.
func Norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// Normalize returns a unit-length copy of v. A zero vector is returned as a copy.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// ToFloat64 converts a float32 vector.
func ToFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// ToFloat32 converts a float64 vector.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// Euclidean returns the L2 distance between a and b. Lengths must match.
func Euclidean(a, b []float64) float64 {
	return math.Sqrt(SquaredEuclidean(a, b))
}

// SquaredEuclidean returns the squared L2 distance between a and b.
func SquaredEuclidean(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// CosineDistance64 returns 1 - cosine similarity for float64 vectors.
func CosineDistance64(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - clamp(dot/(math.Sqrt(na)*math.Sqrt(nb)), -1, 1)
}

// Centroid returns the arithmetic mean of rows. rows must be non-empty.
func Centroid(rows [][]float64) []float64 {
	c := make([]float64, len(rows[0]))
	for _, r := range rows {
		for j, x := range r {
			c[j] += x
		}
	}
	inv := 1 / float64(len(rows))
	for j := range c {
		c[j] *= inv
	}
	return c
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
