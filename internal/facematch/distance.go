package facematch

import "math"

// EuclideanDistance computes the L2 distance between two embeddings.
// Vectors of different (or zero) length are infinitely far apart.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// MeanEmbedding returns the coordinate-wise arithmetic mean of the vectors.
// All vectors must have the same length.
func MeanEmbedding(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	dim := len(vectors[0])
	sums := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, ErrDimensionMismatch
		}
		for i, x := range v {
			sums[i] += float64(x)
		}
	}

	mean := make([]float32, dim)
	n := float64(len(vectors))
	for i, s := range sums {
		mean[i] = float32(s / n)
	}
	return mean, nil
}

// confidencePercent converts a distance into a display percentage rounded to 2 decimals.
func confidencePercent(distance float64) float64 {
	return math.Round((1-distance)*100*100) / 100
}
