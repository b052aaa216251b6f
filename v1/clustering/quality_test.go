package clustering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateSeparatedClusters(t *testing.T) {
	points := [][]float64{
		{0, 0}, {0, 1}, {1, 0},
		{100, 100}, {100, 101}, {101, 100},
		{50, 50},
	}
	labels := []int{0, 0, 0, 1, 1, 1, -1}

	q := Evaluate(points, labels)
	require.NotNil(t, q.Silhouette)
	require.NotNil(t, q.CalinskiHarabasz)
	require.NotNil(t, q.DaviesBouldin)

	assert.Greater(t, *q.Silhouette, 0.95)
	assert.LessOrEqual(t, *q.Silhouette, 1.0)
	assert.Greater(t, *q.CalinskiHarabasz, 1000.0)
	assert.Less(t, *q.DaviesBouldin, 0.05)
	assert.GreaterOrEqual(t, *q.DaviesBouldin, 0.0)
}

func TestEvaluateIgnoresNoise(t *testing.T) {
	base := [][]float64{{0, 0}, {0, 1}, {10, 10}, {10, 11}}
	labels := []int{0, 0, 1, 1}
	clean := Evaluate(base, labels)

	noisy := Evaluate(append(base, []float64{5, 5}, []float64{-40, 3}), append(labels, -1, -1))
	require.NotNil(t, clean.Silhouette)
	require.NotNil(t, noisy.Silhouette)
	assert.InDelta(t, *clean.Silhouette, *noisy.Silhouette, 1e-12)
	assert.InDelta(t, *clean.CalinskiHarabasz, *noisy.CalinskiHarabasz, 1e-9)
	assert.InDelta(t, *clean.DaviesBouldin, *noisy.DaviesBouldin, 1e-12)
}

func TestEvaluateUndefined(t *testing.T) {
	points := [][]float64{{0, 0}, {1, 1}, {2, 2}}

	tests := map[string][]int{
		"single cluster": {0, 0, 0},
		"all noise":      {-1, -1, -1},
		"one per point":  {0, 1, 2},
	}
	for name, labels := range tests {
		t.Run(name, func(t *testing.T) {
			q := Evaluate(points, labels)
			assert.Nil(t, q.Silhouette)
			assert.Nil(t, q.CalinskiHarabasz)
			assert.Nil(t, q.DaviesBouldin)
		})
	}
}

func TestSilhouetteKnownValue(t *testing.T) {
	// Two clusters on a line: {0, 2} and {10}. Point 0: a=2, b=10, s=0.8.
	// Point 2: a=2, b=8, s=0.75. Point 10 is a singleton and scores 0.
	points := [][]float64{{0}, {2}, {10}}
	got := silhouette(points, []int{0, 0, 1}, 2)
	assert.InDelta(t, (0.8+0.75)/3, got, 1e-12)
}

func TestDominant(t *testing.T) {
	assert.Equal(t, "", dominant(nil))
	assert.Equal(t, "tax", dominant(map[string]int{"tax": 3, "labour": 1}))
	assert.Equal(t, "labour", dominant(map[string]int{"tax": 2, "labour": 2}))
}
