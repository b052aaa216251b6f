package hdbscan

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// line returns count points spaced 1 apart starting at (x, y). Integer
// coordinates keep every distance exact.
func line(x, y float64, count int) [][]float64 {
	out := make([][]float64, count)
	for i := range out {
		out[i] = []float64{x + float64(i), y}
	}
	return out
}

func TestRunTwoGroupsAndOutlier(t *testing.T) {
	var points [][]float64
	points = append(points, line(0, 0, 10)...)
	points = append(points, line(100, 0, 10)...)
	points = append(points, []float64{50, 500})

	res, err := Run(context.Background(), points, Params{MinClusterSize: 4, MinSamples: 3})
	require.NoError(t, err)

	require.Len(t, res.Clusters, 2)
	for i := 0; i < 10; i++ {
		assert.Equal(t, 0, res.Labels[i])
		assert.Equal(t, 1, res.Labels[10+i])
	}
	assert.Equal(t, Noise, res.Labels[20])
	assert.Equal(t, 0.0, res.Probabilities[20])

	assert.Equal(t, Cluster{Label: 0, Size: 10, Stability: res.Clusters[0].Stability}, res.Clusters[0])
	assert.Greater(t, res.Clusters[0].Stability, 0.0)
	// Line ends have core distance 2 against 1 inside the line, so they
	// leave their cluster at half its maximum lambda.
	for i, p := range res.Probabilities[:20] {
		assert.GreaterOrEqual(t, p, 0.0, "point %d", i)
		assert.LessOrEqual(t, p, 1.0, "point %d", i)
		switch i {
		case 0, 9, 10, 19:
			assert.InDelta(t, 0.5, p, 1e-9, "end point %d", i)
		default:
			assert.InDelta(t, 1.0, p, 1e-9, "interior point %d", i)
		}
	}
}

func TestRunSingleClusterRequiresOptIn(t *testing.T) {
	points := line(0, 0, 8)

	res, err := Run(context.Background(), points, Params{MinClusterSize: 3})
	require.NoError(t, err)
	assert.Empty(t, res.Clusters)
	for _, l := range res.Labels {
		assert.Equal(t, Noise, l)
	}

	res, err = Run(context.Background(), points, Params{MinClusterSize: 3, AllowSingleCluster: true})
	require.NoError(t, err)
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, 8, res.Clusters[0].Size)
	for _, l := range res.Labels {
		assert.Equal(t, 0, l)
	}
}

func TestRunTooFewPointsIsAllNoise(t *testing.T) {
	res, err := Run(context.Background(), line(0, 0, 3), Params{MinClusterSize: 5})
	require.NoError(t, err)
	assert.Equal(t, []int{Noise, Noise, Noise}, res.Labels)

	res, err = Run(context.Background(), nil, Params{})
	require.NoError(t, err)
	assert.Empty(t, res.Labels)
}

func TestRunAccountsForEveryPoint(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	var points [][]float64
	for c := 0; c < 3; c++ {
		for i := 0; i < 15; i++ {
			points = append(points, []float64{float64(c*20) + rng.NormFloat64(), rng.NormFloat64()})
		}
	}
	for i := 0; i < 5; i++ {
		points = append(points, []float64{rng.Float64()*200 - 100, 80 + rng.Float64()*40})
	}
	require.Len(t, points, 50)

	res, err := Run(context.Background(), points, Params{MinClusterSize: 5})
	require.NoError(t, err)

	sizes := map[int]int{}
	for _, c := range res.Clusters {
		sizes[c.Label] = c.Size
	}
	total, noise := 0, 0
	for i, l := range res.Labels {
		if l == Noise {
			noise++
			assert.Equal(t, 0.0, res.Probabilities[i])
			continue
		}
		_, ok := sizes[l]
		assert.True(t, ok, "label %d missing from clusters", l)
		assert.GreaterOrEqual(t, res.Probabilities[i], 0.0)
		assert.LessOrEqual(t, res.Probabilities[i], 1.0)
	}
	for _, s := range sizes {
		total += s
	}
	assert.Equal(t, 50, total+noise)
	assert.GreaterOrEqual(t, len(res.Clusters), 2)
}

func TestRunDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	points := make([][]float64, 40)
	for i := range points {
		points[i] = []float64{rng.NormFloat64() + float64(i%2)*8, rng.NormFloat64()}
	}
	a, err := Run(context.Background(), points, Params{MinClusterSize: 5})
	require.NoError(t, err)
	b, err := Run(context.Background(), points, Params{MinClusterSize: 5})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRunRejectsRaggedInput(t *testing.T) {
	_, err := Run(context.Background(), [][]float64{{1, 2}, {1}}, Params{})
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, line(0, 0, 10), Params{MinClusterSize: 3})
	assert.ErrorIs(t, err, context.Canceled)
}
