package clustering

import (
	"math"

	"github.com/Aleph-Alpha/lexgraph/v1/hdbscan"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
	"github.com/Aleph-Alpha/lexgraph/v1/vecmath"
)

// Evaluate computes the quality metrics of labels over points, ignoring noise.
// Metrics are nil when fewer than two clusters remain or when every point is
// its own cluster.
func Evaluate(points [][]float64, labels []int) runstore.Quality {
	var (
		kept   [][]float64
		groups []int
		index  = map[int]int{}
	)
	for i, l := range labels {
		if l == hdbscan.Noise {
			continue
		}
		g, ok := index[l]
		if !ok {
			g = len(index)
			index[l] = g
		}
		kept = append(kept, points[i])
		groups = append(groups, g)
	}
	k, n := len(index), len(kept)
	if k < 2 || k >= n {
		return runstore.Quality{}
	}

	members := make([][][]float64, k)
	for i, g := range groups {
		members[g] = append(members[g], kept[i])
	}
	centroids := make([][]float64, k)
	for g := range members {
		centroids[g] = vecmath.Centroid(members[g])
	}

	s := silhouette(kept, groups, k)
	ch := calinskiHarabasz(kept, groups, members, centroids)
	db := daviesBouldin(members, centroids)
	return runstore.Quality{Silhouette: &s, CalinskiHarabasz: &ch, DaviesBouldin: &db}
}

// silhouette is the mean silhouette coefficient. Points in singleton groups
// score zero.
func silhouette(points [][]float64, groups []int, k int) float64 {
	n := len(points)
	sizes := make([]int, k)
	for _, g := range groups {
		sizes[g]++
	}

	var total float64
	sums := make([]float64, k)
	for i := 0; i < n; i++ {
		for g := range sums {
			sums[g] = 0
		}
		for j := 0; j < n; j++ {
			if i != j {
				sums[groups[j]] += vecmath.Euclidean(points[i], points[j])
			}
		}
		own := groups[i]
		if sizes[own] < 2 {
			continue
		}
		a := sums[own] / float64(sizes[own]-1)
		b := math.Inf(1)
		for g := 0; g < k; g++ {
			if g == own {
				continue
			}
			if m := sums[g] / float64(sizes[g]); m < b {
				b = m
			}
		}
		if d := math.Max(a, b); d > 0 {
			total += (b - a) / d
		}
	}
	return total / float64(n)
}

// calinskiHarabasz is the ratio of between- to within-cluster dispersion. A
// run whose clusters have no spread at all scores 1.
func calinskiHarabasz(points [][]float64, groups []int, members [][][]float64, centroids [][]float64) float64 {
	n, k := len(points), len(centroids)
	mean := vecmath.Centroid(points)

	var between, within float64
	for g, c := range centroids {
		between += float64(len(members[g])) * vecmath.SquaredEuclidean(c, mean)
	}
	for i, p := range points {
		within += vecmath.SquaredEuclidean(p, centroids[groups[i]])
	}
	if within == 0 {
		return 1
	}
	return between * float64(n-k) / (within * float64(k-1))
}

// daviesBouldin is the mean over clusters of the worst ratio of summed
// scatter to centroid separation. Coincident centroids are skipped.
func daviesBouldin(members [][][]float64, centroids [][]float64) float64 {
	k := len(centroids)
	scatter := make([]float64, k)
	for g, rows := range members {
		for _, p := range rows {
			scatter[g] += vecmath.Euclidean(p, centroids[g])
		}
		scatter[g] /= float64(len(rows))
	}

	var total float64
	for i := 0; i < k; i++ {
		worst := 0.0
		for j := 0; j < k; j++ {
			if i == j {
				continue
			}
			sep := vecmath.Euclidean(centroids[i], centroids[j])
			if sep == 0 {
				continue
			}
			if r := (scatter[i] + scatter[j]) / sep; r > worst {
				worst = r
			}
		}
		total += worst
	}
	return total / float64(k)
}
