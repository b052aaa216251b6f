package reduction

import (
	"math"
	"sort"
)

type edge struct {
	from, to int
	weight   float64
}

const (
	sigmaIterations = 64
	sigmaTolerance  = 1e-5
	minSigmaScale   = 1e-3
)

// fuzzySet converts kNN lists into the symmetric fuzzy union graph
// w = a + b - a*b. Edges are returned in both directions, sorted by
// (from, to).
func fuzzySet(knn [][]Neighbor) []edge {
	directed := make(map[[2]int]float64)

	var meanDist float64
	var count int
	for _, row := range knn {
		for _, nb := range row {
			meanDist += nb.Distance
			count++
		}
	}
	if count > 0 {
		meanDist /= float64(count)
	}

	for i, row := range knn {
		if len(row) == 0 {
			continue
		}
		rho := 0.0
		for _, nb := range row {
			if nb.Distance > 0 {
				rho = nb.Distance
				break
			}
		}
		sigma := smoothSigma(row, rho)
		if floor := minSigmaScale * meanDist; sigma < floor {
			sigma = floor
		}
		for _, nb := range row {
			w := 1.0
			if d := nb.Distance - rho; d > 0 && sigma > 0 {
				w = math.Exp(-d / sigma)
			}
			directed[[2]int{i, nb.Index}] = w
		}
	}

	undirected := make(map[[2]int]float64, len(directed))
	for key, a := range directed {
		i, j := key[0], key[1]
		if i > j {
			i, j = j, i
		}
		pair := [2]int{i, j}
		if _, done := undirected[pair]; done {
			continue
		}
		a = directed[[2]int{i, j}]
		b := directed[[2]int{j, i}]
		undirected[pair] = a + b - a*b
	}

	edges := make([]edge, 0, 2*len(undirected))
	for pair, w := range undirected {
		if w <= 0 {
			continue
		}
		edges = append(edges, edge{pair[0], pair[1], w}, edge{pair[1], pair[0], w})
	}
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].from != edges[b].from {
			return edges[a].from < edges[b].from
		}
		return edges[a].to < edges[b].to
	})
	return edges
}

// smoothSigma finds sigma such that sum exp(-(d-rho)/sigma) = log2(k).
func smoothSigma(row []Neighbor, rho float64) float64 {
	target := math.Log2(float64(len(row)))
	lo, hi, mid := 0.0, math.Inf(1), 1.0

	for it := 0; it < sigmaIterations; it++ {
		var psum float64
		for _, nb := range row {
			d := nb.Distance - rho
			if d > 0 {
				psum += math.Exp(-d / mid)
			} else {
				psum++
			}
		}
		if math.Abs(psum-target) < sigmaTolerance {
			break
		}
		if psum > target {
			hi = mid
			mid = (lo + hi) / 2
		} else {
			lo = mid
			if math.IsInf(hi, 1) {
				mid *= 2
			} else {
				mid = (lo + hi) / 2
			}
		}
	}
	return mid
}

// fitCurve finds a and b such that 1/(1+a*x^(2b)) approximates the target
// membership curve defined by spread and minDist, by coarse-to-fine grid
// search over least squares.
func fitCurve(spread, minDist float64) (a, b float64) {
	const samples = 300
	xs := make([]float64, samples)
	ys := make([]float64, samples)
	for i := range xs {
		x := 3 * spread * float64(i+1) / samples
		xs[i] = x
		if x < minDist {
			ys[i] = 1
		} else {
			ys[i] = math.Exp(-(x - minDist) / spread)
		}
	}

	loss := func(a, b float64) float64 {
		var s float64
		for i, x := range xs {
			d := 1/(1+a*math.Pow(x, 2*b)) - ys[i]
			s += d * d
		}
		return s
	}

	aLo, aHi := 0.01, 10.0
	bLo, bHi := 0.1, 3.0
	best := math.Inf(1)
	for round := 0; round < 6; round++ {
		const steps = 24
		da, db := (aHi-aLo)/steps, (bHi-bLo)/steps
		for i := 0; i <= steps; i++ {
			for j := 0; j <= steps; j++ {
				ca, cb := aLo+float64(i)*da, bLo+float64(j)*db
				if l := loss(ca, cb); l < best {
					best, a, b = l, ca, cb
				}
			}
		}
		aLo, aHi = math.Max(0.001, a-2*da), a+2*da
		bLo, bHi = math.Max(0.01, b-2*db), b+2*db
	}
	return a, b
}
