package reduction

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/Aleph-Alpha/lexgraph/v1/vecmath"
)

const (
	initScale    = 10.0
	initNoise    = 1e-4
	gradientClip = 4.0
	repulsionEps = 1e-3
)

// Project embeds data (n rows of equal length) into p.Components dimensions.
// It needs at least 3 rows.
func Project(ctx context.Context, data [][]float64, p Params) ([][]float64, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(data)
	if n < 3 {
		return nil, fmt.Errorf("%w: need at least 3 points, got %d", ErrTooFewPoints, n)
	}
	dim := len(data[0])
	for i, row := range data {
		if len(row) != dim {
			return nil, fmt.Errorf("reduction: row %d has %d dimensions, expected %d", i, len(row), dim)
		}
	}

	knn, err := Neighbors(ctx, data, p.Neighbors)
	if err != nil {
		return nil, err
	}
	edges := fuzzySet(knn)

	rng := rand.New(rand.NewSource(p.Seed))
	emb := pcaInit(data, p.Components, rng)

	a, b := fitCurve(p.Spread, p.MinDist)
	if err := optimize(ctx, emb, edges, p, a, b, rng); err != nil {
		return nil, err
	}
	return emb, nil
}

// pcaInit projects centred data onto its leading principal axes, scales every
// axis to [-initScale, initScale] and adds a little seeded noise so that
// duplicate points can separate. Axes beyond the rank of data are noise only.
func pcaInit(data [][]float64, components int, rng *rand.Rand) [][]float64 {
	n, dim := len(data), len(data[0])

	mean := make([]float64, dim)
	for _, row := range data {
		for j, x := range row {
			mean[j] += x
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	x := mat.NewDense(n, dim, nil)
	for i, row := range data {
		for j, v := range row {
			x.Set(i, j, v-mean[j])
		}
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, components)
	}

	var svd mat.SVD
	if svd.Factorize(x, mat.SVDThin) {
		var v mat.Dense
		svd.VTo(&v)
		_, rank := v.Dims()
		if rank > components {
			rank = components
		}
		if rank > 0 {
			var proj mat.Dense
			proj.Mul(x, v.Slice(0, dim, 0, rank))
			for c := 0; c < rank; c++ {
				maxAbs := 0.0
				for i := 0; i < n; i++ {
					maxAbs = math.Max(maxAbs, math.Abs(proj.At(i, c)))
				}
				if maxAbs == 0 {
					continue
				}
				for i := 0; i < n; i++ {
					out[i][c] = proj.At(i, c) / maxAbs * initScale
				}
			}
		}
	}

	for i := range out {
		for c := range out[i] {
			out[i][c] += rng.NormFloat64() * initNoise * initScale
		}
	}
	return out
}

// optimize runs negative-sampling SGD on emb in place. Edges are sampled in
// proportion to their weight; the learning rate decays linearly to zero.
func optimize(ctx context.Context, emb [][]float64, edges []edge, p Params, a, b float64, rng *rand.Rand) error {
	if len(edges) == 0 {
		return nil
	}
	n := len(emb)
	epochs := float64(p.Epochs)

	maxW := 0.0
	for _, e := range edges {
		maxW = math.Max(maxW, e.weight)
	}

	type schedule struct {
		edge            edge
		every, next     float64
		negEvery, negAt float64
	}
	var plan []schedule
	for _, e := range edges {
		every := maxW / e.weight
		if every > epochs {
			continue
		}
		negEvery := every / float64(p.NegativeSampleRate)
		plan = append(plan, schedule{edge: e, every: every, next: every, negEvery: negEvery, negAt: negEvery})
	}

	for epoch := 0; epoch < p.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		alpha := p.LearningRate * (1 - float64(epoch)/epochs)
		ep := float64(epoch)

		for s := range plan {
			sc := &plan[s]
			if sc.next > ep {
				continue
			}
			cur, other := emb[sc.edge.from], emb[sc.edge.to]

			d2 := vecmath.SquaredEuclidean(cur, other)
			if d2 > 0 {
				coef := -2 * a * b * math.Pow(d2, b-1) / (a*math.Pow(d2, b) + 1)
				for k := range cur {
					g := clip(coef * (cur[k] - other[k]))
					cur[k] += g * alpha
					other[k] -= g * alpha
				}
			}
			sc.next += sc.every

			negs := int((ep - sc.negAt) / sc.negEvery)
			if negs < 0 {
				negs = 0
			}
			for q := 0; q < negs; q++ {
				j := rng.Intn(n)
				if j == sc.edge.from {
					continue
				}
				neg := emb[j]
				d2 := vecmath.SquaredEuclidean(cur, neg)
				var coef float64
				if d2 > 0 {
					coef = 2 * b / ((repulsionEps + d2) * (a*math.Pow(d2, b) + 1))
				}
				for k := range cur {
					g := gradientClip
					if coef > 0 {
						g = clip(coef * (cur[k] - neg[k]))
					}
					cur[k] += g * alpha
				}
			}
			sc.negAt += float64(negs) * sc.negEvery
		}
	}
	return nil
}

func clip(g float64) float64 {
	if g > gradientClip {
		return gradientClip
	}
	if g < -gradientClip {
		return -gradientClip
	}
	return g
}
