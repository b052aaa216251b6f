package reduction

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Aleph-Alpha/lexgraph/v1/vecmath"
)

// Neighbor is one entry of a point's neighbor list.
type Neighbor struct {
	Index    int
	Distance float64
}

// Neighbors returns, for every row, its k nearest other rows under cosine
// distance, ordered by ascending distance and then ascending index. The search
// is exact and runs rows in parallel.
func Neighbors(ctx context.Context, data [][]float64, k int) ([][]Neighbor, error) {
	n := len(data)
	if k > n-1 {
		k = n - 1
	}
	out := make([][]Neighbor, n)
	if k <= 0 {
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range data {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := make([]Neighbor, 0, n-1)
			for j := range data {
				if j == i {
					continue
				}
				row = append(row, Neighbor{Index: j, Distance: vecmath.CosineDistance64(data[i], data[j])})
			}
			sort.Slice(row, func(a, b int) bool {
				if row[a].Distance != row[b].Distance {
					return row[a].Distance < row[b].Distance
				}
				return row[a].Index < row[b].Index
			})
			out[i] = row[:k:k]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
