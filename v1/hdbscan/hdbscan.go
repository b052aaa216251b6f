package hdbscan

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Aleph-Alpha/lexgraph/v1/vecmath"
)

// Noise is the label of points that belong to no cluster.
const Noise = -1

// minDistance bounds lambda = 1/distance for duplicate points.
const minDistance = 1e-10

// Params configure a clustering.
type Params struct {
	// MinClusterSize is the smallest group that counts as a cluster.
	// Default: 5, minimum 2
	MinClusterSize int `yaml:"min_cluster_size" json:"min_cluster_size"`

	// MinSamples sets the core distance: the distance to the MinSamples-th
	// nearest point, counting the point itself. Defaults to MinClusterSize.
	MinSamples int `yaml:"min_samples" json:"min_samples"`

	// AllowSingleCluster lets the root of the hierarchy be selected.
	AllowSingleCluster bool `yaml:"allow_single_cluster" json:"allow_single_cluster"`
}

// WithDefaults fills unset fields with their defaults.
func (p Params) WithDefaults() Params {
	if p.MinClusterSize <= 0 {
		p.MinClusterSize = 5
	}
	if p.MinClusterSize < 2 {
		p.MinClusterSize = 2
	}
	if p.MinSamples <= 0 {
		p.MinSamples = p.MinClusterSize
	}
	return p
}

// Cluster describes one selected cluster.
type Cluster struct {
	Label     int     `json:"label"`
	Size      int     `json:"size"`
	Stability float64 `json:"stability"`
}

// Result is the flat clustering of the input points.
type Result struct {
	Labels        []int
	Probabilities []float64
	Clusters      []Cluster
}

// Run clusters points. Every row must have the same length.
func Run(ctx context.Context, points [][]float64, p Params) (*Result, error) {
	p = p.WithDefaults()
	n := len(points)
	res := &Result{Labels: make([]int, n), Probabilities: make([]float64, n)}
	for i := range res.Labels {
		res.Labels[i] = Noise
	}
	if n < 2 {
		return res, nil
	}
	for i, row := range points {
		if len(row) != len(points[0]) {
			return nil, fmt.Errorf("hdbscan: row %d has %d dimensions, expected %d", i, len(row), len(points[0]))
		}
	}

	core, err := coreDistances(ctx, points, p.MinSamples)
	if err != nil {
		return nil, err
	}
	mst, err := spanningTree(ctx, points, core)
	if err != nil {
		return nil, err
	}
	tree := singleLinkage(n, mst)
	condensed := condense(n, tree, p.MinClusterSize)
	selected := selectClusters(n, condensed, p.AllowSingleCluster)
	label(n, condensed, selected, res)
	return res, nil
}

func coreDistances(ctx context.Context, points [][]float64, minSamples int) ([]float64, error) {
	n := len(points)
	k := minSamples - 1
	if k > n-1 {
		k = n - 1
	}
	core := make([]float64, n)
	if k <= 0 {
		return core, nil
	}
	dists := make([]float64, 0, n-1)
	for i := range points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dists = dists[:0]
		for j := range points {
			if j != i {
				dists = append(dists, vecmath.Euclidean(points[i], points[j]))
			}
		}
		sort.Float64s(dists)
		core[i] = dists[k-1]
	}
	return core, nil
}

type mstEdge struct {
	a, b   int
	weight float64
}

// spanningTree runs Prim's algorithm on the dense mutual reachability graph.
// Ties go to the lower point index.
func spanningTree(ctx context.Context, points [][]float64, core []float64) ([]mstEdge, error) {
	n := len(points)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]mstEdge, 0, n-1)
	current := 0
	inTree[0] = true
	for len(edges) < n-1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := -1
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			d := vecmath.Euclidean(points[current], points[j])
			mr := math.Max(d, math.Max(core[current], core[j]))
			if mr < best[j] {
				best[j] = mr
				from[j] = current
			}
			if next < 0 || best[j] < best[next] {
				next = j
			}
		}
		inTree[next] = true
		edges = append(edges, mstEdge{a: from[next], b: next, weight: best[next]})
		current = next
	}

	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].weight < edges[j].weight
	})
	return edges, nil
}

type linkage struct {
	left, right int
	distance    float64
	size        int
}

// singleLinkage merges MST edges in ascending weight order. Merge i creates
// node n+i.
func singleLinkage(n int, mst []mstEdge) []linkage {
	parent := make([]int, n)
	node := make([]int, n)
	size := make([]int, 2*n-1)
	for i := 0; i < n; i++ {
		parent[i] = i
		node[i] = i
		size[i] = 1
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	tree := make([]linkage, len(mst))
	for i, e := range mst {
		ra, rb := find(e.a), find(e.b)
		left, right := node[ra], node[rb]
		id := n + i
		size[id] = size[left] + size[right]
		tree[i] = linkage{left: left, right: right, distance: e.weight, size: size[id]}
		parent[rb] = ra
		node[ra] = id
	}
	return tree
}
