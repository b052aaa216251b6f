package hdbscan

import (
	"math"
	"sort"
)

// condensedRow is one edge of the condensed tree. Children below n are points
// that fell out of parent at lambda; children from n on are clusters.
type condensedRow struct {
	parent, child int
	lambda        float64
	size          int
}

func lambdaOf(distance float64) float64 {
	return 1 / math.Max(distance, minDistance)
}

// condense walks the single-linkage tree from the root and keeps only splits
// where both sides have at least minSize points. Condensed cluster ids start
// at n for the root and increase in breadth-first order, so a child always has
// a larger id than its parent.
func condense(n int, tree []linkage, minSize int) []condensedRow {
	root := 2*n - 2
	sizeOf := func(node int) int {
		if node < n {
			return 1
		}
		return tree[node-n].size
	}
	leaves := func(node int) []int {
		var out []int
		stack := []int{node}
		for len(stack) > 0 {
			x := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if x < n {
				out = append(out, x)
				continue
			}
			stack = append(stack, tree[x-n].right, tree[x-n].left)
		}
		return out
	}

	relabel := map[int]int{root: n}
	next := n + 1
	var rows []condensedRow

	queue := []int{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node < n {
			continue
		}
		link := tree[node-n]
		lambda := lambdaOf(link.distance)
		parent := relabel[node]
		left, right := link.left, link.right
		lc, rc := sizeOf(left), sizeOf(right)

		fallOut := func(side int) {
			for _, p := range leaves(side) {
				rows = append(rows, condensedRow{parent: parent, child: p, lambda: lambda, size: 1})
			}
		}

		switch {
		case lc >= minSize && rc >= minSize:
			relabel[left] = next
			rows = append(rows, condensedRow{parent: parent, child: next, lambda: lambda, size: lc})
			next++
			relabel[right] = next
			rows = append(rows, condensedRow{parent: parent, child: next, lambda: lambda, size: rc})
			next++
			queue = append(queue, left, right)
		case lc < minSize && rc < minSize:
			fallOut(left)
			fallOut(right)
		case lc < minSize:
			fallOut(left)
			relabel[right] = parent
			queue = append(queue, right)
		default:
			fallOut(right)
			relabel[left] = parent
			queue = append(queue, left)
		}
	}
	return rows
}

// selectClusters picks flat clusters by excess of mass. It returns the
// selected condensed cluster ids in ascending order.
func selectClusters(n int, rows []condensedRow, allowSingle bool) []int {
	birth := map[int]float64{n: 0}
	children := map[int][]int{}
	for _, r := range rows {
		if r.child >= n {
			birth[r.child] = r.lambda
			children[r.parent] = append(children[r.parent], r.child)
		}
	}

	stability := map[int]float64{}
	for c := range birth {
		stability[c] = 0
	}
	for _, r := range rows {
		stability[r.parent] += (r.lambda - birth[r.parent]) * float64(r.size)
	}

	ids := make([]int, 0, len(stability))
	for c := range stability {
		ids = append(ids, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))

	selected := map[int]bool{}
	for _, c := range ids {
		if c == n && !allowSingle {
			continue
		}
		selected[c] = true
	}

	var unselect func(c int)
	unselect = func(c int) {
		for _, ch := range children[c] {
			selected[ch] = false
			unselect(ch)
		}
	}

	for _, c := range ids {
		if c == n && !allowSingle {
			continue
		}
		var sub float64
		for _, ch := range children[c] {
			sub += stability[ch]
		}
		if len(children[c]) > 0 && sub > stability[c] {
			selected[c] = false
			stability[c] = sub
		} else {
			unselect(c)
		}
	}

	var out []int
	for c, ok := range selected {
		if ok {
			out = append(out, c)
		}
	}
	sort.Ints(out)
	return out
}

// label assigns every point to the selected cluster above it in the condensed
// tree, or Noise, and computes membership probabilities.
func label(n int, rows []condensedRow, selected []int, res *Result) {
	parentOf := map[int]int{}
	pointLambda := make([]float64, n)
	pointParent := make([]int, n)
	for i := range pointParent {
		pointParent[i] = -1
	}
	for _, r := range rows {
		if r.child >= n {
			parentOf[r.child] = r.parent
		} else {
			pointParent[r.child] = r.parent
			pointLambda[r.child] = r.lambda
		}
	}

	isSelected := map[int]bool{}
	for _, c := range selected {
		isSelected[c] = true
	}

	owner := make([]int, n)
	members := map[int][]int{}
	for p := 0; p < n; p++ {
		owner[p] = -1
		for c := pointParent[p]; c >= 0; {
			if isSelected[c] {
				owner[p] = c
				members[c] = append(members[c], p)
				break
			}
			up, ok := parentOf[c]
			if !ok {
				break
			}
			c = up
		}
	}

	// number clusters by their lowest member index; members are appended in
	// ascending point order
	order := make([]int, 0, len(members))
	for c := range members {
		order = append(order, c)
	}
	sort.Slice(order, func(i, j int) bool {
		return members[order[i]][0] < members[order[j]][0]
	})

	stability := clusterStability(n, rows)
	labelOf := map[int]int{}
	for i, c := range order {
		labelOf[c] = i
		res.Clusters = append(res.Clusters, Cluster{Label: i, Size: len(members[c]), Stability: stability[c]})
	}

	for c, ms := range members {
		maxLambda := 0.0
		for _, p := range ms {
			maxLambda = math.Max(maxLambda, pointLambda[p])
		}
		for _, p := range ms {
			res.Labels[p] = labelOf[c]
			prob := 1.0
			if maxLambda > 0 {
				prob = math.Min(pointLambda[p], maxLambda) / maxLambda
			}
			res.Probabilities[p] = prob
		}
	}
}

func clusterStability(n int, rows []condensedRow) map[int]float64 {
	birth := map[int]float64{n: 0}
	for _, r := range rows {
		if r.child >= n {
			birth[r.child] = r.lambda
		}
	}
	out := map[int]float64{}
	for _, r := range rows {
		out[r.parent] += (r.lambda - birth[r.parent]) * float64(r.size)
	}
	return out
}
