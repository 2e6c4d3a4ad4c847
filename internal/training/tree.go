package training

import (
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/i474232898/aqi-service/internal/regression"
)

// TreeOptions bounds the growth of a single regression tree.
type TreeOptions struct {
	MaxDepth       int // 0 = unlimited
	MinSamplesLeaf int
	// MaxFeatures is the number of features tried per split; 0 tries all.
	MaxFeatures int
}

type treeBuilder struct {
	X     [][]float64
	y     []float64
	opts  TreeOptions
	rng   *rand.Rand
	nodes []regression.Node

	features []int
	order    []int

	// gain[f] accumulates the squared-error reduction of splits on f.
	gain []float64
}

// FitTree grows a CART regression tree minimizing squared error over the
// rows named by idx (duplicates allowed, as produced by bootstrapping). The
// second result is the total squared-error reduction per feature.
func FitTree(X [][]float64, y []float64, idx []int, opts TreeOptions, rng *rand.Rand) (regression.Tree, []float64) {
	if opts.MinSamplesLeaf < 1 {
		opts.MinSamplesLeaf = 1
	}
	d := len(X[0])
	b := &treeBuilder{X: X, y: y, opts: opts, rng: rng, features: make([]int, d), gain: make([]float64, d)}
	for j := range b.features {
		b.features[j] = j
	}
	b.grow(append([]int(nil), idx...), 0)
	return regression.Tree{Nodes: b.nodes}, b.gain
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	at := len(b.nodes)
	b.nodes = append(b.nodes, regression.Node{Leaf: true, Value: b.mean(idx)})

	if b.opts.MaxDepth > 0 && depth >= b.opts.MaxDepth {
		return at
	}
	if len(idx) < 2*b.opts.MinSamplesLeaf {
		return at
	}

	feature, threshold, gain, ok := b.bestSplit(idx)
	if !ok {
		return at
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	if len(left) == 0 || len(right) == 0 {
		return at
	}
	b.gain[feature] += gain

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[at] = regression.Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return at
}

func (b *treeBuilder) mean(idx []int) float64 {
	var s float64
	for _, i := range idx {
		s += b.y[i]
	}
	return s / float64(len(idx))
}

// bestSplit scans sorted feature values and keeps the split with the
// largest reduction in squared error.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold, gain float64, ok bool) {
	n := len(idx)
	var total, totalSq float64
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parentSSE := totalSq - total*total/float64(n)
	if parentSSE <= 1e-12 {
		return 0, 0, 0, false
	}

	candidates := b.features
	if k := b.opts.MaxFeatures; k > 0 && k < len(candidates) {
		b.rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		candidates = candidates[:k]
	}

	best := parentSSE
	minLeaf := b.opts.MinSamplesLeaf
	if cap(b.order) < n {
		b.order = make([]int, n)
	}
	order := b.order[:n]

	for _, f := range candidates {
		copy(order, idx)
		slices.SortFunc(order, func(p, q int) int {
			return cmpFloat(b.X[p][f], b.X[q][f])
		})

		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			yi := b.y[order[k]]
			leftSum += yi
			leftSq += yi * yi

			nl := k + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			lo, hi := b.X[order[k]][f], b.X[order[k+1]][f]
			if lo == hi {
				continue
			}

			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if sse < best-1e-12 {
				best = sse
				feature = f
				threshold = lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				ok = true
			}
		}
	}
	return feature, threshold, parentSSE - best, ok
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// bootstrap draws n row indices with replacement.
func bootstrap(n int, rng *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.IntN(n)
	}
	return idx
}

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// normalize scales v in place to sum to 1. All-zero input is left as is.
func normalize(v []float64) []float64 {
	if sum := floats.Sum(v); sum > 0 {
		floats.Scale(1/sum, v)
	}
	return v
}
