package ml

import (
	"math"
	"math/rand"
	"sort"
)

// Node is a flattened decision tree node. Leaves carry the class-1 probability.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Prob      float64 `json:"p"`
}

// Tree is a CART classifier grown on a bootstrap sample.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree and returns the leaf's class-1 probability.
func (t *Tree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	idx := 0
	for {
		n := t.Nodes[idx]
		if n.Leaf {
			return n.Prob
		}
		if x[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

type treeBuilder struct {
	X           [][]float64
	y           []int
	rng         *rand.Rand
	maxFeatures int
	minSplit    int
	maxDepth    int
	nodes       []Node
}

func (b *treeBuilder) build(samples []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{})

	positives := 0
	for _, s := range samples {
		positives += b.y[s]
	}
	prob := float64(positives) / float64(len(samples))

	pure := positives == 0 || positives == len(samples)
	if pure || len(samples) < b.minSplit || (b.maxDepth > 0 && depth >= b.maxDepth) {
		b.nodes[idx] = Node{Leaf: true, Prob: prob}
		return idx
	}

	feature, threshold, ok := b.bestSplit(samples, positives)
	if !ok {
		b.nodes[idx] = Node{Leaf: true, Prob: prob}
		return idx
	}

	var left, right []int
	for _, s := range samples {
		if b.X[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		b.nodes[idx] = Node{Leaf: true, Prob: prob}
		return idx
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[idx] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r, Prob: prob}
	return idx
}

// bestSplit draws features in random order and evaluates up to maxFeatures
// non-constant ones, returning the lowest weighted Gini split.
func (b *treeBuilder) bestSplit(samples []int, positives int) (int, float64, bool) {
	n := len(samples)
	bestGini := math.Inf(1)
	bestFeature, bestThreshold := -1, 0.0

	order := make([]int, n)
	copy(order, samples)

	evaluated := 0
	for _, f := range b.rng.Perm(len(b.X[0])) {
		if evaluated >= b.maxFeatures {
			break
		}
		sort.SliceStable(order, func(i, j int) bool { return b.X[order[i]][f] < b.X[order[j]][f] })
		if b.X[order[0]][f] == b.X[order[n-1]][f] {
			continue
		}
		evaluated++

		leftPos := 0
		for i := 0; i < n-1; i++ {
			leftPos += b.y[order[i]]
			cur, next := b.X[order[i]][f], b.X[order[i+1]][f]
			if cur == next {
				continue
			}
			nl := float64(i + 1)
			nr := float64(n - i - 1)
			g := (nl*gini(float64(leftPos), nl) + nr*gini(float64(positives-leftPos), nr)) / float64(n)
			if g < bestGini {
				bestGini = g
				bestFeature = f
				bestThreshold = midpoint(cur, next)
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

// midpoint returns a threshold in [cur, next). Between adjacent floats the
// halfway value rounds up to next, which would send every sample left.
func midpoint(cur, next float64) float64 {
	mid := cur + (next-cur)/2
	if mid >= next {
		return cur
	}
	return mid
}

func gini(pos, total float64) float64 {
	if total == 0 {
		return 0
	}
	p := pos / total
	return 2 * p * (1 - p)
}
