// Package ml implements the unsupervised anomaly model: an isolation forest
// over standardized flow features.
package ml

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
)

const eulerGamma = 0.5772156649015329

// Options controls forest training.
type Options struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          uint64
}

// DefaultOptions mirrors the production settings: 200 trees, 256-point
// subsamples, 2% expected contamination.
func DefaultOptions() Options {
	return Options{Trees: 200, SampleSize: 256, Contamination: 0.02, Seed: 42}
}

// Node is one node of an isolation tree stored in a flat slice.
// Left is -1 for leaves.
type Node struct {
	Feature   int
	Threshold float64
	Left      int32
	Right     int32
	Size      int
}

// Tree is a single isolation tree.
type Tree struct {
	Nodes []Node
}

// Forest is a trained isolation forest. It is read-only after Fit.
type Forest struct {
	Trees      []Tree
	SampleSize int
	// Offset shifts raw scores so that Decision is negative for the
	// Contamination fraction of the training data.
	Offset float64
}

var errNoData = errors.New("ml: no training data")

// Fit trains a forest on X (rows of equal width).
func Fit(X [][]float64, opts Options) (*Forest, error) {
	if len(X) == 0 {
		return nil, errNoData
	}
	width := len(X[0])
	for _, row := range X {
		if len(row) != width {
			return nil, errors.New("ml: ragged training data")
		}
	}
	if opts.Trees <= 0 {
		opts.Trees = DefaultOptions().Trees
	}
	if opts.SampleSize <= 1 {
		opts.SampleSize = DefaultOptions().SampleSize
	}
	sampleSize := min(opts.SampleSize, len(X))
	maxDepth := int(math.Ceil(math.Log2(float64(max(sampleSize, 2)))))

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	f := &Forest{Trees: make([]Tree, opts.Trees), SampleSize: sampleSize}
	for i := range f.Trees {
		idx := rng.Perm(len(X))[:sampleSize]
		b := treeBuilder{X: X, rng: rng, width: width}
		b.build(idx, 0, maxDepth)
		f.Trees[i] = Tree{Nodes: b.nodes}
	}

	scores := make([]float64, len(X))
	for i, row := range X {
		scores[i] = f.ScoreSamples(row)
	}
	f.Offset = quantile(scores, opts.Contamination)
	return f, nil
}

type treeBuilder struct {
	X     [][]float64
	rng   *rand.Rand
	width int
	nodes []Node
}

func (b *treeBuilder) build(idx []int, depth, maxDepth int) int32 {
	pos := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Size: len(idx)})
	if depth >= maxDepth || len(idx) <= 1 {
		return pos
	}

	// Pick a random feature among those that still vary.
	var candidates []int
	lo := make([]float64, b.width)
	hi := make([]float64, b.width)
	for f := 0; f < b.width; f++ {
		lo[f], hi[f] = math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			v := b.X[i][f]
			lo[f] = math.Min(lo[f], v)
			hi[f] = math.Max(hi[f], v)
		}
		if hi[f] > lo[f] {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return pos
	}
	feature := candidates[b.rng.IntN(len(candidates))]
	split := lo[feature] + b.rng.Float64()*(hi[feature]-lo[feature])

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return pos
	}

	l := b.build(left, depth+1, maxDepth)
	r := b.build(right, depth+1, maxDepth)
	b.nodes[pos].Feature = feature
	b.nodes[pos].Threshold = split
	b.nodes[pos].Left = l
	b.nodes[pos].Right = r
	return pos
}

func (t *Tree) pathLength(x []float64) float64 {
	depth := 0.0
	i := int32(0)
	for {
		n := &t.Nodes[i]
		if n.Left < 0 {
			return depth + averagePathLength(n.Size)
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// ScoreSamples returns the negated isolation score in [-1, 0). Lower is more
// anomalous.
func (f *Forest) ScoreSamples(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	total := 0.0
	for i := range f.Trees {
		total += f.Trees[i].pathLength(x)
	}
	mean := total / float64(len(f.Trees))
	c := averagePathLength(f.SampleSize)
	if c == 0 {
		return -1
	}
	return -math.Pow(2, -mean/c)
}

// Decision returns ScoreSamples shifted by the training offset. Negative
// values are anomalies; more negative is more anomalous.
func (f *Forest) Decision(x []float64) float64 {
	return f.ScoreSamples(x) - f.Offset
}

// Predict reports whether x is an anomaly.
func (f *Forest) Predict(x []float64) bool {
	return f.Decision(x) < 0
}

// averagePathLength is c(n), the mean path length of an unsuccessful BST search.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

// quantile returns the q-quantile of values with linear interpolation.
func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(sorted)-1)
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
