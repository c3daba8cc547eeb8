package scoring

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"credit-observer/src/models"
)

// Node is one entry of a flattened regression tree. Feature < 0 marks a leaf.
// Samples with x[Feature] <= Threshold go Left. Cover is the number of
// training samples that reached the node.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Cover     float64 `json:"cover"`
}

func (n Node) IsLeaf() bool { return n.Feature < 0 }

type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks from the root to a leaf.
func (t Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// ExpectedValue is the cover-weighted mean of the leaves, i.e. the tree's
// mean prediction over its training population.
func (t Tree) ExpectedValue() float64 {
	root := t.Nodes[0].Cover
	if root == 0 {
		return t.Nodes[0].Value
	}
	sum := 0.0
	for _, n := range t.Nodes {
		if n.IsLeaf() {
			sum += n.Value * n.Cover
		}
	}
	return sum / root
}

// -----------------------------------------------------------------------------

type ForestParams struct {
	Trees           int     `json:"trees"`
	MaxDepth        int     `json:"max_depth"`
	MinLeaf         int     `json:"min_leaf"`
	SampleFraction  float64 `json:"sample_fraction"`
	FeatureFraction float64 `json:"feature_fraction"`
	Seed            int64   `json:"seed"`
}

func paramsFromConfig(c models.MScoringConfig) ForestParams {
	p := ForestParams{
		Trees:           c.Trees,
		MaxDepth:        c.MaxDepth,
		MinLeaf:         c.MinLeaf,
		SampleFraction:  c.SampleFraction,
		FeatureFraction: c.FeatureFraction,
		Seed:            c.Seed,
	}
	if p.Trees <= 0 {
		p.Trees = 50
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 6
	}
	if p.MinLeaf <= 0 {
		p.MinLeaf = 3
	}
	if p.SampleFraction <= 0 || p.SampleFraction > 1 {
		p.SampleFraction = 0.8
	}
	if p.FeatureFraction <= 0 || p.FeatureFraction > 1 {
		p.FeatureFraction = 0.7
	}
	return p
}

// Forest is an immutable, versioned bagged ensemble of regression trees.
type Forest struct {
	ModelVersion string       `json:"model_version"`
	Features     []string     `json:"feature_names"`
	Trees        []Tree       `json:"trees"`
	Params       ForestParams `json:"params"`
	TrainedAt    int64        `json:"trained_at"`
}

func (f *Forest) Version() string        { return f.ModelVersion }
func (f *Forest) FeatureNames() []string { return f.Features }

// TreePredictions returns each tree's output for x.
func (f *Forest) TreePredictions(x []float64) []float64 {
	out := make([]float64, len(f.Trees))
	for i, t := range f.Trees {
		out[i] = t.Predict(x)
	}
	return out
}

func (f *Forest) Predict(x []float64) float64 {
	preds := f.TreePredictions(x)
	sum := 0.0
	for _, p := range preds {
		sum += p
	}
	return sum / float64(len(preds))
}

// ExpectedValue averages the trees' expected values.
func (f *Forest) ExpectedValue() float64 {
	sum := 0.0
	for _, t := range f.Trees {
		sum += t.ExpectedValue()
	}
	return sum / float64(len(f.Trees))
}

// Validate checks the structural invariants of a loaded forest.
func (f *Forest) Validate() error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest %s has no trees", f.ModelVersion)
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("forest %s tree %d is empty", f.ModelVersion, ti)
		}
		for ni, n := range t.Nodes {
			if n.IsLeaf() {
				continue
			}
			if n.Feature >= len(f.Features) || n.Left <= ni || n.Right <= ni ||
				n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("forest %s tree %d node %d is malformed", f.ModelVersion, ti, ni)
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// TrainForest fits a random forest on set. Tree i draws its bootstrap and
// feature subsets from Seed+i, so the same data and params give the same
// forest.
func TrainForest(set models.MTrainingSet, params ForestParams) (*Forest, error) {
	if len(set.Samples) == 0 {
		return nil, fmt.Errorf("empty training set")
	}
	p := len(set.FeatureNames)
	X := make([][]float64, len(set.Samples))
	y := make([]float64, len(set.Samples))
	for i, s := range set.Samples {
		if len(s.Features) != p {
			return nil, fmt.Errorf("sample %d has %d features, expected %d", i, len(s.Features), p)
		}
		X[i] = s.Features
		y[i] = s.Label
	}

	f := &Forest{
		Features: append([]string(nil), set.FeatureNames...),
		Trees:    make([]Tree, params.Trees),
		Params:   params,
	}
	for t := 0; t < params.Trees; t++ {
		rng := rand.New(rand.NewSource(params.Seed + int64(t)))
		b := &treeBuilder{X: X, y: y, params: params, rng: rng}
		b.build(b.bootstrap(), 0)
		f.Trees[t] = Tree{Nodes: b.nodes}
	}
	return f, nil
}

// -----------------------------------------------------------------------------

type treeBuilder struct {
	X      [][]float64
	y      []float64
	params ForestParams
	rng    *rand.Rand
	nodes  []Node
}

func (b *treeBuilder) bootstrap() []int {
	n := int(math.Round(float64(len(b.y)) * b.params.SampleFraction))
	if n < 1 {
		n = 1
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = b.rng.Intn(len(b.y))
	}
	return idx
}

func (b *treeBuilder) leafValue(idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}

// build appends the subtree for idx and returns its node index.
func (b *treeBuilder) build(idx []int, depth int) int {
	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: b.leafValue(idx), Cover: float64(len(idx))})

	if depth >= b.params.MaxDepth || len(idx) < 2*b.params.MinLeaf {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return self
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
		return self
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[self].Feature = feature
	b.nodes[self].Threshold = threshold
	b.nodes[self].Left = l
	b.nodes[self].Right = r
	return self
}

// bestSplit searches a random feature subset for the split with the largest
// reduction in squared error that leaves MinLeaf samples on each side.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	nFeatures := len(b.X[0])
	k := int(math.Round(float64(nFeatures) * b.params.FeatureFraction))
	if k < 1 {
		k = 1
	}
	candidates := b.rng.Perm(nFeatures)[:k]
	sort.Ints(candidates)

	n := len(idx)
	total, totalSq := 0.0, 0.0
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parentSSE := totalSq - total*total/float64(n)

	bestGain := 1e-12
	bestFeature, bestThreshold, found := -1, 0.0, false
	sorted := make([]int, n)

	for _, f := range candidates {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		leftSum, leftSq := 0.0, 0.0
		for pos := 0; pos < n-1; pos++ {
			v := b.y[sorted[pos]]
			leftSum += v
			leftSq += v * v

			nl := pos + 1
			nr := n - nl
			if nl < b.params.MinLeaf || nr < b.params.MinLeaf {
				continue
			}
			xl, xr := b.X[sorted[pos]][f], b.X[sorted[pos+1]][f]
			if xl == xr {
				continue
			}
			rightSum, rightSq := total-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if gain := parentSSE - sse; gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = xl + (xr-xl)/2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}
