package explain

import "credit-observer/src/scoring"

// Path-dependent TreeSHAP (Lundberg et al., Algorithm 2). Node covers stand in
// for the training distribution when a feature is absent from a coalition.

type pathElem struct {
	feature int
	zero    float64
	one     float64
	weight  float64
}

func extendPath(path []pathElem, depth int, zero, one float64, feature int) {
	path[depth] = pathElem{feature: feature, zero: zero, one: one}
	if depth == 0 {
		path[depth].weight = 1
	}
	for i := depth - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / float64(depth+1)
		path[i].weight = zero * path[i].weight * float64(depth-i) / float64(depth+1)
	}
}

func unwindPath(path []pathElem, depth, idx int) {
	one, zero := path[idx].one, path[idx].zero
	next := path[depth].weight

	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * float64(depth+1) / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(depth-i)/float64(depth+1)
		} else {
			path[i].weight = path[i].weight * float64(depth+1) / (zero * float64(depth-i))
		}
	}
	for i := idx; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

func unwoundPathSum(path []pathElem, depth, idx int) float64 {
	one, zero := path[idx].one, path[idx].zero
	next := path[depth].weight
	total := 0.0

	if one != 0 {
		for i := depth - 1; i >= 0; i-- {
			tmp := next * float64(depth+1) / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(depth-i)/float64(depth+1)
		}
		return total
	}
	if zero == 0 {
		return 0
	}
	for i := depth - 1; i >= 0; i-- {
		total += path[i].weight / (zero * float64(depth-i) / float64(depth+1))
	}
	return total
}

// -----------------------------------------------------------------------------

type treeExplainer struct {
	tree scoring.Tree
	x    []float64
	phi  []float64
}

func (t *treeExplainer) recurse(node int, depth int, parent []pathElem, zero, one float64, feature int) {
	path := make([]pathElem, depth+1, depth+2)
	copy(path, parent)
	extendPath(path, depth, zero, one, feature)

	n := t.tree.Nodes[node]
	if n.IsLeaf() {
		for i := 1; i <= depth; i++ {
			w := unwoundPathSum(path, depth, i)
			el := path[i]
			t.phi[el.feature] += w * (el.one - el.zero) * n.Value
		}
		return
	}

	hot, cold := n.Right, n.Left
	if t.x[n.Feature] <= n.Threshold {
		hot, cold = n.Left, n.Right
	}
	hotZero := t.tree.Nodes[hot].Cover / n.Cover
	coldZero := t.tree.Nodes[cold].Cover / n.Cover
	inZero, inOne := 1.0, 1.0

	// a feature already on the path is undone and re-split here
	for k := 0; k <= depth; k++ {
		if path[k].feature == n.Feature {
			inZero, inOne = path[k].zero, path[k].one
			unwindPath(path, depth, k)
			depth--
			break
		}
	}

	t.recurse(hot, depth+1, path, hotZero*inZero, inOne, n.Feature)
	t.recurse(cold, depth+1, path, coldZero*inZero, 0, n.Feature)
}

// TreeSHAP returns per-feature contributions for one tree on the raw scale.
// Their sum equals tree.Predict(x) - tree.ExpectedValue().
func TreeSHAP(tree scoring.Tree, x []float64, nFeatures int) []float64 {
	te := &treeExplainer{tree: tree, x: x, phi: make([]float64, nFeatures)}
	te.recurse(0, 0, nil, 1, 1, -1)
	return te.phi
}

// ForestSHAP averages TreeSHAP over the trees of f.
func ForestSHAP(f *scoring.Forest, x []float64) []float64 {
	phi := make([]float64, len(f.Features))
	for _, t := range f.Trees {
		for i, v := range TreeSHAP(t, x, len(f.Features)) {
			phi[i] += v
		}
	}
	for i := range phi {
		phi[i] /= float64(len(f.Trees))
	}
	return phi
}
