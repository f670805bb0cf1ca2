package ranker

import (
	"math"
	"sort"
)

const modelNameGBDT = "gbdt_logistic"

const (
	gbdtTrees         = 50
	gbdtMaxDepth      = 3
	gbdtShrinkage     = 0.1
	gbdtMinLeafRows   = 5
	gbdtLambda        = 1.0
	gbdtMaxThresholds = 16
)

// gbdtModel is a gradient-boosted ensemble of depth-limited regression
// trees fitted on the logistic loss. Every tree is stored as a flat node
// array; Left/Right of -1 marks a leaf.
type gbdtModel struct {
	InitScore float64    `json:"init_score"`
	Shrinkage float64    `json:"shrinkage"`
	Trees     []gbdtTree `json:"trees"`
}

type gbdtTree struct {
	Nodes []gbdtNode `json:"nodes"`
}

type gbdtNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

func trainGBDT(X [][]float64, y []float64) *gbdtModel {
	n := len(X)
	if n == 0 {
		return &gbdtModel{Shrinkage: gbdtShrinkage}
	}

	var pos float64
	for _, label := range y {
		pos += label
	}
	// log-odds prior, clamped away from degenerate all-one/all-zero sets
	prior := pos / float64(n)
	prior = math.Min(math.Max(prior, 1e-6), 1-1e-6)

	m := &gbdtModel{
		InitScore: math.Log(prior / (1 - prior)),
		Shrinkage: gbdtShrinkage,
	}

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = m.InitScore
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}

	for t := 0; t < gbdtTrees; t++ {
		for i := range scores {
			p := sigmoid(scores[i])
			grad[i] = y[i] - p
			hess[i] = p * (1 - p)
		}

		tree := gbdtTree{}
		buildNode(&tree, X, grad, hess, rows, 0)
		m.Trees = append(m.Trees, tree)

		for i := range scores {
			scores[i] += m.Shrinkage * tree.eval(X[i])
		}
	}
	return m
}

// buildNode grows one node, splitting recursively until depth or row limits
// stop it. Returns the node's index in the tree's flat array.
func buildNode(tree *gbdtTree, X [][]float64, grad, hess []float64, rows []int, depth int) int {
	var sumG, sumH float64
	for _, i := range rows {
		sumG += grad[i]
		sumH += hess[i]
	}

	idx := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, gbdtNode{
		Left:  -1,
		Right: -1,
		Value: sumG / (sumH + gbdtLambda),
	})

	if depth >= gbdtMaxDepth || len(rows) < 2*gbdtMinLeafRows {
		return idx
	}

	feature, threshold, gain := bestSplit(X, grad, hess, rows, sumG, sumH)
	if gain <= 1e-12 {
		return idx
	}

	var left, right []int
	for _, i := range rows {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < gbdtMinLeafRows || len(right) < gbdtMinLeafRows {
		return idx
	}

	tree.Nodes[idx].Feature = feature
	tree.Nodes[idx].Threshold = threshold
	leftIdx := buildNode(tree, X, grad, hess, left, depth+1)
	rightIdx := buildNode(tree, X, grad, hess, right, depth+1)
	tree.Nodes[idx].Left = leftIdx
	tree.Nodes[idx].Right = rightIdx
	return idx
}

// bestSplit scans every feature over quantile-capped candidate thresholds.
// Features are visited in index order, so equal gains resolve the same way
// on every run.
func bestSplit(X [][]float64, grad, hess []float64, rows []int, sumG, sumH float64) (feature int, threshold, gain float64) {
	parent := sumG * sumG / (sumH + gbdtLambda)
	feature = -1

	dims := len(X[rows[0]])
	values := make([]float64, 0, len(rows))

	for f := 0; f < dims; f++ {
		values = values[:0]
		for _, i := range rows {
			values = append(values, X[i][f])
		}
		for _, th := range candidateThresholds(values) {
			var gl, hl float64
			for _, i := range rows {
				if X[i][f] <= th {
					gl += grad[i]
					hl += hess[i]
				}
			}
			gr := sumG - gl
			hr := sumH - hl
			g := gl*gl/(hl+gbdtLambda) + gr*gr/(hr+gbdtLambda) - parent
			if g > gain {
				feature, threshold, gain = f, th, g
			}
		}
	}
	return feature, threshold, gain
}

func candidateThresholds(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	uniq := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != uniq[len(uniq)-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) < 2 {
		return nil
	}

	// midpoints between consecutive distinct values, thinned to a fixed
	// number of quantiles when there are too many
	mids := make([]float64, 0, len(uniq)-1)
	for i := 0; i+1 < len(uniq); i++ {
		mids = append(mids, (uniq[i]+uniq[i+1])/2)
	}
	if len(mids) <= gbdtMaxThresholds {
		return mids
	}
	out := make([]float64, 0, gbdtMaxThresholds)
	for k := 1; k <= gbdtMaxThresholds; k++ {
		out = append(out, mids[k*len(mids)/(gbdtMaxThresholds+1)])
	}
	return out
}

func (t *gbdtTree) eval(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for t.Nodes[i].Left >= 0 {
		if x[t.Nodes[i].Feature] <= t.Nodes[i].Threshold {
			i = t.Nodes[i].Left
		} else {
			i = t.Nodes[i].Right
		}
	}
	return t.Nodes[i].Value
}

func (m *gbdtModel) Predict(x []float64) float64 {
	s := m.InitScore
	for i := range m.Trees {
		s += m.Shrinkage * m.Trees[i].eval(x)
	}
	return sigmoid(s)
}
