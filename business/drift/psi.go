package drift

import (
	"math"
	"sort"
)

const psiEpsilon = 1e-4

// PSI computes the population stability index between a reference and a
// current sample. Bin edges are quantiles of the reference and are reused
// for the current sample, so an identical distribution scores exactly 0.
func PSI(reference, current []float64, bins int) float64 {
	if len(reference) == 0 || len(current) == 0 {
		return 0
	}
	if bins < 2 {
		bins = 2
	}

	edges := quantileEdges(reference, bins)
	refProp := binProportions(reference, edges)
	curProp := binProportions(current, edges)

	var psi float64
	for i := range refProp {
		r := math.Max(refProp[i], psiEpsilon)
		c := math.Max(curProp[i], psiEpsilon)
		psi += (c - r) * math.Log(c/r)
	}
	if psi < 0 {
		psi = 0
	}
	return psi
}

// quantileEdges returns the interior bin edges (len = bins-1). Duplicate
// edges from low-cardinality features are kept; their bins are simply
// empty, which the epsilon floor absorbs.
func quantileEdges(values []float64, bins int) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	edges := make([]float64, bins-1)
	for i := 1; i < bins; i++ {
		pos := float64(i) / float64(bins) * float64(len(sorted)-1)
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		frac := pos - float64(lo)
		edges[i-1] = sorted[lo]*(1-frac) + sorted[hi]*frac
	}
	return edges
}

func binProportions(values []float64, edges []float64) []float64 {
	counts := make([]float64, len(edges)+1)
	for _, v := range values {
		// first edge at or above v; values beyond the last edge fall in
		// the final bin
		idx := sort.SearchFloat64s(edges, v)
		counts[idx]++
	}
	n := float64(len(values))
	for i := range counts {
		counts[i] /= n
	}
	return counts
}
