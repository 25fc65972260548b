package query

import (
	"math"

	"github.com/Aman-CERP/amanrag/internal/search"
)

// PickDiverse selects up to k hits from score-sorted candidates by marginal
// relevance. The first candidate is always taken; later ones are taken when
// lambda*score - (1-lambda)*maxSim exceeds minKeep, where maxSim is the
// highest cosine similarity to an already picked vector. When normalize is
// set, score is divided by the best candidate score first. A record is never
// picked twice. Returned hits keep their original scores.
func PickDiverse(candidates []search.Hit, k int, lambda, minKeep float64, normalize bool) []search.Hit {
	if k <= 0 || len(candidates) == 0 {
		return []search.Hit{}
	}

	scale := 1.0
	if normalize {
		top := 0.0
		for _, c := range candidates {
			top = math.Max(top, c.Score)
		}
		scale = 0
		if top > 0 {
			scale = 1 / top
		}
	}

	picked := make([]search.Hit, 0, min(k, len(candidates)))
	seen := make(map[string]bool, k)
	var vecs [][]float32

	for _, c := range candidates {
		if len(picked) >= k {
			break
		}
		if seen[c.ID()] {
			continue
		}

		maxSim := 0.0
		for _, v := range vecs {
			maxSim = math.Max(maxSim, cosine(c.Record.Vector, v))
		}
		rel := c.Score * scale
		if len(picked) > 0 && lambda*rel-(1-lambda)*maxSim <= minKeep {
			continue
		}

		seen[c.ID()] = true
		picked = append(picked, c)
		vecs = append(vecs, c.Record.Vector)
	}
	return picked
}

// cosine is the cosine similarity of two vectors; 0 when either is empty
// or the lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
