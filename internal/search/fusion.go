package search

import (
	"sort"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// Larger values flatten the influence of top ranks.
const DefaultRRFConstant = 60

// FusedResult is a single result after RRF fusion, with the per-list ranks
// that produced it.
type FusedResult struct {
	Hit

	VecRank     int // Position in vector list (1-indexed, 0 if absent)
	KeywordRank int // Position in keyword list (1-indexed, 0 if absent)
}

// InBothLists reports whether the record was returned by both searches.
func (r *FusedResult) InBothLists() bool {
	return r.VecRank > 0 && r.KeywordRank > 0
}

// RRFFusion combines vector and keyword results using Reciprocal Rank Fusion.
//
// Algorithm: RRF_score(d) = Σ 1 / (k + rank_i)
//
// Where:
//   - k = smoothing constant (default: 60)
//   - rank_i = position in ranked list i (1-indexed)
//   - a record absent from a list contributes 0 from that list
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a new RRF fusion instance with default k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK creates a new RRF fusion with custom k value.
// If k <= 0, defaults to 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines two best-first lists. Scores are raw RRF sums, not normalized.
//
// Results are sorted by: Score (desc) → InBothLists (true first) → ID (asc),
// so output is reproducible for identical inputs including ties.
func (f *RRFFusion) Fuse(vec, keyword []Hit) []*FusedResult {
	if len(vec) == 0 && len(keyword) == 0 {
		return []*FusedResult{}
	}

	scores := make(map[string]*FusedResult, len(vec)+len(keyword))

	for rank, h := range vec {
		r := f.getOrCreate(scores, h)
		if r.VecRank == 0 {
			r.VecRank = rank + 1
			r.Score += 1 / float64(f.K+rank+1)
		}
	}

	for rank, h := range keyword {
		r := f.getOrCreate(scores, h)
		if r.KeywordRank == 0 {
			r.KeywordRank = rank + 1
			r.Score += 1 / float64(f.K+rank+1)
		}
	}

	results := make([]*FusedResult, 0, len(scores))
	for _, r := range scores {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return compareFused(results[i], results[j])
	})
	return results
}

// getOrCreate returns the existing result for a record or creates one.
func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, h Hit) *FusedResult {
	if r, ok := m[h.ID()]; ok {
		return r
	}
	r := &FusedResult{Hit: Hit{Record: h.Record, RankSource: RankFused}}
	m[h.ID()] = r
	return r
}

// compareFused returns true if a should rank before b.
//
// Priority:
//  1. Higher RRF score
//  2. In both lists (true before false)
//  3. Lexicographically smaller record ID
func compareFused(a, b *FusedResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.InBothLists() != b.InBothLists() {
		return a.InBothLists()
	}
	return a.ID() < b.ID()
}
