package search

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/store"
)

func hit(id string, score float64, src RankSource) Hit {
	return Hit{Record: &store.Record{ID: id, Content: "content " + id}, Score: score, RankSource: src}
}

func ranked(src RankSource, ids ...string) []Hit {
	hits := make([]Hit, len(ids))
	for i, id := range ids {
		hits[i] = hit(id, float64(len(ids)-i), src)
	}
	return hits
}

// ============================================================================
// RRF scoring
// ============================================================================

func TestRRFFusion_Fuse_ScoresAreReciprocalRankSums(t *testing.T) {
	f := NewRRFFusion()

	results := f.Fuse(
		ranked(RankVector, "a", "b"),
		ranked(RankKeyword, "b", "c"),
	)

	require.Len(t, results, 3)
	byID := make(map[string]*FusedResult)
	for _, r := range results {
		byID[r.ID()] = r
	}

	assert.InDelta(t, 1.0/61, byID["a"].Score, 1e-12)
	assert.InDelta(t, 1.0/62+1.0/61, byID["b"].Score, 1e-12)
	assert.InDelta(t, 1.0/62, byID["c"].Score, 1e-12)

	assert.Equal(t, 2, byID["b"].VecRank)
	assert.Equal(t, 1, byID["b"].KeywordRank)
	assert.Equal(t, 0, byID["c"].VecRank)
	assert.Equal(t, RankFused, byID["b"].RankSource)
}

func TestRRFFusion_Fuse_EmptyInputs(t *testing.T) {
	f := NewRRFFusion()

	assert.Empty(t, f.Fuse(nil, nil))

	only := f.Fuse(ranked(RankVector, "a", "b"), nil)
	require.Len(t, only, 2)
	assert.Equal(t, "a", only[0].ID())
}

func TestRRFFusion_Fuse_DuplicateWithinListCountsOnce(t *testing.T) {
	f := NewRRFFusion()

	results := f.Fuse(ranked(RankVector, "a", "a"), nil)

	require.Len(t, results, 1)
	assert.InDelta(t, 1.0/61, results[0].Score, 1e-12)
}

func TestNewRRFFusionWithK_NonPositiveFallsBackToDefault(t *testing.T) {
	assert.Equal(t, DefaultRRFConstant, NewRRFFusionWithK(0).K)
	assert.Equal(t, DefaultRRFConstant, NewRRFFusionWithK(-5).K)
	assert.Equal(t, 10, NewRRFFusionWithK(10).K)
}

// ============================================================================
// Properties
// ============================================================================

func TestRRFFusion_Determinism_WithTies(t *testing.T) {
	// "x" and "y" each appear only at rank 1 of one list: identical scores.
	vec := ranked(RankVector, "y", "m", "n")
	kw := ranked(RankKeyword, "x", "n", "m")

	first := NewRRFFusion().Fuse(vec, kw)
	for i := 0; i < 50; i++ {
		again := NewRRFFusion().Fuse(vec, kw)
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].ID(), again[j].ID())
			assert.Equal(t, first[j].Score, again[j].Score)
		}
	}

	// Tie between x and y resolves by ID.
	var order []string
	for _, r := range first {
		order = append(order, r.ID())
	}
	assert.Less(t, indexOf(order, "x"), indexOf(order, "y"))
}

func TestRRFFusion_Fairness_BothListsBeatsOneList(t *testing.T) {
	for _, k := range []int{1, 10, 60, 1000} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			results := NewRRFFusionWithK(k).Fuse(
				ranked(RankVector, "both", "vec-only"),
				ranked(RankKeyword, "kw-only", "both"),
			)
			// "both" is rank 1 in vector, rank 2 in keyword: still beats any single rank 1.
			assert.Equal(t, "both", results[0].ID())

			top := NewRRFFusionWithK(k).Fuse(
				ranked(RankVector, "both", "solo"),
				ranked(RankKeyword, "both"),
			)
			assert.Greater(t, top[0].Score, top[1].Score)
		})
	}
}

func TestCompareFused_TieBreakPrefersBothLists(t *testing.T) {
	a := &FusedResult{Hit: hit("a", 0.5, RankFused), VecRank: 3}
	b := &FusedResult{Hit: hit("b", 0.5, RankFused), VecRank: 4, KeywordRank: 4}

	assert.True(t, compareFused(b, a))
	assert.False(t, compareFused(a, b))
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
