// Package search implements the hybrid retrieval layer: vector and keyword
// search over a storage backend, fused with Reciprocal Rank Fusion (RRF).
package search

import "github.com/Aman-CERP/amanrag/internal/store"

// RankSource records which ranking produced a hit's score.
type RankSource string

const (
	RankVector  RankSource = "vector"
	RankKeyword RankSource = "keyword"
	RankFused   RankSource = "fused"
)

// Hit is a scored record returned by a search call. Hits are never persisted.
type Hit struct {
	Record     *store.Record `json:"record"`
	Score      float64       `json:"score"`
	RankSource RankSource    `json:"rank_source"`
}

// ID returns the hit's record ID.
func (h Hit) ID() string {
	return h.Record.ID
}
