package search

import (
	"sort"
)

// VariantResult holds the fused hits of one query variant.
type VariantResult struct {
	Variant int
	Hits    []Hit
}

// MaxMergedResult is a record merged across variants.
type MaxMergedResult struct {
	Hit

	// VariantHits is the number of variants that returned this record.
	VariantHits int
}

// MergeMax combines per-variant results by record ID, keeping the highest
// score seen for each record. Scores are never summed across variants.
//
// Results are sorted by score (desc) then record ID (asc).
func MergeMax(variants []VariantResult) []*MaxMergedResult {
	merged := make(map[string]*MaxMergedResult)

	for _, v := range variants {
		for _, h := range v.Hits {
			m, ok := merged[h.ID()]
			if !ok {
				merged[h.ID()] = &MaxMergedResult{Hit: h, VariantHits: 1}
				continue
			}
			m.VariantHits++
			if h.Score > m.Score {
				m.Hit = h
			}
		}
	}

	results := make([]*MaxMergedResult, 0, len(merged))
	for _, m := range merged {
		results = append(results, m)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID() < results[j].ID()
	})
	return results
}
