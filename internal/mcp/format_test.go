package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/amanrag/internal/cache"
	"github.com/Aman-CERP/amanrag/internal/query"
)

func TestFormatAnswer_ListsSources(t *testing.T) {
	// Given: an answer with two sources
	out := AskOutput{
		Answer:  "  Refunds take 14 days.\n",
		Sources: []string{"policy.md#0", "faq.md#3"},
	}

	// When: formatting
	md := FormatAnswer("How long do refunds take?", out)

	// Then: answer text first, then a sources list
	assert.Equal(t, "Refunds take 14 days.\n\n### Sources\n\n- `policy.md#0`\n- `faq.md#3`\n", md)
}

func TestFormatAnswer_NoSources(t *testing.T) {
	md := FormatAnswer("q", AskOutput{Answer: "I don't know."})

	assert.Equal(t, "I don't know.\n", md)
}

func TestFormatAnswer_Debug(t *testing.T) {
	out := AskOutput{
		Answer:  "A",
		Sources: []string{"a.md#0"},
		Debug: &query.DebugInfo{
			RequestID:           "req-1",
			Variants:            []string{"q", "q2"},
			AugmentationSkipped: true,
			Candidates:          12,
			AfterFilters:        5,
			Selected:            []query.SelectedHit{{CitationID: "a.md#0", Score: 0.5}},
			AnswerCached:        true,
		},
	}

	md := FormatAnswer("q", out)

	assert.Contains(t, md, "### Debug (request req-1)")
	assert.Contains(t, md, "Variants: 2 (augmentation skipped)")
	assert.Contains(t, md, "Candidates: 12, after filters: 5, selected: 1")
	assert.Contains(t, md, "`a.md#0` (score: 0.5000)")
	assert.Contains(t, md, "Answer served from cache")
}

func TestFormatReindex(t *testing.T) {
	md := FormatReindex(ReindexOutput{Mode: "incremental", ChunksCount: 9, Added: 2, Deleted: 1, DurationMS: 40})

	assert.Contains(t, md, "## Reindex complete (incremental)")
	assert.Contains(t, md, "- Added: 2")
	assert.Contains(t, md, "- Deleted: 1")
	assert.NotContains(t, md, "Warning")

	md = FormatReindex(ReindexOutput{Mode: "incremental", DeleteWarning: "delete failed"})
	assert.Contains(t, md, "**Warning:** delete failed")
}

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		name  string
		index IndexInfo
		want  string
	}{
		{"ready", IndexInfo{Collection: "docs", Initialized: true, StoreRows: 3}, "- Stored rows: 3"},
		{"not built", IndexInfo{Collection: "docs"}, "has not been built"},
		{"locked", IndexInfo{Collection: "docs", Initialized: true, Locked: true}, "Indexing in progress"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := FormatStatus(StatusOutput{
				Index:    tt.index,
				Caches:   cache.Stats{Embeddings: 7},
				Embedder: EmbeddingInfo{Model: "static", Dimensions: 256},
			})
			assert.Contains(t, md, "## Index status: docs")
			assert.Contains(t, md, tt.want)
			assert.Contains(t, md, "static (256 dims)")
			assert.Contains(t, md, "Cached embeddings: 7")
		})
	}
}
