package mcp

import (
	"fmt"
	"strings"
)

// FormatAnswer renders an ask result as markdown.
func FormatAnswer(question string, out AskOutput) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(out.Answer))
	sb.WriteString("\n")

	if len(out.Sources) > 0 {
		sb.WriteString("\n### Sources\n\n")
		for _, src := range out.Sources {
			sb.WriteString(fmt.Sprintf("- `%s`\n", src))
		}
	}

	if out.Debug != nil {
		d := out.Debug
		sb.WriteString(fmt.Sprintf("\n### Debug (request %s)\n\n", d.RequestID))
		sb.WriteString(fmt.Sprintf("- Question: %q\n", question))
		sb.WriteString(fmt.Sprintf("- Variants: %d", len(d.Variants)))
		if d.AugmentationSkipped {
			sb.WriteString(" (augmentation skipped)")
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("- Candidates: %d, after filters: %d, selected: %d\n",
			d.Candidates, d.AfterFilters, len(d.Selected)))
		for _, h := range d.Selected {
			sb.WriteString(fmt.Sprintf("  - `%s` (score: %.4f)\n", h.CitationID, h.Score))
		}
		sb.WriteString(fmt.Sprintf("- Embedding cache hits: %d\n", d.EmbeddingCacheHits))
		if d.AnswerCached {
			sb.WriteString("- Answer served from cache\n")
		}
	}

	return sb.String()
}

// FormatReindex renders a reindex result as markdown.
func FormatReindex(out ReindexOutput) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Reindex complete (%s)\n\n", out.Mode))
	sb.WriteString(fmt.Sprintf("- Chunks: %d\n", out.ChunksCount))
	sb.WriteString(fmt.Sprintf("- Added: %d\n", out.Added))
	sb.WriteString(fmt.Sprintf("- Deleted: %d\n", out.Deleted))
	sb.WriteString(fmt.Sprintf("- Duration: %dms\n", out.DurationMS))
	if out.DeleteWarning != "" {
		sb.WriteString(fmt.Sprintf("\n**Warning:** %s\n", out.DeleteWarning))
	}
	return sb.String()
}

// FormatStatus renders index status as markdown.
func FormatStatus(out StatusOutput) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Index status: %s\n\n", out.Index.Collection))
	switch {
	case out.Index.Locked:
		sb.WriteString("Indexing in progress. Answers may use the previous index.\n\n")
	case !out.Index.Initialized:
		sb.WriteString("The collection has not been built. Call the `reindex` tool with mode `full`.\n\n")
	}
	sb.WriteString(fmt.Sprintf("- Manifest chunks: %d\n", out.Index.ManifestChunks))
	sb.WriteString(fmt.Sprintf("- Stored rows: %d\n", out.Index.StoreRows))
	sb.WriteString(fmt.Sprintf("- Embedder: %s (%d dims)\n", out.Embedder.Model, out.Embedder.Dimensions))
	sb.WriteString(fmt.Sprintf("- Cached embeddings: %d, augmentations: %d, answers: %d\n",
		out.Caches.Embeddings, out.Caches.Augment, out.Caches.Answers))
	return sb.String()
}
