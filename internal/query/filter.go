package query

import (
	"strings"

	"github.com/Aman-CERP/amanrag/internal/search"
)

// ApplyFilters keeps hits that pass the source filters and then the
// mustInclude check, preserving order.
func ApplyFilters(hits []search.Hit, opts Options) []search.Hit {
	allowed := make(map[string]bool, len(opts.Filters.Sources))
	for _, s := range opts.Filters.Sources {
		allowed[s] = true
	}
	keywords := normalizeKeywords(opts.MustInclude)
	mode := opts.MustIncludeMode
	if mode == "" {
		mode = MustIncludeAll
	}

	out := make([]search.Hit, 0, len(hits))
	for _, h := range hits {
		src := h.Record.Source
		if len(allowed) > 0 && !allowed[src] {
			continue
		}
		if opts.Filters.SourcePrefix != "" && !strings.HasPrefix(src, opts.Filters.SourcePrefix) {
			continue
		}
		if !MatchesMustInclude(h.Record.Content, keywords, mode) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// MatchesMustInclude reports whether text contains all (or any) of the
// lower-cased keywords. An empty keyword list always matches.
func MatchesMustInclude(text string, keywords []string, mode MustIncludeMode) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	if mode == MustIncludeAny {
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				return true
			}
		}
		return false
	}
	for _, k := range keywords {
		if !strings.Contains(lower, k) {
			return false
		}
	}
	return true
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	return out
}
