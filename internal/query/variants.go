package query

import (
	"regexp"
	"strings"
)

// listMarker strips bullets and numbering from generated rewrite lines.
var listMarker = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)]|\(\d+\))\s*`)

// BuildVariants returns the ordered texts to retrieve with: the question,
// then rewrites, then the hypothetical answer. Blank and duplicate entries
// are dropped; the question is always first so the list is never empty.
func BuildVariants(question string, rewrites []string, hyde string) []string {
	question = strings.TrimSpace(question)
	variants := []string{question}
	seen := map[string]bool{strings.ToLower(question): true}

	add := func(s string) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			return
		}
		seen[key] = true
		variants = append(variants, s)
	}
	for _, r := range rewrites {
		add(r)
	}
	add(hyde)
	return variants
}

// ParseRewrites extracts up to limit query rewrites from generated text, one
// per line. Lines repeating the question are dropped.
func ParseRewrites(text, question string, limit int) []string {
	q := strings.ToLower(strings.TrimSpace(question))
	var out []string
	seen := map[string]bool{}
	for _, line := range strings.Split(text, "\n") {
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), `"'`)
		key := strings.ToLower(line)
		if line == "" || key == q || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, line)
		if len(out) == limit {
			break
		}
	}
	return out
}
