package llm

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// Markers delimiting the context and question sections of an answer prompt.
const (
	ContextMarker  = "CONTEXT:\n"
	QuestionMarker = "\n\nQUESTION:\n"
)

// DefaultExtractiveSentences is how many sentences ExtractiveGenerator returns.
const DefaultExtractiveSentences = 2

var (
	sentenceEnd  = regexp.MustCompile(`[.!?]+(\s+|$)`)
	blockHeader  = regexp.MustCompile(`(?m)^\[[^\]\n]+#\d+\]$`)
	wordPattern  = regexp.MustCompile(`[\p{L}\p{N}]+`)
	delimiterRow = regexp.MustCompile(`(?m)^---$`)
)

// questionStopWords are dropped from the question before matching.
var questionStopWords = map[string]bool{
	"the": true, "what": true, "how": true, "why": true, "who": true,
	"which": true, "and": true, "for": true, "are": true, "does": true,
	"with": true, "this": true, "that": true, "when": true, "where": true,
}

// ExtractiveGenerator answers without a model by quoting the context
// sentences that share the most words with the question. Prompts without a
// context section (rewrites, hypothetical answers) get an empty reply, which
// callers treat as "no augmentation".
type ExtractiveGenerator struct {
	sentences int
}

var _ Service = (*ExtractiveGenerator)(nil)

// NewExtractiveGenerator creates an extractive generator.
func NewExtractiveGenerator() *ExtractiveGenerator {
	return &ExtractiveGenerator{sentences: DefaultExtractiveSentences}
}

// Generate implements Service. instructions are ignored.
func (g *ExtractiveGenerator) Generate(ctx context.Context, _ string, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	start := strings.Index(input, ContextMarker)
	if start < 0 {
		return "", nil
	}
	body := input[start+len(ContextMarker):]
	question := ""
	if q := strings.Index(body, QuestionMarker); q >= 0 {
		question = body[q+len(QuestionMarker):]
		body = body[:q]
	}

	body = blockHeader.ReplaceAllString(body, "")
	body = delimiterRow.ReplaceAllString(body, "")

	sentences := splitSentences(body)
	if len(sentences) == 0 {
		return "", nil
	}

	var terms []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(question), -1) {
		if len([]rune(w)) > 2 && !questionStopWords[w] {
			terms = append(terms, w)
		}
	}

	type scored struct {
		idx   int
		score int
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		n := 0
		for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
			if matchesAny(w, terms) {
				n++
			}
		}
		ranked[i] = scored{idx: i, score: n}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	k := min(g.sentences, len(ranked))
	picked := make([]int, 0, k)
	for _, r := range ranked[:k] {
		picked = append(picked, r.idx)
	}
	sort.Ints(picked)

	out := make([]string, len(picked))
	for i, idx := range picked {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

// ModelName returns "extractive".
func (g *ExtractiveGenerator) ModelName() string {
	return string(ProviderExtractive)
}

// matchesAny reports whether w shares a prefix relation with any term, so
// "refunds" matches "refund".
func matchesAny(w string, terms []string) bool {
	if len([]rune(w)) <= 2 {
		return false
	}
	for _, t := range terms {
		if strings.HasPrefix(w, t) || strings.HasPrefix(t, w) {
			return true
		}
	}
	return false
}

func splitSentences(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		last := 0
		for _, loc := range sentenceEnd.FindAllStringIndex(para, -1) {
			if s := strings.TrimSpace(para[last:loc[1]]); s != "" {
				out = append(out, s)
			}
			last = loc[1]
		}
		if s := strings.TrimSpace(para[last:]); s != "" {
			out = append(out, s)
		}
	}
	return out
}
