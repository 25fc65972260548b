package store

import (
	"regexp"
	"strings"
)

// wordRegex matches runs of letters and digits in any script.
var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// DefaultStopWords are dropped from keyword queries. FTS5 and bleve apply
// their own analysis at index time; this list only keeps questions like
// "what is the refund policy" from matching every document on "what" and "is".
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "can", "do", "does",
	"for", "from", "how", "i", "if", "in", "is", "it", "its", "of", "on",
	"or", "that", "the", "this", "to", "was", "we", "what", "when", "where",
	"which", "who", "why", "will", "with", "you", "your",
}

// Tokenize lowercases text and splits it into words of two or more characters.
func Tokenize(text string) []string {
	words := wordRegex.FindAllString(strings.ToLower(text), -1)
	tokens := words[:0]
	for _, w := range words {
		if len([]rune(w)) >= 2 {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// queryTerms tokenizes a keyword query, drops stop words and duplicates.
// If every token is a stop word the unfiltered tokens are returned instead.
func queryTerms(text string, stopWords map[string]struct{}) []string {
	tokens := Tokenize(text)
	filtered := FilterStopWords(tokens, stopWords)
	if len(filtered) == 0 {
		filtered = tokens
	}
	seen := make(map[string]struct{}, len(filtered))
	out := filtered[:0]
	for _, t := range filtered {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
