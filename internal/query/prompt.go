package query

import (
	"strings"

	"github.com/Aman-CERP/amanrag/internal/llm"
	"github.com/Aman-CERP/amanrag/internal/search"
)

// ContextDelimiter separates passages in the answer context.
const ContextDelimiter = "\n\n---\n\n"

const (
	rewriteInstructions = "You rewrite search questions. Produce alternative phrasings of the user's " +
		"question that could match relevant passages in a document collection. " +
		"Return one query per line with no numbering and no commentary."

	hydeInstructions = "Write a short passage, two or three sentences, that would plausibly answer " +
		"the question as if taken from the documentation. It is used only to improve retrieval."

	answerInstructions = "Answer the question using only the passages in CONTEXT. " +
		"If the context does not contain the answer, say that you don't know. " +
		"Cite passages by their [source#chunk] label. Do not use outside knowledge."
)

// BuildContext renders passages as labeled blocks in selection order.
func BuildContext(hits []search.Hit) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = "[" + h.Record.CitationID + "]\n" + h.Record.Content
	}
	return strings.Join(blocks, ContextDelimiter)
}

// answerInput is the generation input for a question over a context.
func answerInput(question, context string) string {
	return llm.ContextMarker + context + llm.QuestionMarker + question
}

func rewriteInput(question string) string {
	return "QUESTION:\n" + question
}
