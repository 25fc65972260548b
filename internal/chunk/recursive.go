package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order, coarsest first. After the last one
// the splitter falls back to single characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// frontmatterPattern matches a leading YAML frontmatter block: ---\n...\n---
var frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)

// RecursiveChunker splits text on the coarsest separator that yields pieces
// small enough, recursing into finer separators for oversized pieces, then
// merges pieces back up to Size with Overlap runes of carry-over.
type RecursiveChunker struct {
	options    Options
	separators []string
}

// NewRecursiveChunker creates a chunker. Zero Options take the defaults; an
// overlap not smaller than the size is clamped to size/4.
func NewRecursiveChunker(opts Options) *RecursiveChunker {
	if opts == (Options{}) {
		opts = Options{Size: DefaultChunkSize, Overlap: DefaultOverlap}
	}
	if opts.Size <= 0 {
		opts.Size = DefaultChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.Overlap >= opts.Size {
		opts.Overlap = opts.Size / 4
	}
	return &RecursiveChunker{options: opts, separators: DefaultSeparators}
}

// Options returns the effective options.
func (c *RecursiveChunker) Options() Options {
	return c.options
}

// Chunk splits text. Identical input always yields identical output, and no
// returned chunk is empty after trimming.
func (c *RecursiveChunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	var out []string
	for _, piece := range c.split(text, c.separators) {
		if trimmed := strings.TrimSpace(piece); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= c.options.Size {
		return []string{text}
	}

	sep, rest := "", []string(nil)
	for i, s := range separators {
		if strings.Contains(text, s) {
			sep, rest = s, separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = splitRunes(text)
	} else {
		pieces = splitKeep(text, sep)
	}

	var chunks []string
	var pending []string
	for _, p := range pieces {
		if utf8.RuneCountInString(p) <= c.options.Size {
			pending = append(pending, p)
			continue
		}
		if len(pending) > 0 {
			chunks = append(chunks, c.merge(pending)...)
			pending = nil
		}
		chunks = append(chunks, c.split(p, rest)...)
	}
	if len(pending) > 0 {
		chunks = append(chunks, c.merge(pending)...)
	}
	return chunks
}

// merge packs pieces into chunks of at most Size runes. Each new chunk starts
// with the trailing pieces of the previous one, up to Overlap runes.
func (c *RecursiveChunker) merge(pieces []string) []string {
	var chunks []string
	var window []string
	total := 0

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > c.options.Size && len(window) > 0 {
			chunks = append(chunks, strings.Join(window, ""))
			for len(window) > 0 && (total > c.options.Overlap || total+n > c.options.Size) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n
	}
	if len(window) > 0 {
		chunks = append(chunks, strings.Join(window, ""))
	}
	return chunks
}

// splitKeep splits on sep, leaving sep attached to the end of each piece so
// joining the pieces reproduces text exactly.
func splitKeep(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

func splitRunes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

// StripFrontmatter removes a leading YAML frontmatter block from markdown.
func StripFrontmatter(text string) string {
	if loc := frontmatterPattern.FindStringIndex(text); loc != nil {
		return text[loc[1]:]
	}
	return text
}

// ChunkDocument splits one document into indexed chunks for source.
func ChunkDocument(c Chunker, source, text string) []Chunk {
	pieces := c.Chunk(text)
	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{Source: source, ChunkIndex: i, Content: p}
	}
	return chunks
}
