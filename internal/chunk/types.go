package chunk

// Chunk size defaults, in runes.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 150
)

// Chunk is a contiguous slice of one source document.
type Chunk struct {
	Source     string // Slash-separated path relative to the corpus root
	ChunkIndex int    // 0-based, contiguous within Source
	Content    string
}

// Options configures chunk sizing.
type Options struct {
	Size    int // Maximum runes per chunk (default: DefaultChunkSize)
	Overlap int // Runes carried from the end of one chunk into the next (default: DefaultOverlap)
}

// Chunker splits document text into retrievable pieces.
// Implementations must be deterministic and never return empty chunks.
type Chunker interface {
	Chunk(text string) []string
}
