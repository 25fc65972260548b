package index

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/manifest"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// idHashLen is the number of content-hash hex characters kept in an ID.
const idHashLen = 20

// ContentHash returns hex sha256 of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ChunkID derives a record ID from its source and content hash.
func ChunkID(source, contentHash string) string {
	return source + ":" + contentHash[:idHashLen]
}

// CitationID is the human-readable label used in answer sources.
func CitationID(source string, chunkIndex int) string {
	return fmt.Sprintf("%s#%d", source, chunkIndex)
}

// ComputeChunkMeta turns chunks into records and collects their IDs.
// Chunks with identical source and content collapse to the first occurrence.
// Records carry no vector yet.
func ComputeChunkMeta(chunks []chunk.Chunk) ([]*store.Record, manifest.IDSet) {
	records := make([]*store.Record, 0, len(chunks))
	ids := manifest.NewIDSet()

	for _, c := range chunks {
		hash := ContentHash(c.Content)
		id := ChunkID(c.Source, hash)
		if ids.Has(id) {
			continue
		}
		ids.Add(id)
		records = append(records, &store.Record{
			ID:          id,
			ContentHash: hash,
			CitationID:  CitationID(c.Source, c.ChunkIndex),
			Source:      c.Source,
			ChunkIndex:  c.ChunkIndex,
			Content:     c.Content,
		})
	}
	return records, ids
}
