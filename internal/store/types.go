package store

import (
	"context"
	"errors"
	"fmt"
)

// Record is one indexed chunk: identity, citation label, text and its unit
// embedding. Records are never mutated; changed content gets a new ID.
type Record struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"content_hash"`
	CitationID  string    `json:"citation_id"`
	Source      string    `json:"source"`
	ChunkIndex  int       `json:"chunk_index"`
	Content     string    `json:"content"`
	Vector      []float32 `json:"-"`
}

// Match is a raw backend search result.
type Match struct {
	Record *Record

	// Distance is the cosine distance (vector search only).
	Distance float64

	// Score is the keyword relevance, higher is better (keyword search only).
	Score float64
}

// Backend is a single collection in a vector+keyword capable database.
// The read path (VectorSearch, KeywordSearch, Count) must be safe for
// concurrent use.
type Backend interface {
	// Collection returns the collection name this backend is bound to.
	Collection() string

	// Exists reports whether the collection has been created.
	Exists(ctx context.Context) (bool, error)

	// Create creates an empty collection for vectors of the given size.
	Create(ctx context.Context, dims int) error

	// Drop removes the collection and all its indexes. Dropping a missing
	// collection is a no-op.
	Drop(ctx context.Context) error

	// Insert appends records. An ID already present fails with ErrDuplicateID.
	Insert(ctx context.Context, records []*Record) error

	// Delete removes records by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// VectorSearch returns up to k records nearest to vec by cosine distance.
	VectorSearch(ctx context.Context, vec []float32, k int) ([]Match, error)

	// KeywordSearch returns up to k records ranked by BM25 relevance.
	KeywordSearch(ctx context.Context, text string, k int) ([]Match, error)

	// BuildIndexes (re)builds the ANN and keyword indexes. It returns false
	// without error when the collection is below the indexing threshold.
	BuildIndexes(ctx context.Context) (bool, error)

	// Count returns the number of records in the collection.
	Count(ctx context.Context) (int, error)

	Close() error
}

// ErrDuplicateID is returned by Insert when a record ID already exists.
var ErrDuplicateID = errors.New("duplicate record id")

// ErrDimensionMismatch indicates a vector of the wrong size.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
