package store

import (
	"context"
	"fmt"
)

// Document is the keyword-index view of a record.
type Document struct {
	ID      string
	Content string
}

// KeywordResult is a keyword hit, higher Score is better.
type KeywordResult struct {
	DocID string
	Score float64
}

// KeywordIndex is a BM25 index over record text for one collection.
type KeywordIndex interface {
	// Create prepares an empty index. Idempotent.
	Create(ctx context.Context) error

	// Drop discards the index and its data.
	Drop(ctx context.Context) error

	Index(ctx context.Context, docs []*Document) error
	Delete(ctx context.Context, ids []string) error
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)

	// Optimize compacts the index after bulk changes.
	Optimize(ctx context.Context) error

	Close() error
}

// KeywordBackend names a KeywordIndex implementation.
type KeywordBackend string

const (
	// KeywordBackendSQLite uses an FTS5 table next to the records (default).
	KeywordBackendSQLite KeywordBackend = "sqlite"

	// KeywordBackendBleve uses a bleve index directory per collection.
	KeywordBackendBleve KeywordBackend = "bleve"
)

// ParseKeywordBackend validates a configured keyword backend name.
func ParseKeywordBackend(name string) (KeywordBackend, error) {
	switch KeywordBackend(name) {
	case "", KeywordBackendSQLite:
		return KeywordBackendSQLite, nil
	case KeywordBackendBleve:
		return KeywordBackendBleve, nil
	default:
		return "", fmt.Errorf("unknown keyword backend %q (want sqlite or bleve)", name)
	}
}
