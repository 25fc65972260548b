package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// BleveBM25Index implements KeywordIndex with bleve's BM25 scoring and the
// English analyzer (stemming plus stop words).
type BleveBM25Index struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string // empty means memory only
}

var _ KeywordIndex = (*BleveBM25Index)(nil)

// bleveDocument is the document structure for bleve indexing.
type bleveDocument struct {
	Content string `json:"content"`
}

// NewBleveBM25Index opens an existing index at path if there is one.
// An empty path keeps the index in memory.
func NewBleveBM25Index(path string) (*BleveBM25Index, error) {
	b := &BleveBM25Index{path: path}
	if path == "" {
		return b, nil
	}

	idx, err := bleve.Open(path)
	switch {
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		return b, nil
	case err != nil:
		slog.Warn("bleve_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("keyword index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, err)
		}
		return b, nil
	}

	b.index = idx
	return b, nil
}

func createIndexMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName
	return indexMapping
}

// Create builds an empty index unless one is already open.
func (b *BleveBM25Index) Create(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index != nil {
		return nil
	}

	var (
		idx bleve.Index
		err error
	)
	if b.path == "" {
		idx, err = bleve.NewMemOnly(createIndexMapping())
	} else {
		idx, err = bleve.New(b.path, createIndexMapping())
	}
	if err != nil {
		return fmt.Errorf("failed to create keyword index: %w", err)
	}
	b.index = idx
	return nil
}

func (b *BleveBM25Index) Drop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index != nil {
		_ = b.index.Close()
		b.index = nil
	}
	if b.path != "" {
		return os.RemoveAll(b.path)
	}
	return nil
}

func (b *BleveBM25Index) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index == nil {
		return fmt.Errorf("keyword index not created")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument{Content: doc.Content}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search runs a match query (OR of analyzed terms) over the content field.
func (b *BleveBM25Index) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.index == nil {
		return nil, fmt.Errorf("keyword index not created")
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []*KeywordResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit
	req.SortBy([]string{"-_score", "_id"})

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &KeywordResult{DocID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

func (b *BleveBM25Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index == nil {
		return fmt.Errorf("keyword index not created")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Optimize is a no-op; scorch merges segments in the background.
func (b *BleveBM25Index) Optimize(ctx context.Context) error {
	return nil
}

func (b *BleveBM25Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index == nil {
		return nil
	}
	err := b.index.Close()
	b.index = nil
	return err
}
