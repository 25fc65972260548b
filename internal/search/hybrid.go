package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// HybridStore wraps a storage backend with mutation, index lifecycle and
// hybrid (vector + keyword) search. Search methods never mutate the store and
// are safe for concurrent use.
type HybridStore struct {
	backend     store.Backend
	parallelism int
}

// HybridOption configures a HybridStore.
type HybridOption func(*HybridStore)

// WithParallelism bounds how many variant searches HybridSearchMulti runs at once.
func WithParallelism(n int) HybridOption {
	return func(h *HybridStore) {
		if n > 0 {
			h.parallelism = n
		}
	}
}

// NewHybridStore creates a HybridStore over backend.
func NewHybridStore(backend store.Backend, opts ...HybridOption) (*HybridStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend", ErrNilDependency)
	}
	h := &HybridStore{backend: backend, parallelism: 4}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Backend returns the underlying storage backend.
func (h *HybridStore) Backend() store.Backend {
	return h.backend
}

// ============================================================================
// Mutation and index lifecycle
// ============================================================================

// Overwrite drops and recreates the collection with exactly records.
// A crash part-way leaves the collection partially written; recover with
// another full rebuild.
func (h *HybridStore) Overwrite(ctx context.Context, records []*store.Record) error {
	if err := h.backend.Drop(ctx); err != nil {
		return amanerrors.BackendError("drop collection", err)
	}
	dims := dimsOf(records)
	if dims == 0 {
		// Nothing to size the collection by; leave it absent.
		return nil
	}
	if err := h.backend.Create(ctx, dims); err != nil {
		return amanerrors.BackendError("create collection", err)
	}
	return h.insert(ctx, records)
}

// Add appends records, creating the collection on first use.
// Duplicate IDs fail with store.ErrDuplicateID.
func (h *HybridStore) Add(ctx context.Context, records []*store.Record) error {
	if len(records) == 0 {
		return nil
	}
	ok, err := h.backend.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		if err := h.backend.Create(ctx, dimsOf(records)); err != nil {
			return amanerrors.BackendError("create collection", err)
		}
		slog.Debug("collection_created",
			slog.String("collection", h.backend.Collection()),
			slog.Int("dims", dimsOf(records)))
	}
	return h.insert(ctx, records)
}

func (h *HybridStore) insert(ctx context.Context, records []*store.Record) error {
	if err := h.backend.Insert(ctx, records); err != nil {
		if amanerrors.GetCode(err) != "" {
			return err
		}
		return amanerrors.BackendError("insert records", err)
	}
	return nil
}

// DeleteByIDs removes records; unknown IDs are ignored.
func (h *HybridStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if err := h.backend.Delete(ctx, ids); err != nil {
		if amanerrors.GetCode(err) != "" {
			return err
		}
		return amanerrors.BackendError("delete records", err)
	}
	return nil
}

// EnsureIndexes (re)builds the ANN and keyword indexes. Calling it on an
// already indexed collection is a no-op; a collection too small to index is
// skipped without error.
func (h *HybridStore) EnsureIndexes(ctx context.Context) error {
	built, err := h.backend.BuildIndexes(ctx)
	if err != nil {
		return err
	}
	if !built {
		slog.Debug("ensure_indexes_skipped",
			slog.String("collection", h.backend.Collection()),
			slog.String("reason", "collection below index threshold"))
	}
	return nil
}

// Count returns the number of stored records.
func (h *HybridStore) Count(ctx context.Context) (int, error) {
	return h.backend.Count(ctx)
}

func dimsOf(records []*store.Record) int {
	for _, r := range records {
		if len(r.Vector) > 0 {
			return len(r.Vector)
		}
	}
	return 0
}

// ============================================================================
// Search
// ============================================================================

// VectorSearch returns the topK records by cosine similarity, descending.
// Similarity is 1 - cosine distance.
func (h *HybridStore) VectorSearch(ctx context.Context, vec []float32, topK int) ([]Hit, error) {
	matches, err := h.backend.VectorSearch(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(matches))
	for i, m := range matches {
		hits[i] = Hit{Record: m.Record, Score: 1 - m.Distance, RankSource: RankVector}
	}
	return hits, nil
}

// KeywordSearch returns the topK records by BM25 relevance, descending.
func (h *HybridStore) KeywordSearch(ctx context.Context, text string, topK int) ([]Hit, error) {
	matches, err := h.backend.KeywordSearch(ctx, text, topK)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(matches))
	for i, m := range matches {
		hits[i] = Hit{Record: m.Record, Score: m.Score, RankSource: RankKeyword}
	}
	return hits, nil
}

// HybridSearch runs vector and keyword search concurrently with the same
// topK, fuses them with RRF and truncates to topK. rrfK <= 0 means 60.
//
// If one of the two searches fails the other's results are still fused and
// the failure is logged; if both fail the joined error is returned.
func (h *HybridStore) HybridSearch(ctx context.Context, vec []float32, text string, topK, rrfK int) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}

	vecHits, kwHits, err := h.parallelSearch(ctx, vec, text, topK)
	if err != nil {
		return nil, err
	}

	fused := NewRRFFusionWithK(rrfK).Fuse(vecHits, kwHits)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	hits := make([]Hit, len(fused))
	for i, r := range fused {
		hits[i] = r.Hit
	}
	return hits, nil
}

func (h *HybridStore) parallelSearch(ctx context.Context, vec []float32, text string, topK int) (vecHits, kwHits []Hit, err error) {
	g, gctx := errgroup.WithContext(ctx)

	var vecErr, kwErr error

	g.Go(func() error {
		vecHits, vecErr = h.VectorSearch(gctx, vec, topK)
		return nil // Don't fail the group
	})

	g.Go(func() error {
		kwHits, kwErr = h.KeywordSearch(gctx, text, topK)
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}

	if vecErr != nil && kwErr != nil {
		return nil, nil, errors.Join(vecErr, kwErr)
	}
	if vecErr != nil {
		slog.Warn("vector search failed, using keyword results only",
			slog.String("error", vecErr.Error()))
	}
	if kwErr != nil {
		slog.Warn("keyword search failed, using vector results only",
			slog.String("error", kwErr.Error()))
	}
	return vecHits, kwHits, nil
}

// HybridSearchMulti runs HybridSearch once per (vector, text) pair at the same
// index, merges the variants by record ID keeping the maximum fused score,
// and truncates to finalTopK.
func (h *HybridStore) HybridSearchMulti(ctx context.Context, vecs [][]float32, texts []string, perQueryTopK, finalTopK, rrfK int) ([]Hit, error) {
	if len(vecs) != len(texts) {
		return nil, amanerrors.ValidationError(
			fmt.Sprintf("got %d query vectors for %d query texts", len(vecs), len(texts)), nil)
	}
	if len(vecs) == 0 || finalTopK <= 0 {
		return []Hit{}, nil
	}

	start := time.Now()
	variants, err := h.parallelVariantSearch(ctx, vecs, texts, perQueryTopK, rrfK)
	if err != nil {
		return nil, err
	}

	merged := MergeMax(variants)
	if len(merged) > finalTopK {
		merged = merged[:finalTopK]
	}

	hits := make([]Hit, len(merged))
	for i, m := range merged {
		hits[i] = m.Hit
	}

	slog.Debug("multi_variant_search_complete",
		slog.Int("variants", len(vecs)),
		slog.Int("results", len(hits)),
		slog.Duration("duration", time.Since(start)))

	return hits, nil
}

// parallelVariantSearch runs one HybridSearch per variant with bounded
// parallelism. Individual failures are tolerated while at least one variant
// succeeds.
func (h *HybridStore) parallelVariantSearch(ctx context.Context, vecs [][]float32, texts []string, topK, rrfK int) ([]VariantResult, error) {
	results := make([]VariantResult, len(vecs))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, h.parallelism)

	var mu sync.Mutex
	var firstErr error
	failures := 0

	for i := range vecs {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			hits, err := h.HybridSearch(gctx, vecs[i], texts[i], topK, rrfK)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				if firstErr == nil {
					firstErr = err
				}
				hits = []Hit{}
			}
			results[i] = VariantResult{Variant: i, Hits: hits}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if failures == len(vecs) {
		return nil, firstErr
	}
	if firstErr != nil {
		slog.Warn("some query variants failed, continuing with partial results",
			slog.Int("failed", failures),
			slog.String("error", firstErr.Error()))
	}
	return results, nil
}
