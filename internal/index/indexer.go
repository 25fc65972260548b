// Package index builds and incrementally maintains the searchable chunk store
// from a document corpus.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/corpus"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/manifest"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// DefaultBatchSize is the number of chunks embedded per provider call.
const DefaultBatchSize = 64

// Mode selects how a run reconciles the store with the corpus.
type Mode string

const (
	// ModeIncremental applies only the manifest diff.
	ModeIncremental Mode = "incremental"
	// ModeFull rebuilds the collection from scratch.
	ModeFull Mode = "full"
)

// ParseMode parses a mode name. Empty means incremental.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeIncremental:
		return ModeIncremental, nil
	case ModeFull:
		return ModeFull, nil
	default:
		return "", amanerrors.ValidationError(fmt.Sprintf("unknown index mode %q", s), nil).
			WithSuggestion("use full or incremental")
	}
}

// DocumentSource supplies the current corpus.
type DocumentSource interface {
	Load(ctx context.Context) ([]corpus.Document, error)
}

// Stage names reported through ProgressFunc.
const (
	StageLoad   = "load"
	StageChunk  = "chunk"
	StageDelete = "delete"
	StageEmbed  = "embed"
	StageStore  = "store"
	StageIndex  = "index"
)

// Progress is reported after each stage step.
type Progress struct {
	Stage string
	Done  int
	Total int
}

// ProgressFunc receives progress updates. It is called synchronously.
type ProgressFunc func(Progress)

// Config configures an Indexer.
type Config struct {
	// DataDir holds the lock file. Empty disables locking.
	DataDir string

	// BatchSize is the embedding batch size (default: DefaultBatchSize).
	BatchSize int
}

// Dependencies are the collaborators an Indexer drives.
type Dependencies struct {
	Documents DocumentSource
	Chunker   chunk.Chunker
	Embedder  embed.Service
	Store     *search.HybridStore
	Manifest  *manifest.Manifest
}

// Result summarizes one run.
type Result struct {
	Mode        Mode          `json:"mode"`
	ChunksCount int           `json:"chunksCount"`
	Added       int           `json:"added"`
	Deleted     int           `json:"deleted"`
	Duration    time.Duration `json:"duration"`

	// DeleteWarning is set when stale records could not be removed.
	// The run still succeeds; a full run clears the drift.
	DeleteWarning string `json:"deleteWarning,omitempty"`
}

// Indexer reconciles the store with the corpus.
type Indexer struct {
	cfg      Config
	docs     DocumentSource
	chunker  chunk.Chunker
	embedder embed.Service
	store    *search.HybridStore
	manifest *manifest.Manifest
	progress ProgressFunc
}

// New creates an Indexer.
func New(cfg Config, deps Dependencies) (*Indexer, error) {
	if deps.Documents == nil {
		return nil, fmt.Errorf("document source is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Manifest == nil {
		return nil, fmt.Errorf("manifest is required")
	}
	chunker := deps.Chunker
	if chunker == nil {
		chunker = chunk.NewRecursiveChunker(chunk.Options{})
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	return &Indexer{
		cfg:      cfg,
		docs:     deps.Documents,
		chunker:  chunker,
		embedder: deps.Embedder,
		store:    deps.Store,
		manifest: deps.Manifest,
	}, nil
}

// OnProgress registers a progress callback.
func (ix *Indexer) OnProgress(fn ProgressFunc) {
	ix.progress = fn
}

func (ix *Indexer) report(stage string, done, total int) {
	if ix.progress != nil {
		ix.progress(Progress{Stage: stage, Done: done, Total: total})
	}
}

type stageTiming struct {
	chunk time.Duration
	embed time.Duration
	store time.Duration
	index time.Duration
}

// Run reconciles the store with the current corpus. The manifest is saved
// only after every mutation has been applied, so an interrupted run is
// repaired by running the same mode again.
func (ix *Indexer) Run(ctx context.Context, mode Mode) (*Result, error) {
	if mode == "" {
		mode = ModeIncremental
	}
	if mode != ModeFull && mode != ModeIncremental {
		return nil, amanerrors.ValidationError(fmt.Sprintf("unknown index mode %q", mode), nil)
	}

	if ix.cfg.DataDir != "" {
		lock := NewFileLock(ix.cfg.DataDir)
		acquired, err := lock.TryLockWithin(ctx, lockWait)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			return nil, amanerrors.New(amanerrors.ErrCodeFileLocked, "failed to acquire index lock", err)
		}
		if !acquired {
			return nil, amanerrors.New(amanerrors.ErrCodeFileLocked, "another index run holds "+lock.Path(), nil).
				WithSuggestion("wait for the other run to finish")
		}
		defer func() { _ = lock.Unlock() }()
	}

	start := time.Now()
	var timing stageTiming

	slog.Info("index_started", slog.String("mode", string(mode)))

	chunkStart := time.Now()
	records, ids, err := ix.chunkCorpus(ctx)
	if err != nil {
		return nil, err
	}
	timing.chunk = time.Since(chunkStart)

	result := &Result{Mode: mode, ChunksCount: len(records)}

	switch mode {
	case ModeFull:
		err = ix.runFull(ctx, records, result, &timing)
	default:
		err = ix.runIncremental(ctx, records, ids, result, &timing)
	}
	if err != nil {
		return nil, err
	}

	if err := ix.manifest.Save(ids); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	slog.Info("index_complete",
		slog.String("mode", string(mode)),
		slog.Int("chunks", result.ChunksCount),
		slog.Int("added", result.Added),
		slog.Int("deleted", result.Deleted),
		slog.Bool("delete_warning", result.DeleteWarning != ""),
		slog.Int64("duration_total_ms", result.Duration.Milliseconds()),
		slog.Int64("duration_chunk_ms", timing.chunk.Milliseconds()),
		slog.Int64("duration_embed_ms", timing.embed.Milliseconds()),
		slog.Int64("duration_store_ms", timing.store.Milliseconds()),
		slog.Int64("duration_index_ms", timing.index.Milliseconds()),
		slog.String("embedder_model", ix.embedder.ModelName()))

	return result, nil
}

func (ix *Indexer) runFull(ctx context.Context, records []*store.Record, result *Result, timing *stageTiming) error {
	embedStart := time.Now()
	if err := ix.embedRecords(ctx, records); err != nil {
		return err
	}
	timing.embed = time.Since(embedStart)

	storeStart := time.Now()
	ix.report(StageStore, 0, len(records))
	if err := ix.store.Overwrite(ctx, records); err != nil {
		return fmt.Errorf("overwrite collection: %w", err)
	}
	ix.report(StageStore, len(records), len(records))
	timing.store = time.Since(storeStart)
	result.Added = len(records)

	return ix.ensureIndexes(ctx, len(records), timing)
}

func (ix *Indexer) runIncremental(ctx context.Context, records []*store.Record, cur manifest.IDSet, result *Result, timing *stageTiming) error {
	prev, err := ix.manifest.Load()
	if err != nil {
		return err
	}
	delta := manifest.Diff(prev, cur)

	slog.Debug("index_diff",
		slog.Int("previous", len(prev)),
		slog.Int("current", len(cur)),
		slog.Int("to_add", len(delta.ToAdd)),
		slog.Int("to_delete", len(delta.ToDelete)))

	// ToAdd ids are purged too: an interrupted run can leave rows the
	// manifest never recorded, and Add rejects duplicates.
	purge := make([]string, 0, len(delta.ToDelete)+len(delta.ToAdd))
	purge = append(append(purge, delta.ToDelete...), delta.ToAdd...)
	if len(purge) > 0 {
		if len(delta.ToDelete) > 0 {
			ix.report(StageDelete, 0, len(delta.ToDelete))
		}
		err := ix.store.DeleteByIDs(ctx, purge)
		switch {
		case err == nil, amanerrors.GetCode(err) == amanerrors.ErrCodeNotInitialized:
			result.Deleted = len(delta.ToDelete)
			if len(delta.ToDelete) > 0 {
				ix.report(StageDelete, len(delta.ToDelete), len(delta.ToDelete))
			}
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			slog.Warn("failed to delete stale chunks, continuing with additions",
				slog.Int("stale", len(delta.ToDelete)),
				slog.Int("pending", len(delta.ToAdd)),
				slog.String("error", err.Error()))
			if len(delta.ToDelete) > 0 {
				result.DeleteWarning = fmt.Sprintf("failed to delete %d stale chunks: %v; run a full reindex to remove them",
					len(delta.ToDelete), err)
			}
		}
	}

	toAdd := NewRecordFilter(delta.ToAdd).Apply(records)

	embedStart := time.Now()
	if err := ix.embedRecords(ctx, toAdd); err != nil {
		return err
	}
	timing.embed = time.Since(embedStart)

	storeStart := time.Now()
	if len(toAdd) > 0 {
		ix.report(StageStore, 0, len(toAdd))
		if err := ix.store.Add(ctx, toAdd); err != nil {
			return fmt.Errorf("add chunks: %w", err)
		}
		ix.report(StageStore, len(toAdd), len(toAdd))
	}
	timing.store = time.Since(storeStart)
	result.Added = len(toAdd)

	return ix.ensureIndexes(ctx, len(cur), timing)
}

// ensureIndexes skips an empty corpus, whose collection may not exist.
func (ix *Indexer) ensureIndexes(ctx context.Context, total int, timing *stageTiming) error {
	if total == 0 {
		return nil
	}
	indexStart := time.Now()
	ix.report(StageIndex, 0, 1)
	if err := ix.store.EnsureIndexes(ctx); err != nil {
		if amanerrors.GetCode(err) == amanerrors.ErrCodeNotInitialized {
			return amanerrors.New(amanerrors.ErrCodeNotInitialized, "store is missing chunks listed in the manifest", err).
				WithSuggestion("run a full reindex")
		}
		return fmt.Errorf("build indexes: %w", err)
	}
	ix.report(StageIndex, 1, 1)
	timing.index = time.Since(indexStart)
	return nil
}

func (ix *Indexer) chunkCorpus(ctx context.Context) ([]*store.Record, manifest.IDSet, error) {
	ix.report(StageLoad, 0, 0)
	docs, err := ix.docs.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	ix.report(StageLoad, len(docs), len(docs))

	var chunks []chunk.Chunk
	for i, d := range docs {
		chunks = append(chunks, chunk.ChunkDocument(ix.chunker, d.Source, d.Text)...)
		ix.report(StageChunk, i+1, len(docs))
	}

	records, ids := ComputeChunkMeta(chunks)
	slog.Debug("corpus_chunked",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(chunks)),
		slog.Int("unique", len(records)))
	return records, ids, nil
}

// embedRecords fills record vectors in batches. Batch boundaries do not
// affect the resulting vectors.
func (ix *Indexer) embedRecords(ctx context.Context, records []*store.Record) error {
	total := len(records)
	if total == 0 {
		return nil
	}
	ix.report(StageEmbed, 0, total)

	for start := 0; start < total; start += ix.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+ix.cfg.BatchSize, total)
		batch := records[start:end]

		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.Content
		}

		vecs, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			if amanerrors.IsQuota(err) {
				return amanerrors.Unavailable("embedding", err)
			}
			return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return amanerrors.InternalError(
				fmt.Sprintf("embedder returned %d vectors for %d texts", len(vecs), len(batch)), nil)
		}
		for i, r := range batch {
			r.Vector = vecs[i]
		}

		ix.report(StageEmbed, end, total)
		slog.Debug("embed_batch_complete", slog.Int("done", end), slog.Int("total", total))
	}
	return nil
}

// RecordFilter keeps records whose IDs are in a set.
type RecordFilter struct {
	ids manifest.IDSet
}

// NewRecordFilter builds a filter over ids.
func NewRecordFilter(ids []string) RecordFilter {
	return RecordFilter{ids: manifest.NewIDSet(ids...)}
}

// Apply returns matching records in their original order.
func (f RecordFilter) Apply(records []*store.Record) []*store.Record {
	out := make([]*store.Record, 0, len(f.ids))
	for _, r := range records {
		if f.ids.Has(r.ID) {
			out = append(out, r)
		}
	}
	return out
}
