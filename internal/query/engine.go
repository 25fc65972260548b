package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/amanrag/internal/cache"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/llm"
	"github.com/Aman-CERP/amanrag/internal/search"
)

// Retriever runs multi-variant hybrid search. *search.HybridStore implements it.
type Retriever interface {
	HybridSearchMulti(ctx context.Context, vecs [][]float32, texts []string, perQueryTopK, finalTopK, rrfK int) ([]search.Hit, error)
}

// Dependencies are the engine's collaborators.
type Dependencies struct {
	Retriever Retriever
	Embedder  embed.Service
	Generator llm.Service

	// Caches may be nil for memory-only caching.
	Caches *cache.Caches
}

// Engine answers questions. It is safe for concurrent use.
type Engine struct {
	cfg       Config
	retriever Retriever
	embedder  embed.Service
	generator llm.Service
	caches    *cache.Caches
}

// NewEngine creates an Engine. The engine owns the caches and closes them
// in Close.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	cfg = cfg.withDefaults()
	if cfg.Lambda > 1 {
		return nil, amanerrors.ConfigError(fmt.Sprintf("search.lambda must be in (0,1], got %g", cfg.Lambda), nil)
	}

	caches := deps.Caches
	if caches == nil {
		caches = cache.Open(context.Background(), nil)
	}

	return &Engine{
		cfg:       cfg,
		retriever: deps.Retriever,
		embedder:  deps.Embedder,
		generator: deps.Generator,
		caches:    caches,
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Caches returns the engine's caches.
func (e *Engine) Caches() *cache.Caches {
	return e.caches
}

// Close drains pending cache writes.
func (e *Engine) Close() error {
	return e.caches.Close()
}

// requestTrace collects debug data for one Ask call.
type requestTrace struct {
	debug   *DebugInfo
	started time.Time
	last    time.Time
}

func newTrace(enabled bool) *requestTrace {
	now := time.Now()
	t := &requestTrace{started: now, last: now}
	if enabled {
		t.debug = &DebugInfo{RequestID: uuid.NewString(), TimingsMS: map[string]int{}}
	}
	return t
}

func (t *requestTrace) mark(stage string) {
	now := time.Now()
	if t.debug != nil {
		t.debug.TimingsMS[stage] = int(now.Sub(t.last).Milliseconds())
	}
	t.last = now
}

// Ask answers question under opts.
func (e *Engine) Ask(ctx context.Context, question string, opts Options) (*Answer, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, amanerrors.New(amanerrors.ErrCodeQueryEmpty, "question is empty", nil).
			WithSuggestion("ask a non-empty question")
	}
	mode, err := ParseMustIncludeMode(string(opts.MustIncludeMode))
	if err != nil {
		return nil, err
	}
	opts.MustIncludeMode = mode

	trace := newTrace(opts.Debug)
	qHash := cache.Hash(q)

	// Augmentation
	rewrites, hyde, skipped := e.augment(ctx, q, qHash)
	variants := BuildVariants(q, rewrites, hyde)
	trace.mark("augment")

	// Embedding
	vecs, cacheHits, err := e.embedVariants(ctx, variants)
	if err != nil {
		return nil, err
	}
	trace.mark("embed")

	// Retrieval
	hits, err := e.retriever.HybridSearchMulti(ctx, vecs, variants,
		e.cfg.TopK*e.cfg.ExpandFactor, e.cfg.ContextK*e.cfg.ExpandFactor, e.cfg.RRFK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	trace.mark("retrieve")

	filtered := ApplyFilters(hits, opts)
	trace.mark("filter")

	if d := trace.debug; d != nil {
		d.Variants = variants
		d.AugmentationSkipped = skipped
		d.EmbeddingCacheHits = cacheHits
		d.Candidates = len(hits)
		d.AfterFilters = len(filtered)
		d.Selected = []SelectedHit{}
	}

	if len(filtered) == 0 {
		e.caches.Persist()
		slog.Info("ask_no_match",
			slog.Int("candidates", len(hits)),
			slog.Int("variants", len(variants)))
		return &Answer{Answer: NoMatchAnswer, Sources: []string{}, Debug: trace.debug}, nil
	}

	selected := PickDiverse(filtered, e.cfg.ContextK, e.cfg.Lambda, e.cfg.MinKeep, e.cfg.NormalizeScores)
	contextText := BuildContext(selected)
	trace.mark("select")

	text, cached, err := e.answer(ctx, q, qHash, contextText)
	if err != nil {
		return nil, err
	}
	trace.mark("generate")

	e.caches.Persist()

	sources := make([]string, len(selected))
	for i, h := range selected {
		sources[i] = h.Record.CitationID
	}

	if d := trace.debug; d != nil {
		for _, h := range selected {
			d.Selected = append(d.Selected, SelectedHit{CitationID: h.Record.CitationID, Score: h.Score})
		}
		d.AnswerCached = cached
		d.TimingsMS["total"] = int(time.Since(trace.started).Milliseconds())
	}

	slog.Info("ask_complete",
		slog.Int("variants", len(variants)),
		slog.Int("candidates", len(hits)),
		slog.Int("filtered", len(filtered)),
		slog.Int("selected", len(selected)),
		slog.Bool("answer_cached", cached),
		slog.Int64("duration_ms", time.Since(trace.started).Milliseconds()))

	return &Answer{Answer: text, Sources: sources, Debug: trace.debug}, nil
}

// augment fetches rewrites and a hypothetical answer concurrently. Failures
// never fail the request: quota exhaustion on either call drops both, any
// other error drops only its own part.
func (e *Engine) augment(ctx context.Context, q, qHash string) (rewrites []string, hyde string, skipped bool) {
	if e.cfg.DisableAugmentation {
		return nil, "", true
	}
	model := e.generator.ModelName()

	var (
		wg                  sync.WaitGroup
		rewriteErr, hydeErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rewrites, rewriteErr = e.cachedAugment(ctx, model, cache.KindRewrites, qHash, func() (cache.Augmentation, error) {
			out, err := e.generator.Generate(ctx, rewriteInstructions, rewriteInput(q))
			if err != nil {
				return cache.Augmentation{}, err
			}
			return cache.Augmentation{Rewrites: ParseRewrites(out, q, e.cfg.MaxRewrites)}, nil
		})
	}()
	go func() {
		defer wg.Done()
		var aug []string
		aug, hydeErr = e.cachedAugment(ctx, model, cache.KindHyde, qHash, func() (cache.Augmentation, error) {
			out, err := e.generator.Generate(ctx, hydeInstructions, q)
			if err != nil {
				return cache.Augmentation{}, err
			}
			return cache.Augmentation{Hyde: strings.TrimSpace(out)}, nil
		})
		if len(aug) > 0 {
			hyde = aug[0]
		}
	}()
	wg.Wait()

	if amanerrors.IsQuota(rewriteErr) || amanerrors.IsQuota(hydeErr) {
		slog.Warn("augmentation skipped: generation quota exhausted")
		return nil, "", true
	}
	logAugmentFailure(cache.KindRewrites, rewriteErr)
	logAugmentFailure(cache.KindHyde, hydeErr)
	return rewrites, hyde, rewriteErr != nil && hydeErr != nil
}

func logAugmentFailure(kind string, err error) {
	if err == nil {
		return
	}
	slog.Warn("augmentation failed, continuing without it",
		slog.String("kind", kind),
		slog.String("error", err.Error()))
}

// cachedAugment returns the cached augmentation of a kind or generates and
// caches it. Rewrites come back as-is; a hyde result is a one-element slice.
func (e *Engine) cachedAugment(ctx context.Context, model, kind, qHash string, generate func() (cache.Augmentation, error)) ([]string, error) {
	key := cache.AugmentKey(model, kind, qHash)
	aug, ok := e.caches.Augment.Get(key)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		aug, err = generate()
		if err != nil {
			return nil, err
		}
		e.caches.Augment.Put(key, aug)
	}
	if kind == cache.KindHyde {
		if aug.Hyde == "" {
			return nil, nil
		}
		return []string{aug.Hyde}, nil
	}
	return aug.Rewrites, nil
}

// embedVariants embeds texts through the embedding cache. Misses go to the
// provider in one call. It returns the number of cache hits.
func (e *Engine) embedVariants(ctx context.Context, texts []string) ([][]float32, int, error) {
	model := e.embedder.ModelName()
	vecs := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var missTexts []string
	var missIdx []int
	for i, t := range texts {
		keys[i] = cache.EmbeddingKey(model, t)
		if v, ok := e.caches.Embeddings.Get(keys[i]); ok {
			vecs[i] = v
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	hits := len(texts) - len(missTexts)
	if len(missTexts) == 0 {
		return vecs, hits, nil
	}

	embedded, err := e.embedder.Embed(ctx, missTexts)
	if err != nil {
		if amanerrors.IsQuota(err) {
			return nil, 0, amanerrors.Unavailable("embedding", err)
		}
		return nil, 0, fmt.Errorf("embed query variants: %w", err)
	}
	if len(embedded) != len(missTexts) {
		return nil, 0, amanerrors.InternalError(
			fmt.Sprintf("embedder returned %d vectors for %d texts", len(embedded), len(missTexts)), nil)
	}

	for j, i := range missIdx {
		vecs[i] = embedded[j]
		e.caches.Embeddings.Put(keys[i], embedded[j])
	}
	return vecs, hits, nil
}

// answer generates or recalls the answer for a question over a context.
func (e *Engine) answer(ctx context.Context, q, qHash, contextText string) (string, bool, error) {
	key := cache.AnswerKey(e.generator.ModelName(), qHash, cache.Hash(contextText))
	if text, ok := e.caches.Answers.Get(key); ok {
		return text, true, nil
	}

	text, err := e.generator.Generate(ctx, answerInstructions, answerInput(q, contextText))
	if err != nil {
		if amanerrors.IsQuota(err) {
			return "", false, amanerrors.Unavailable("generation", err)
		}
		return "", false, fmt.Errorf("generate answer: %w", err)
	}
	text = strings.TrimSpace(text)
	e.caches.Answers.Put(key, text)
	return text, false, nil
}
