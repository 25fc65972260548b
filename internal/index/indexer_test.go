package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/corpus"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/manifest"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// =============================================================================
// Test doubles
// =============================================================================

// memDocs is a mutable in-memory corpus.
type memDocs struct {
	mu   sync.Mutex
	docs map[string]string
}

func newMemDocs(docs map[string]string) *memDocs {
	return &memDocs{docs: docs}
}

func (m *memDocs) set(source, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[source] = text
}

func (m *memDocs) Load(context.Context) ([]corpus.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]corpus.Document, 0, len(m.docs))
	for s, t := range m.docs {
		out = append(out, corpus.Document{Source: s, Text: t})
	}
	return out, nil
}

// lineChunker emits one chunk per non-blank line.
type lineChunker struct{}

func (lineChunker) Chunk(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// countingEmbedder records batch sizes and can fail on demand.
type countingEmbedder struct {
	inner    embed.Service
	calls    atomic.Int32
	embedded atomic.Int32
	mu       sync.Mutex
	batches  []int
	err      error
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{inner: embed.NewStaticEmbedderWithDims(32)}
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	e.embedded.Add(int32(len(texts)))
	e.mu.Lock()
	e.batches = append(e.batches, len(texts))
	e.mu.Unlock()
	return e.inner.Embed(ctx, texts)
}

func (e *countingEmbedder) Dimensions() int   { return e.inner.Dimensions() }
func (e *countingEmbedder) ModelName() string { return e.inner.ModelName() }
func (e *countingEmbedder) Close() error      { return nil }

// failingDeleteBackend rejects deletes.
type failingDeleteBackend struct {
	store.Backend
	deletes atomic.Int32
}

func (b *failingDeleteBackend) Delete(context.Context, []string) error {
	b.deletes.Add(1)
	return errors.New("delete not supported")
}

type fixture struct {
	docs     *memDocs
	embedder *countingEmbedder
	backend  store.Backend
	store    *search.HybridStore
	manifest *manifest.Manifest
	indexer  *Indexer
	dataDir  string
}

func newFixture(t *testing.T, docs map[string]string, wrap func(store.Backend) store.Backend) *fixture {
	t.Helper()
	ctx := context.Background()

	var backend store.Backend
	local, err := store.NewLocalBackend(ctx, "", "docs", store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })
	backend = local
	if wrap != nil {
		backend = wrap(local)
	}

	hs, err := search.NewHybridStore(backend)
	require.NoError(t, err)

	f := &fixture{
		docs:     newMemDocs(docs),
		embedder: newCountingEmbedder(),
		backend:  backend,
		store:    hs,
		dataDir:  t.TempDir(),
	}
	f.manifest = manifest.New(filepath.Join(f.dataDir, manifest.FileName))

	f.indexer, err = New(Config{DataDir: f.dataDir}, Dependencies{
		Documents: f.docs,
		Chunker:   lineChunker{},
		Embedder:  f.embedder,
		Store:     hs,
		Manifest:  f.manifest,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) run(t *testing.T, mode Mode) *Result {
	t.Helper()
	res, err := f.indexer.Run(context.Background(), mode)
	require.NoError(t, err)
	return res
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	return n
}

func baseDocs() map[string]string {
	return map[string]string{
		"policy.md": "Refunds are issued within ten days.\nThe refund policy applies to annual plans.",
		"ship.md":   "Shipping takes five business days.",
	}
}

// =============================================================================
// Run
// =============================================================================

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeIncremental, m)

	m, err = ParseMode(" FULL ")
	require.NoError(t, err)
	assert.Equal(t, ModeFull, m)

	_, err = ParseMode("partial")
	assert.Equal(t, amanerrors.ErrCodeInvalidInput, amanerrors.GetCode(err))
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{}, Dependencies{})
	assert.Error(t, err)
}

func TestRun_FullBuildsStoreAndManifest(t *testing.T) {
	f := newFixture(t, baseDocs(), nil)

	res := f.run(t, ModeFull)

	assert.Equal(t, ModeFull, res.Mode)
	assert.Equal(t, 3, res.ChunksCount)
	assert.Equal(t, 3, res.Added)
	assert.Equal(t, 0, res.Deleted)
	assert.Empty(t, res.DeleteWarning)
	assert.Equal(t, 3, f.count(t))

	ids, err := f.manifest.Load()
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestRun_IncrementalIsIdempotent(t *testing.T) {
	f := newFixture(t, baseDocs(), nil)

	first := f.run(t, ModeIncremental)
	assert.Equal(t, 3, first.Added)
	callsAfterFirst := f.embedder.calls.Load()

	second := f.run(t, ModeIncremental)
	assert.Equal(t, 3, second.ChunksCount)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 0, second.Deleted)
	assert.Equal(t, callsAfterFirst, f.embedder.calls.Load(), "unchanged corpus must not embed")
	assert.Equal(t, 3, f.count(t))
}

func TestRun_EditIsDeletePlusAdd(t *testing.T) {
	f := newFixture(t, baseDocs(), nil)
	f.run(t, ModeIncremental)
	before, err := f.manifest.Load()
	require.NoError(t, err)

	f.docs.set("ship.md", "Shipping takes two business days.")
	f.embedder.embedded.Store(0)
	res := f.run(t, ModeIncremental)

	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, int32(1), f.embedder.embedded.Load(), "only the changed chunk is embedded")
	assert.Equal(t, 3, f.count(t))

	after, err := f.manifest.Load()
	require.NoError(t, err)
	delta := manifest.Diff(before, after)
	require.Len(t, delta.ToDelete, 1)
	require.Len(t, delta.ToAdd, 1)
	assert.True(t, strings.HasPrefix(delta.ToDelete[0], "ship.md:"))
	assert.True(t, strings.HasPrefix(delta.ToAdd[0], "ship.md:"))

	hits, err := f.store.KeywordSearch(context.Background(), "two", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ship.md#0", hits[0].Record.CitationID)
}

func TestRun_IncrementalMatchesFull(t *testing.T) {
	inc := newFixture(t, baseDocs(), nil)
	inc.run(t, ModeIncremental)
	inc.docs.set("faq.md", "Contact support by email.")
	inc.docs.set("policy.md", "Refunds are issued within ten days.")
	inc.run(t, ModeIncremental)

	full := newFixture(t, map[string]string{
		"policy.md": "Refunds are issued within ten days.",
		"ship.md":   "Shipping takes five business days.",
		"faq.md":    "Contact support by email.",
	}, nil)
	full.run(t, ModeFull)

	incIDs, err := inc.manifest.Load()
	require.NoError(t, err)
	fullIDs, err := full.manifest.Load()
	require.NoError(t, err)
	assert.Equal(t, fullIDs.Sorted(), incIDs.Sorted())
	assert.Equal(t, full.count(t), inc.count(t))
}

func TestRun_DeleteFailureIsAWarning(t *testing.T) {
	var failing *failingDeleteBackend
	f := newFixture(t, baseDocs(), func(b store.Backend) store.Backend {
		failing = &failingDeleteBackend{Backend: b}
		return failing
	})
	f.run(t, ModeIncremental)

	f.docs.set("ship.md", "Shipping is free.")
	res := f.run(t, ModeIncremental)

	// One purge per incremental run.
	assert.Equal(t, int32(2), failing.deletes.Load())
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 0, res.Deleted)
	assert.Contains(t, res.DeleteWarning, "full reindex")
	assert.Equal(t, 4, f.count(t), "stale chunk remains until a full run")

	ids, err := f.manifest.Load()
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	full := f.run(t, ModeFull)
	assert.Empty(t, full.DeleteWarning)
	assert.Equal(t, 3, f.count(t))
}

func TestRun_RecoversFromRunInterruptedBeforeManifestSave(t *testing.T) {
	f := newFixture(t, baseDocs(), nil)
	f.run(t, ModeIncremental)
	saved, err := os.ReadFile(f.manifest.Path())
	require.NoError(t, err)

	// Given: chunks were stored but the manifest still lists the old set
	f.docs.set("ship.md", "Shipping is free.")
	f.run(t, ModeIncremental)
	require.NoError(t, os.WriteFile(f.manifest.Path(), saved, 0o644))

	// When: the run is repeated
	res := f.run(t, ModeIncremental)

	// Then: the leftover rows are replaced instead of rejected
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Deleted)
	assert.Empty(t, res.DeleteWarning)
	assert.Equal(t, 3, f.count(t))
	ids, err := f.manifest.Load()
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestRun_RecoversWhenManifestWasNeverWritten(t *testing.T) {
	f := newFixture(t, baseDocs(), nil)
	f.run(t, ModeIncremental)
	require.NoError(t, os.Remove(f.manifest.Path()))

	res := f.run(t, ModeIncremental)

	assert.Equal(t, 3, res.Added)
	assert.Equal(t, 3, f.count(t))
	ids, err := f.manifest.Load()
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestRun_EmbedsInBatches(t *testing.T) {
	lines := make([]string, 130)
	for i := range lines {
		lines[i] = fmt.Sprintf("line number %d", i)
	}
	f := newFixture(t, map[string]string{"big.txt": strings.Join(lines, "\n")}, nil)

	var progress []Progress
	f.indexer.OnProgress(func(p Progress) {
		if p.Stage == StageEmbed {
			progress = append(progress, p)
		}
	})
	res := f.run(t, ModeFull)

	assert.Equal(t, 130, res.Added)
	assert.Equal(t, []int{64, 64, 2}, f.embedder.batches)
	require.NotEmpty(t, progress)
	assert.Equal(t, Progress{Stage: StageEmbed, Done: 130, Total: 130}, progress[len(progress)-1])
}

func TestRun_QuotaAbortsWithoutSavingManifest(t *testing.T) {
	f := newFixture(t, baseDocs(), nil)
	f.embedder.err = amanerrors.QuotaError("insufficient_quota", nil)

	_, err := f.indexer.Run(context.Background(), ModeIncremental)

	require.Error(t, err)
	assert.True(t, errors.Is(err, amanerrors.ErrServiceUnavailable))
	assert.True(t, amanerrors.IsQuota(err))
	assert.NoFileExists(t, f.manifest.Path())
}

func TestRun_LockHeldByAnotherRun(t *testing.T) {
	f := newFixture(t, baseDocs(), nil)
	lock := NewFileLock(f.dataDir)
	ok, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = lock.Unlock() }()

	_, err = f.indexer.Run(context.Background(), ModeFull)
	assert.True(t, errors.Is(err, amanerrors.ErrFileLocked))
}

func TestRun_EmptyCorpus(t *testing.T) {
	f := newFixture(t, map[string]string{}, nil)

	res := f.run(t, ModeFull)
	assert.Equal(t, 0, res.ChunksCount)

	res = f.run(t, ModeIncremental)
	assert.Equal(t, 0, res.Added)
	assert.FileExists(t, f.manifest.Path())
}

func TestRun_UnknownMode(t *testing.T) {
	f := newFixture(t, baseDocs(), nil)
	_, err := f.indexer.Run(context.Background(), Mode("sideways"))
	assert.Equal(t, amanerrors.ErrCodeInvalidInput, amanerrors.GetCode(err))
}
