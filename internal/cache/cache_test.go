package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// =============================================================================
// Keys and Cache
// =============================================================================

func TestKeys_AreStableAndSeparated(t *testing.T) {
	assert.Equal(t, EmbeddingKey("m", "text"), EmbeddingKey("m", "text"))
	assert.NotEqual(t, EmbeddingKey("m1", "text"), EmbeddingKey("m2", "text"))
	// NUL separation keeps ("ab","c") and ("a","bc") apart
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Len(t, AnswerKey("m", Hash("q"), Hash("ctx")), 64)
}

func TestCache_PutGetAndDirty(t *testing.T) {
	c := New[string](NameAnswers)
	assert.False(t, c.Dirty())

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Put("k", "v")
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Dirty())
}

func TestCache_EncodeDecodeRoundTrip(t *testing.T) {
	src := New[Augmentation](NameAugment)
	src.Put("a", Augmentation{Rewrites: []string{"r1", "r2"}, Hyde: "h"})

	raw, err := src.Encode()
	require.NoError(t, err)
	assert.False(t, src.Dirty())

	dst := New[Augmentation](NameAugment)
	raw["broken"] = []byte("{not json")
	skipped := dst.Decode(raw)

	assert.Equal(t, 1, skipped)
	got, ok := dst.Get("a")
	require.True(t, ok)
	assert.Equal(t, []string{"r1", "r2"}, got.Rewrites)
	assert.Equal(t, "h", got.Hyde)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[[]float32](NameEmbeddings)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := Key("m", string(rune('a'+i)))
			c.Put(key, []float32{float32(i)})
			_, _ = c.Get(key)
			_, _ = c.Encode()
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, c.Len())
}

// =============================================================================
// Persisters
// =============================================================================

func TestFilePersister_MissingFileIsEmpty(t *testing.T) {
	p := NewFilePersister(t.TempDir())
	got, err := p.Load(context.Background(), NameAnswers)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFilePersister_SaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	p := NewFilePersister(dir)
	ctx := context.Background()

	require.NoError(t, p.Save(ctx, NameAnswers, map[string][]byte{"k": []byte(`"answer"`)}))
	assert.FileExists(t, filepath.Join(dir, "answers.json"))

	got, err := p.Load(ctx, NameAnswers)
	require.NoError(t, err)
	assert.JSONEq(t, `"answer"`, string(got["k"]))
}

func TestFilePersister_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "augment.json"), []byte("[1,2"), 0o644))

	_, err := NewFilePersister(dir).Load(context.Background(), NameAugment)
	require.Error(t, err)
	assert.Equal(t, amanerrors.ErrCodeInternal, amanerrors.GetCode(err))
}

func TestOpenPersister(t *testing.T) {
	ctx := context.Background()

	p, err := OpenPersister(ctx, PersisterConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FilePersister{}, p)

	_, err = OpenPersister(ctx, PersisterConfig{Backend: BackendRedis})
	assert.Equal(t, amanerrors.ErrCodeConfigInvalid, amanerrors.GetCode(err))

	_, err = OpenPersister(ctx, PersisterConfig{Backend: "memcached"})
	assert.Equal(t, amanerrors.ErrCodeConfigInvalid, amanerrors.GetCode(err))
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "amanrag:cache:embeddings", RedisKey(NameEmbeddings))
}

func TestRedisPersister_SaveLoad(t *testing.T) {
	mr := miniredis.RunT(t)
	p := NewRedisPersisterFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = p.Close() })
	ctx := context.Background()

	// Missing hash is an empty cache
	got, err := p.Load(ctx, NameAnswers)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, p.Save(ctx, NameAnswers, map[string][]byte{
		"k1": []byte(`"first"`),
		"k2": []byte(`"second"`),
	}))
	assert.Equal(t, `"first"`, mr.HGet(RedisKey(NameAnswers), "k1"))

	got, err = p.Load(ctx, NameAnswers)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"k1": []byte(`"first"`), "k2": []byte(`"second"`)}, got)

	// Save replaces the whole hash
	require.NoError(t, p.Save(ctx, NameAnswers, map[string][]byte{"k3": []byte(`"third"`)}))
	got, err = p.Load(ctx, NameAnswers)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"k3": []byte(`"third"`)}, got)

	// Caches do not share a hash
	other, err := p.Load(ctx, NameEmbeddings)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, p.Save(ctx, NameAnswers, map[string][]byte{}))
	assert.False(t, mr.Exists(RedisKey(NameAnswers)))
}

func TestOpenPersister_RedisURL(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	p, err := OpenPersister(ctx, PersisterConfig{Backend: BackendRedis, RedisURL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	require.IsType(t, &RedisPersister{}, p)

	require.NoError(t, p.Save(ctx, NameAugment, map[string][]byte{"q": []byte(`["a","b"]`)}))
	got, err := p.Load(ctx, NameAugment)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(got["q"]))
}

func TestRedisPersister_ServerGoneIsTransient(t *testing.T) {
	mr := miniredis.RunT(t)
	p := NewRedisPersisterFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	t.Cleanup(func() { _ = p.Close() })
	mr.Close()

	_, err := p.Load(context.Background(), NameAnswers)

	require.Error(t, err)
	assert.Equal(t, amanerrors.ErrCodeTransient, amanerrors.GetCode(err))
}

// =============================================================================
// Writer
// =============================================================================

func TestWriter_RunsJobsInOrder(t *testing.T) {
	w := NewWriter(2)
	var mu sync.Mutex
	var order []int

	for i := range 10 {
		w.Enqueue("job", func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, w.Flush(context.Background()))

	mu.Lock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	mu.Unlock()
	w.Close()
}

func TestWriter_SwallowsErrorsAndPanics(t *testing.T) {
	w := NewWriter(4)
	var ran atomic.Int32

	w.Enqueue("fails", func(context.Context) error { return errors.New("disk full") })
	w.Enqueue("panics", func(context.Context) error { panic("boom") })
	w.Enqueue("ok", func(context.Context) error {
		ran.Add(1)
		return nil
	})
	w.Close()

	assert.Equal(t, int32(1), ran.Load())
}

func TestWriter_CloseDrainsAndRejects(t *testing.T) {
	w := NewWriter(8)
	var ran atomic.Int32
	for range 5 {
		w.Enqueue("job", func(context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	w.Close()
	assert.Equal(t, int32(5), ran.Load())

	assert.False(t, w.Enqueue("late", func(context.Context) error { return nil }))
	assert.NoError(t, w.Flush(context.Background()))
	w.Close()
}

// =============================================================================
// Caches
// =============================================================================

type countingPersister struct {
	inner   Persister
	saves   atomic.Int32
	saveErr error
}

func (p *countingPersister) Load(ctx context.Context, name string) (map[string][]byte, error) {
	return p.inner.Load(ctx, name)
}

func (p *countingPersister) Save(ctx context.Context, name string, entries map[string][]byte) error {
	p.saves.Add(1)
	if p.saveErr != nil {
		return p.saveErr
	}
	return p.inner.Save(ctx, name, entries)
}

func (p *countingPersister) Close() error { return nil }

func TestCaches_PersistOnlyDirtyAndReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	p := &countingPersister{inner: NewFilePersister(dir)}

	c := Open(ctx, p)
	c.Answers.Put(AnswerKey("m", Hash("q"), Hash("c")), "forty-two")
	c.Persist()
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, int32(1), p.saves.Load())

	// Nothing changed, nothing written
	c.Persist()
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, int32(1), p.saves.Load())
	require.NoError(t, c.Close())

	reopened := Open(ctx, NewFilePersister(dir))
	defer func() { _ = reopened.Close() }()
	got, ok := reopened.Answers.Get(AnswerKey("m", Hash("q"), Hash("c")))
	require.True(t, ok)
	assert.Equal(t, "forty-two", got)
	assert.Equal(t, Stats{Answers: 1}, reopened.Stats())
}

func TestCaches_SaveFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	p := &countingPersister{inner: NewFilePersister(t.TempDir()), saveErr: errors.New("read-only fs")}

	c := Open(ctx, p)
	c.Embeddings.Put("k", []float32{1, 0})
	c.Persist()
	require.NoError(t, c.Flush(ctx))

	assert.Equal(t, int32(1), p.saves.Load())
	_, ok := c.Embeddings.Get("k")
	assert.True(t, ok)
	assert.NoError(t, c.Close())
}

func TestCaches_CorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "answers.json"), []byte("garbage"), 0o644))

	c := Open(context.Background(), NewFilePersister(dir))
	defer func() { _ = c.Close() }()
	assert.Equal(t, 0, c.Answers.Len())
}

func TestCaches_MemoryOnly(t *testing.T) {
	c := Open(context.Background(), nil)
	c.Augment.Put("k", Augmentation{Rewrites: []string{"x"}})
	c.Persist()
	assert.NoError(t, c.Flush(context.Background()))
	assert.NoError(t, c.Close())
	assert.Equal(t, 1, c.Augment.Len())
}
