package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache configuration constants.
const (
	// DefaultEmbeddingCacheSize is the default number of embeddings to cache.
	// At 768 dimensions * 4 bytes * 1000 entries ≈ 3MB memory.
	DefaultEmbeddingCacheSize = 1000
)

// CachedService wraps a Service with an in-process LRU so repeated texts
// within one process skip the provider.
type CachedService struct {
	inner Service
	cache *lru.Cache[string, []float32]
}

var _ Service = (*CachedService)(nil)

// NewCachedService creates a cached service wrapping inner.
func NewCachedService(inner Service, cacheSize int) *CachedService {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedService{
		inner: inner,
		cache: cache,
	}
}

// TextKey is the cache key for text under model: hex sha256(model \x00 text).
func TextKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(hash[:])
}

// Embed checks the cache per text and sends only misses to the inner
// service, in one call.
func (c *CachedService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	model := c.inner.ModelName()
	results := make([][]float32, len(texts))
	uncachedIndices := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(TextKey(model, text)); ok {
			results[i] = vec
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	newEmbeddings, err := c.inner.Embed(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range uncachedIndices {
		results[idx] = newEmbeddings[j]
		c.cache.Add(TextKey(model, texts[idx]), newEmbeddings[j])
	}
	return results, nil
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (c *CachedService) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (c *CachedService) ModelName() string {
	return c.inner.ModelName()
}

// Close releases resources and closes the inner service.
func (c *CachedService) Close() error {
	return c.inner.Close()
}

// Inner returns the underlying service.
func (c *CachedService) Inner() Service {
	return c.inner
}
