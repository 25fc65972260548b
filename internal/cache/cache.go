// Package cache holds the query-time caches (embeddings, augmentations and
// answers) and persists them through a single background writer.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Cache names, also used as persisted file stems and Redis hash suffixes.
const (
	NameEmbeddings = "embeddings"
	NameAugment    = "augment"
	NameAnswers    = "answers"
)

// Augmentation is a cached augmentation result. A rewrites entry fills
// Rewrites; a hyde entry fills Hyde.
type Augmentation struct {
	Rewrites []string `json:"rewrites"`
	Hyde     string   `json:"hyde,omitempty"`
}

// Hash returns hex sha256 of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Key joins parts with NUL and hashes the result.
func Key(parts ...string) string {
	return Hash(strings.Join(parts, "\x00"))
}

// EmbeddingKey keys a single text embedding.
func EmbeddingKey(model, text string) string {
	return Key(model, text)
}

// Augmentation kinds, cached independently.
const (
	KindRewrites = "rewrites"
	KindHyde     = "hyde"
)

// AugmentKey keys one kind of augmentation for a question.
func AugmentKey(model, kind, questionHash string) string {
	return Key(model, kind, questionHash)
}

// AnswerKey keys an answer to a question over a specific context.
func AnswerKey(model, questionHash, contextHash string) string {
	return Key(model, questionHash, contextHash)
}

// Cache is a concurrency-safe map of immutable entries. Entries never expire.
type Cache[V any] struct {
	name    string
	mu      sync.RWMutex
	entries map[string]V
	dirty   atomic.Bool
}

// New creates an empty cache.
func New[V any](name string) *Cache[V] {
	return &Cache[V]{name: name, entries: make(map[string]V)}
}

// Name returns the cache name.
func (c *Cache[V]) Name() string {
	return c.name
}

// Get returns the entry for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Put stores an entry and marks the cache dirty.
func (c *Cache[V]) Put(key string, v V) {
	c.mu.Lock()
	c.entries[key] = v
	c.mu.Unlock()
	c.dirty.Store(true)
}

// Len returns the number of entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Dirty reports whether the cache changed since the last snapshot.
func (c *Cache[V]) Dirty() bool {
	return c.dirty.Load()
}

// Encode serializes every entry to JSON and clears the dirty flag.
func (c *Cache[V]) Encode() (map[string][]byte, error) {
	c.dirty.Store(false)

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]byte, len(c.entries))
	for k, v := range c.entries {
		data, err := json.Marshal(v)
		if err != nil {
			c.dirty.Store(true)
			return nil, fmt.Errorf("encode %s entry: %w", c.name, err)
		}
		out[k] = data
	}
	return out, nil
}

// Decode replaces the cache contents with raw entries. Entries that fail to
// decode are skipped and counted.
func (c *Cache[V]) Decode(raw map[string][]byte) (skipped int) {
	entries := make(map[string]V, len(raw))
	for k, data := range raw {
		var v V
		if err := json.Unmarshal(data, &v); err != nil {
			skipped++
			continue
		}
		entries[k] = v
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	c.dirty.Store(false)
	return skipped
}
