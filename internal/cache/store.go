package cache

import (
	"context"
	"log/slog"
)

// Caches bundles the three query caches with their persistence.
type Caches struct {
	Embeddings *Cache[[]float32]
	Augment    *Cache[Augmentation]
	Answers    *Cache[string]

	persister Persister
	writer    *Writer
}

// Stats reports entry counts per cache.
type Stats struct {
	Embeddings int `json:"embeddings"`
	Augment    int `json:"augment"`
	Answers    int `json:"answers"`
}

// Open loads all caches from p. A nil persister gives memory-only caches.
// A cache that fails to load starts empty.
func Open(ctx context.Context, p Persister) *Caches {
	c := &Caches{
		Embeddings: New[[]float32](NameEmbeddings),
		Augment:    New[Augmentation](NameAugment),
		Answers:    New[string](NameAnswers),
		persister:  p,
	}
	if p == nil {
		return c
	}
	c.writer = NewWriter(DefaultQueueSize)

	load(ctx, p, c.Embeddings)
	load(ctx, p, c.Augment)
	load(ctx, p, c.Answers)
	return c
}

func load[V any](ctx context.Context, p Persister, c *Cache[V]) {
	raw, err := p.Load(ctx, c.Name())
	if err != nil {
		slog.Warn("cache_load_failed",
			slog.String("cache", c.Name()),
			slog.String("error", err.Error()))
		return
	}
	if skipped := c.Decode(raw); skipped > 0 {
		slog.Warn("cache_entries_skipped",
			slog.String("cache", c.Name()),
			slog.Int("skipped", skipped))
	}
	slog.Debug("cache_loaded", slog.String("cache", c.Name()), slog.Int("entries", c.Len()))
}

// Persist enqueues a save for every dirty cache. It never blocks on I/O.
func (c *Caches) Persist() {
	if c.writer == nil {
		return
	}
	enqueueSave(c.writer, c.persister, c.Embeddings)
	enqueueSave(c.writer, c.persister, c.Augment)
	enqueueSave(c.writer, c.persister, c.Answers)
}

func enqueueSave[V any](w *Writer, p Persister, c *Cache[V]) {
	if !c.Dirty() {
		return
	}
	w.Enqueue("save:"+c.Name(), func(ctx context.Context) error {
		entries, err := c.Encode()
		if err != nil {
			return err
		}
		return p.Save(ctx, c.Name(), entries)
	})
}

// Flush waits for queued saves to complete.
func (c *Caches) Flush(ctx context.Context) error {
	if c.writer == nil {
		return nil
	}
	return c.writer.Flush(ctx)
}

// Stats returns current entry counts.
func (c *Caches) Stats() Stats {
	return Stats{
		Embeddings: c.Embeddings.Len(),
		Augment:    c.Augment.Len(),
		Answers:    c.Answers.Len(),
	}
}

// Close persists dirty caches, drains the writer and closes the persister.
func (c *Caches) Close() error {
	if c.writer == nil {
		return nil
	}
	c.Persist()
	c.writer.Close()
	return c.persister.Close()
}
