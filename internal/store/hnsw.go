package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWConfig tunes the approximate nearest neighbour graph.
type HNSWConfig struct {
	M        int `yaml:"m" json:"m"`
	EfSearch int `yaml:"ef_search" json:"ef_search"`
}

// DefaultHNSWConfig returns coder/hnsw's recommended parameters.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{M: 16, EfSearch: 64}
}

// hnswIndex wraps a coder/hnsw cosine graph keyed by the record table's
// sequence number. Deletion is lazy: a deleted key is dropped from keyMap
// and filtered out of results, which avoids coder/hnsw's breakage when the
// last node is removed. EnsureIndexes rebuilds the graph to compact it.
type hnswIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	keyMap map[uint64]string // seq -> record ID
	stale  int               // lazily deleted nodes still in the graph
}

func newHNSWGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// buildHNSWIndex creates a graph from a full scan of the collection.
func buildHNSWIndex(cfg HNSWConfig, keys []uint64, ids []string, vectors [][]float32) *hnswIndex {
	idx := &hnswIndex{
		graph:  newHNSWGraph(cfg),
		keyMap: make(map[uint64]string, len(keys)),
	}
	nodes := make([]hnsw.Node[uint64], len(keys))
	for i, key := range keys {
		nodes[i] = hnsw.MakeNode(key, vectors[i])
		idx.keyMap[key] = ids[i]
	}
	if len(nodes) > 0 {
		idx.graph.Add(nodes...)
	}
	return idx
}

// add inserts freshly written records into a live graph.
func (h *hnswIndex) add(keys []uint64, ids []string, vectors [][]float32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, key := range keys {
		h.graph.Add(hnsw.MakeNode(key, vectors[i]))
		h.keyMap[key] = ids[i]
	}
}

// remove lazily deletes keys.
func (h *hnswIndex) remove(keys []uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, key := range keys {
		if _, ok := h.keyMap[key]; ok {
			delete(h.keyMap, key)
			h.stale++
		}
	}
}

// search returns up to k live record IDs with their cosine distances.
func (h *hnswIndex) search(query []float32, k int) ([]string, []float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph.Len() == 0 || k <= 0 {
		return nil, nil
	}

	nodes := h.graph.Search(query, k+h.stale)
	ids := make([]string, 0, k)
	distances := make([]float64, 0, k)
	for _, node := range nodes {
		id, ok := h.keyMap[node.Key]
		if !ok {
			continue
		}
		ids = append(ids, id)
		distances = append(distances, float64(h.graph.Distance(query, node.Value)))
		if len(ids) == k {
			break
		}
	}
	return ids, distances
}

// save exports the graph to path atomically (temp file + rename).
func (h *hnswIndex) save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	w := bufio.NewWriter(file)
	if err := h.graph.Export(w); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush index file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}
	return nil
}

// loadHNSWIndex imports a saved graph. keyMap comes from the record table,
// which is the source of truth for which keys are live.
func loadHNSWIndex(cfg HNSWConfig, path string, keyMap map[uint64]string) (*hnswIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	graph := newHNSWGraph(cfg)
	// coder/hnsw Import requires an io.ByteReader
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}

	stale := graph.Len() - len(keyMap)
	if stale < 0 {
		return nil, fmt.Errorf("graph has %d nodes but collection has %d records", graph.Len(), len(keyMap))
	}
	return &hnswIndex{graph: graph, keyMap: keyMap, stale: stale}, nil
}
