package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/amanrag/internal/cache"
	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/corpus"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/llm"
	"github.com/Aman-CERP/amanrag/internal/logging"
	"github.com/Aman-CERP/amanrag/internal/manifest"
	"github.com/Aman-CERP/amanrag/internal/query"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// appOptions selects which parts of the stack a command needs.
type appOptions struct {
	// query builds the generator, caches and engine.
	query bool
	// logToStderr copies log records to stderr. Never set for MCP stdio.
	logToStderr bool
}

// app is the wired stack for one command invocation.
type app struct {
	root     string
	cfg      *config.Config
	backend  store.Backend
	store    *search.HybridStore
	embedder embed.Service
	loader   *corpus.Loader
	indexer  *index.Indexer

	// Set when appOptions.query is true.
	caches *cache.Caches
	engine *query.Engine

	closers []func() error
}

// openApp loads configuration for the project containing dir and wires the
// components in dependency order. Close releases everything opened.
func openApp(ctx context.Context, dir string, opts appOptions) (a *app, err error) {
	root, err := config.FindProjectRoot(dir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	a = &app{root: root, cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	logCfg := cfg.LogConfig()
	logCfg.WriteToStderr = opts.logToStderr
	if debugMode {
		logCfg.Level = "debug"
	}
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	a.onClose(func() error { cleanup(); return nil })

	slog.Debug("config_loaded",
		slog.String("root", root),
		slog.String("store_uri", redactURI(cfg.StoreURI())),
		slog.String("embed_provider", cfg.Embed.Provider),
		slog.String("llm_provider", cfg.LLM.Provider))

	a.backend, err = store.Open(ctx, cfg.StoreURI(), cfg.Store.Collection, cfg.StoreOptions())
	if err != nil {
		return nil, err
	}
	a.onClose(a.backend.Close)

	a.store, err = search.NewHybridStore(a.backend)
	if err != nil {
		return nil, err
	}

	a.embedder, err = embed.New(cfg.EmbedConfig())
	if err != nil {
		return nil, err
	}
	a.onClose(a.embedder.Close)

	a.loader, err = corpus.NewLoader(cfg.CorpusOptions())
	if err != nil {
		return nil, err
	}

	a.indexer, err = index.New(cfg.IndexConfig(), index.Dependencies{
		Documents: a.loader,
		Chunker:   chunk.NewRecursiveChunker(cfg.ChunkOptions()),
		Embedder:  a.embedder,
		Store:     a.store,
		Manifest:  manifest.New(cfg.ManifestPath()),
	})
	if err != nil {
		return nil, err
	}

	if !opts.query {
		return a, nil
	}

	generator, err := llm.NewWithContext(ctx, cfg.LLMConfig())
	if err != nil {
		return nil, err
	}

	persister, err := cache.OpenPersister(ctx, cfg.PersisterConfig())
	if err != nil {
		return nil, err
	}
	a.caches = cache.Open(ctx, persister)

	a.engine, err = query.NewEngine(cfg.QueryConfig(), query.Dependencies{
		Retriever: a.store,
		Embedder:  a.embedder,
		Generator: generator,
		Caches:    a.caches,
	})
	if err != nil {
		_ = a.caches.Close()
		return nil, err
	}
	a.onClose(a.engine.Close)

	return a, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
