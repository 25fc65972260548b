// Package watcher keeps an index current while the corpus is edited.
//
// Change detection uses fsnotify, falling back to polling where fsnotify
// cannot be initialised (network mounts, some container volumes). Events are
// filtered against the corpus loader's extensions and exclude patterns, then
// debounced so an editor save or a git checkout yields one batch.
//
// Usage:
//
//	w, err := watcher.New(loader.Dir(), loader, watcher.Options{Debounce: time.Second})
//	if err != nil {
//	    return err
//	}
//	runner := watcher.NewRunner(w, indexer)
//	return runner.Run(ctx) // incremental reindex per batch until ctx is done
package watcher
