package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed away.
	OpRename
	// OpConfigChange indicates .amanrag.yaml or .amanragignore changed.
	OpConfigChange
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a relevant change under the watched root.
type FileEvent struct {
	// Path is slash-separated and relative to the root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Filter decides which paths matter. *corpus.Loader implements it.
type Filter interface {
	Accepts(rel string) bool
	Excluded(rel string, isDir bool) bool
}

// ConfigFiles change how the corpus is read; they are reported as
// OpConfigChange regardless of the filter.
var ConfigFiles = []string{".amanrag.yaml", ".amanragignore"}

// Options configures the watcher behavior.
type Options struct {
	// Debounce is the quiet period before a batch is emitted (default: 500ms).
	Debounce time.Duration

	// PollInterval is the scan interval in polling mode (default: 5s).
	PollInterval time.Duration

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:     500 * time.Millisecond,
		PollInterval: 5 * time.Second,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	return o
}

// Watcher emits debounced batches of relevant changes under a root.
type Watcher struct {
	root      string
	filter    Filter
	opts      Options
	debouncer *Debouncer
	fsw       *fsnotify.Watcher // nil in polling mode
	poller    *poller
	errors    chan error

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a watcher for root. fsnotify is preferred; polling is used when
// it cannot be created or opts.ForcePolling is set.
func New(root string, filter Filter, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	opts = opts.WithDefaults()

	w := &Watcher{
		root:      abs,
		filter:    filter,
		opts:      opts,
		debouncer: NewDebouncer(opts.Debounce),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsw = fsw
			return w, nil
		}
		slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	w.poller = newPoller(abs, w.relevant)
	return w, nil
}

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string { return w.root }

// Events returns debounced batches. The channel is closed by Stop.
func (w *Watcher) Events() <-chan []FileEvent { return w.debouncer.Output() }

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Start watches until ctx is done or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context) error {
	if info, err := os.Stat(w.root); err != nil || !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", w.root)
	}
	if w.fsw != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

// Stop releases resources and closes Events. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.debouncer.Stop()
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
	})
	return nil
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleFsnotify(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	if err := w.poller.scan(nil); err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			if err := w.poller.scan(w.debouncer.Add); err != nil {
				w.emitError(err)
			}
		}
	}
}

func (w *Watcher) handleFsnotify(ev fsnotify.Event) {
	var op Operation
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = OpCreate
	case ev.Op.Has(fsnotify.Write):
		op = OpModify
	case ev.Op.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Op.Has(fsnotify.Rename):
		op = OpRename
	default:
		return // chmod
	}

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	} else if op == OpDelete || op == OpRename {
		// A vanished watched directory still counts as a directory.
		isDir = slices.Contains(w.fsw.WatchList(), ev.Name)
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	event, ok := w.relevant(rel, isDir, op)
	if !ok {
		return
	}
	if op == OpCreate && isDir {
		// Files moved in with the directory produce no events of their own;
		// the directory event itself triggers the reindex.
		if err := w.addRecursive(ev.Name); err != nil {
			w.emitError(err)
		}
	}
	w.debouncer.Add(event)
}

// relevant classifies a change. Directory creates, deletes and renames
// matter unless excluded; directory writes never do.
func (w *Watcher) relevant(rel string, isDir bool, op Operation) (FileEvent, bool) {
	if rel == "." || rel == "" {
		return FileEvent{}, false
	}
	event := FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()}

	if !isDir && slices.Contains(ConfigFiles, filepath.Base(rel)) {
		event.Operation = OpConfigChange
		return event, true
	}
	if isDir {
		return event, op != OpModify && !w.filter.Excluded(rel, true)
	}
	return event, w.filter.Accepts(rel)
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil // Skip entries we can't access
		}
		rel, _ := filepath.Rel(w.root, path)
		if rel != "." && w.filter.Excluded(filepath.ToSlash(rel), true) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) emitError(err error) {
	select {
	case <-w.stopCh:
	case w.errors <- err:
	default:
	}
}
