package watcher

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"time"
)

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// poller detects changes by rescanning the tree. Only paths the classifier
// accepts are tracked, so excluded directories are never walked.
type poller struct {
	root     string
	classify func(rel string, isDir bool, op Operation) (FileEvent, bool)
	state    map[string]fileSnapshot
}

func newPoller(root string, classify func(string, bool, Operation) (FileEvent, bool)) *poller {
	return &poller{root: root, classify: classify, state: make(map[string]fileSnapshot)}
}

// scan walks the tree and reports differences from the previous scan to
// emit. A nil emit only records the baseline.
func (p *poller) scan(emit func(FileEvent)) error {
	current := make(map[string]fileSnapshot, len(p.state))

	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if _, ok := p.classify(rel, true, OpCreate); !ok {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := p.classify(rel, false, OpModify); !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		snap := fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		current[rel] = snap

		if emit == nil {
			return nil
		}
		prev, seen := p.state[rel]
		switch {
		case !seen:
			p.report(emit, rel, OpCreate)
		case !prev.modTime.Equal(snap.modTime) || prev.size != snap.size:
			p.report(emit, rel, OpModify)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk directory for changes: %w", err)
	}

	if emit != nil {
		for rel := range p.state {
			if _, ok := current[rel]; !ok {
				p.report(emit, rel, OpDelete)
			}
		}
	}
	p.state = current
	return nil
}

func (p *poller) report(emit func(FileEvent), rel string, op Operation) {
	if event, ok := p.classify(rel, false, op); ok {
		emit(event)
	}
}
