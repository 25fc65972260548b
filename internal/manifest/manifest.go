// Package manifest persists the set of chunk IDs currently indexed and
// computes the add/delete delta between two such sets.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/fsutil"
)

// FileName is the manifest's file name inside the data directory.
const FileName = "manifest.json"

const formatVersion = 1

// IDSet is an unordered set of chunk IDs.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s IDSet) Add(id string) { s[id] = struct{}{} }

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the IDs in ascending order.
func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Delta is the difference between a previous and a current ID set.
type Delta struct {
	ToAdd    []string
	ToDelete []string
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToDelete) == 0
}

// Diff returns cur−prev as ToAdd and prev−cur as ToDelete, each sorted.
func Diff(prev, cur IDSet) Delta {
	d := Delta{ToAdd: []string{}, ToDelete: []string{}}
	for id := range cur {
		if !prev.Has(id) {
			d.ToAdd = append(d.ToAdd, id)
		}
	}
	for id := range prev {
		if !cur.Has(id) {
			d.ToDelete = append(d.ToDelete, id)
		}
	}
	sort.Strings(d.ToAdd)
	sort.Strings(d.ToDelete)
	return d
}

type fileFormat struct {
	Version int      `json:"version"`
	IDs     []string `json:"ids"`
}

// Manifest is the durable record of which chunk IDs are indexed.
type Manifest struct {
	path string
}

// New returns a manifest stored at path.
func New(path string) *Manifest {
	return &Manifest{path: path}
}

// Path returns the manifest file location.
func (m *Manifest) Path() string {
	return m.path
}

// Load reads the persisted ID set. A missing file is a first run and yields
// an empty set.
func (m *Manifest) Load() (IDSet, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return IDSet{}, nil
	}
	if err != nil {
		return nil, amanerrors.New(amanerrors.ErrCodeFilePermission, "failed to read manifest", err).
			WithDetail("path", m.path)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, amanerrors.New(amanerrors.ErrCodeInternal, "manifest is corrupted", err).
			WithDetail("path", m.path).
			WithSuggestion("Delete the manifest and run 'amanrag index --full'")
	}
	if f.Version > formatVersion {
		return nil, fmt.Errorf("manifest version %d is newer than supported version %d", f.Version, formatVersion)
	}
	return NewIDSet(f.IDs...), nil
}

// Save atomically replaces the persisted ID set.
func (m *Manifest) Save(ids IDSet) error {
	data, err := json.MarshalIndent(fileFormat{Version: formatVersion, IDs: ids.Sorted()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := fsutil.WriteFileAtomic(m.path, data, 0o644); err != nil {
		return amanerrors.New(amanerrors.ErrCodeFilePermission, "failed to save manifest", err).
			WithDetail("path", m.path)
	}
	return nil
}
