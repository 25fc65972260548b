package store

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Options configure a storage backend.
type Options struct {
	// KeywordBackend selects the local keyword index (sqlite or bleve).
	KeywordBackend KeywordBackend

	// MinIndexRows is the collection size below which BuildIndexes is skipped.
	MinIndexRows int

	// HNSW tunes the local ANN graph.
	HNSW HNSWConfig

	// RecordCacheSize bounds the local record LRU cache.
	RecordCacheSize int
}

// DefaultOptions returns recommended settings. Zero fields other than
// MinIndexRows fall back to these when a backend is opened.
func DefaultOptions() Options {
	return Options{
		KeywordBackend:  KeywordBackendSQLite,
		MinIndexRows:    256,
		HNSW:            DefaultHNSWConfig(),
		RecordCacheSize: 4096,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.KeywordBackend == "" {
		o.KeywordBackend = d.KeywordBackend
	}
	if o.MinIndexRows < 0 {
		o.MinIndexRows = 0
	}
	if o.HNSW.M == 0 {
		o.HNSW.M = d.HNSW.M
	}
	if o.HNSW.EfSearch == 0 {
		o.HNSW.EfSearch = d.HNSW.EfSearch
	}
	if o.RecordCacheSize <= 0 {
		o.RecordCacheSize = d.RecordCacheSize
	}
	return o
}

var collectionNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateCollection checks that a collection name is a safe SQL identifier.
func ValidateCollection(name string) error {
	if !collectionNameRegex.MatchString(name) {
		return fmt.Errorf("invalid collection name %q: use letters, digits and underscores", name)
	}
	return nil
}

// Open connects to the backend addressed by uri and binds it to collection.
//
// Supported URIs:
//   - "postgres://..." or "postgresql://...": PostgreSQL with pgvector
//   - "local://<dir>", "file://<dir>" or a bare path: embedded SQLite store
//   - "memory://": in-memory local store
func Open(ctx context.Context, uri, collection string, opts Options) (Backend, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}

	scheme, rest := splitScheme(uri)
	switch scheme {
	case "postgres", "postgresql":
		return NewPostgresBackend(ctx, uri, collection, opts)
	case "memory":
		return NewLocalBackend(ctx, "", collection, opts)
	case "local", "file", "":
		if rest == "" {
			return nil, fmt.Errorf("store uri %q has no path", uri)
		}
		return NewLocalBackend(ctx, rest, collection, opts)
	default:
		return nil, fmt.Errorf("unsupported store uri scheme %q", scheme)
	}
}

func splitScheme(uri string) (string, string) {
	i := strings.Index(uri, "://")
	if i < 0 {
		return "", uri
	}
	scheme := strings.ToLower(uri[:i])
	rest := uri[i+3:]
	if scheme == "file" {
		if u, err := url.Parse(uri); err == nil && u.Path != "" {
			rest = u.Host + u.Path
		}
	}
	return scheme, rest
}
