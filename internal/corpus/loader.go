// Package corpus loads the documents to be indexed from a directory tree.
package corpus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// IgnoreFileName holds extra exclude patterns at the corpus root.
const IgnoreFileName = ".amanragignore"

// DefaultMaxFileSize skips files larger than 10 MiB.
const DefaultMaxFileSize int64 = 10 << 20

// DefaultExtensions are the file types read by default.
var DefaultExtensions = []string{".md", ".markdown", ".txt", ".pdf"}

// DefaultExclude is always applied before user patterns.
var DefaultExclude = []string{".git/", ".amanrag/", "node_modules/"}

// Document is one source file's extracted text.
type Document struct {
	Source string // Slash-separated path relative to the corpus root
	Text   string
}

// Options configures a Loader.
type Options struct {
	Dir         string
	Extensions  []string // Lower-case, with leading dot (default: DefaultExtensions)
	Exclude     []string // Gitignore-style patterns
	MaxFileSize int64    // Bytes (default: DefaultMaxFileSize)
}

// Loader walks a corpus directory.
type Loader struct {
	dir        string
	extensions []string
	exclude    *ExcludeMatcher
	maxSize    int64
}

// NewLoader creates a loader. The ignore file at the corpus root, if any,
// is read once here.
func NewLoader(opts Options) (*Loader, error) {
	if opts.Dir == "" {
		return nil, amanerrors.ConfigError("corpus directory is required", nil).
			WithSuggestion("set corpus.dir in .amanrag.yaml")
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve corpus dir: %w", err)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	normalized := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		normalized = append(normalized, e)
	}

	matcher := NewExcludeMatcher(DefaultExclude...)
	for _, p := range opts.Exclude {
		matcher.Add(p)
	}
	if err := matcher.AddFile(filepath.Join(dir, IgnoreFileName)); err != nil {
		slog.Warn("failed to read ignore file", slog.String("error", err.Error()))
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	return &Loader{dir: dir, extensions: normalized, exclude: matcher, maxSize: maxSize}, nil
}

// Dir returns the absolute corpus directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Accepts reports whether the file at rel would be loaded, judging by
// extension and exclude patterns only.
func (l *Loader) Accepts(rel string) bool {
	rel = filepath.ToSlash(rel)
	if !slices.Contains(l.extensions, strings.ToLower(filepath.Ext(rel))) {
		return false
	}
	return !l.exclude.Excluded(rel, false)
}

// Excluded reports whether rel is excluded by pattern.
func (l *Loader) Excluded(rel string, isDir bool) bool {
	return l.exclude.Excluded(filepath.ToSlash(rel), isDir)
}

// Load reads every accepted file, sorted by source. Unreadable files are
// logged and skipped; only a missing corpus directory is an error.
func (l *Loader) Load(ctx context.Context) ([]Document, error) {
	info, err := os.Stat(l.dir)
	if err != nil || !info.IsDir() {
		return nil, amanerrors.New(amanerrors.ErrCodeFileNotFound, "corpus directory not found: "+l.dir, err).
			WithSuggestion("check corpus.dir or pass --corpus")
	}

	var docs []Document
	err = filepath.WalkDir(l.dir, func(p string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if walkErr != nil {
			slog.Warn("corpus walk error", slog.String("path", p), slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(l.dir, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if l.exclude.Excluded(rel, true) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			slog.Debug("skipping non-regular file", slog.String("path", rel))
			return nil
		}
		if !l.Accepts(rel) {
			return nil
		}

		doc, ok := l.read(p, rel, d)
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(docs, func(a, b Document) int { return strings.Compare(a.Source, b.Source) })
	slog.Info("corpus_loaded", slog.String("dir", l.dir), slog.Int("documents", len(docs)))
	return docs, nil
}

func (l *Loader) read(abs, rel string, d fs.DirEntry) (Document, bool) {
	info, err := d.Info()
	if err != nil {
		slog.Warn("failed to stat file", slog.String("path", rel), slog.String("error", err.Error()))
		return Document{}, false
	}
	if info.Size() > l.maxSize {
		slog.Warn("skipping oversized file",
			slog.String("path", rel),
			slog.Int64("size", info.Size()),
			slog.Int64("max", l.maxSize))
		return Document{}, false
	}

	text, err := ReadFile(abs)
	if err != nil {
		slog.Warn("failed to read document", slog.String("path", rel), slog.String("error", err.Error()))
		return Document{}, false
	}
	if strings.TrimSpace(text) == "" {
		slog.Debug("skipping empty document", slog.String("path", rel))
		return Document{}, false
	}
	return Document{Source: rel, Text: text}, true
}

// ErrBinary is returned for text files that are not valid UTF-8.
var ErrBinary = errors.New("file is not valid UTF-8 text")

// ReadFile extracts text from one file according to its extension.
// Markdown loses its YAML frontmatter; PDFs are reduced to plain text.
func ReadFile(name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return readPDF(name)
	case ".md", ".markdown":
		text, err := readText(name)
		if err != nil {
			return "", err
		}
		return chunk.StripFrontmatter(text), nil
	default:
		return readText(name)
	}
}

func readText(name string) (string, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return "", ErrBinary
	}
	return string(data), nil
}

func readPDF(name string) (string, error) {
	f, r, err := pdf.Open(name)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
