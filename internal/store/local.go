package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// LocalBackend stores a collection in an embedded SQLite database:
// records in "<collection>_records", a keyword index (FTS5 or bleve) and a
// coder/hnsw graph persisted as "<collection>.hnsw".
//
// Until BuildIndexes succeeds, vector search is an exact brute-force scan.
type LocalBackend struct {
	db         *sql.DB
	dir        string
	collection string
	opts       Options

	records *lru.Cache[string, *Record]
	keyword KeywordIndex

	mu     sync.RWMutex // guards exists, dims, ann
	exists bool
	dims   int
	ann    *hnswIndex
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend opens (or creates) the store database under dir.
// An empty dir keeps everything in memory, which tests use.
func NewLocalBackend(ctx context.Context, dir, collection string, opts Options) (*LocalBackend, error) {
	opts = opts.withDefaults()

	dsn := ":memory:"
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = filepath.Join(dir, "store.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: required for :memory: and keeps writes serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS collections (
			name             TEXT PRIMARY KEY,
			dims             INTEGER NOT NULL,
			generation       INTEGER NOT NULL DEFAULT 0,
			graph_generation INTEGER NOT NULL DEFAULT -1
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	cache, err := lru.New[string, *Record](opts.RecordCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}

	b := &LocalBackend{
		db:         db,
		dir:        dir,
		collection: collection,
		opts:       opts,
		records:    cache,
	}

	switch opts.KeywordBackend {
	case KeywordBackendBleve:
		path := ""
		if dir != "" {
			path = filepath.Join(dir, collection+".bleve")
		}
		if b.keyword, err = NewBleveBM25Index(path); err != nil {
			_ = db.Close()
			return nil, err
		}
	default:
		b.keyword = NewSQLiteBM25Index(db, collection)
	}

	if err := b.loadState(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *LocalBackend) recordsTable() string { return quoteIdent(b.collection + "_records") }

func (b *LocalBackend) graphPath() string {
	if b.dir == "" {
		return ""
	}
	return filepath.Join(b.dir, b.collection+".hnsw")
}

// loadState restores collection metadata and, when it is current, the
// persisted ANN graph.
func (b *LocalBackend) loadState(ctx context.Context) error {
	var dims, generation, graphGeneration int64
	err := b.db.QueryRowContext(ctx,
		`SELECT dims, generation, graph_generation FROM collections WHERE name = ?`,
		b.collection).Scan(&dims, &generation, &graphGeneration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read collection state: %w", err)
	}

	b.exists = true
	b.dims = int(dims)

	if b.opts.KeywordBackend == KeywordBackendBleve {
		// A missing bleve directory is recreated empty; BuildIndexes repopulates it.
		if err := b.keyword.Create(ctx); err != nil {
			return err
		}
	}

	path := b.graphPath()
	if path == "" || generation != graphGeneration {
		return nil
	}
	keyMap, err := b.liveKeys(ctx)
	if err != nil {
		return err
	}
	ann, err := loadHNSWIndex(b.opts.HNSW, path, keyMap)
	if err != nil {
		slog.Warn("hnsw_index_discarded",
			slog.String("collection", b.collection),
			slog.String("error", err.Error()))
		return nil
	}
	b.ann = ann
	return nil
}

func (b *LocalBackend) liveKeys(ctx context.Context) (map[uint64]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT seq, id FROM "+b.recordsTable())
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	keyMap := make(map[uint64]string)
	for rows.Next() {
		var seq int64
		var id string
		if err := rows.Scan(&seq, &id); err != nil {
			return nil, err
		}
		keyMap[uint64(seq)] = id
	}
	return keyMap, rows.Err()
}

func (b *LocalBackend) Collection() string { return b.collection }

func (b *LocalBackend) Exists(ctx context.Context) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exists, nil
}

func (b *LocalBackend) notInitialized() error {
	return amanerrors.New(amanerrors.ErrCodeNotInitialized,
		fmt.Sprintf("collection %q has not been created", b.collection), nil).
		WithSuggestion("Run 'amanrag index --full' to build the collection")
}

// Create makes an empty collection.
func (b *LocalBackend) Create(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("invalid vector dimensions %d", dims)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	table := b.recordsTable()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq          INTEGER PRIMARY KEY,
			id           TEXT NOT NULL UNIQUE,
			content_hash TEXT NOT NULL,
			citation_id  TEXT NOT NULL,
			source       TEXT NOT NULL,
			chunk_index  INTEGER NOT NULL,
			content      TEXT NOT NULL,
			vector       BLOB NOT NULL
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(source)`,
			quoteIdent(b.collection+"_records_source"), table),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections(name, dims) VALUES (?, ?)`,
		b.collection, dims); err != nil {
		return fmt.Errorf("failed to register collection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if err := b.keyword.Create(ctx); err != nil {
		return err
	}

	b.exists = true
	b.dims = dims
	return nil
}

// Drop removes the collection, its keyword index and graph file.
func (b *LocalBackend) Drop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+b.recordsTable()); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM collections WHERE name = ?`, b.collection); err != nil {
		return fmt.Errorf("failed to unregister collection: %w", err)
	}
	if err := b.keyword.Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop keyword index: %w", err)
	}
	if path := b.graphPath(); path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove graph: %w", err)
		}
	}

	b.records.Purge()
	b.exists = false
	b.dims = 0
	b.ann = nil
	return nil
}

// Insert writes records in one transaction, then indexes their text. If
// keyword indexing fails the committed rows are deleted again.
func (b *LocalBackend) Insert(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	b.mu.RLock()
	exists, dims := b.exists, b.dims
	b.mu.RUnlock()
	if !exists {
		return b.notInitialized()
	}

	for _, r := range records {
		if len(r.Vector) != dims {
			return ErrDimensionMismatch{Expected: dims, Got: len(r.Vector)}
		}
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s(id, content_hash, citation_id, source, chunk_index, content, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, b.recordsTable()))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	keys := make([]uint64, len(records))
	ids := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		res, err := stmt.ExecContext(ctx, r.ID, r.ContentHash, r.CitationID, r.Source,
			r.ChunkIndex, r.Content, encodeVector(r.Vector))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
			}
			return fmt.Errorf("failed to insert %s: %w", r.ID, err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return err
		}
		keys[i], ids[i], vectors[i] = uint64(seq), r.ID, r.Vector
	}

	if err := b.bumpGeneration(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	docs := make([]*Document, len(records))
	for i, r := range records {
		docs[i] = &Document{ID: r.ID, Content: r.Content}
	}
	if err := b.keyword.Index(ctx, docs); err != nil {
		// Committed rows must not outlive a failed keyword index.
		if derr := b.Delete(context.WithoutCancel(ctx), ids); derr != nil {
			slog.Warn("insert_rollback_failed", slog.Int("records", len(ids)), slog.String("error", derr.Error()))
		}
		return fmt.Errorf("failed to index keywords: %w", err)
	}

	b.mu.RLock()
	ann := b.ann
	b.mu.RUnlock()
	if ann != nil {
		ann.add(keys, ids, vectors)
	}
	return nil
}

// Delete removes records by ID. Unknown IDs are ignored.
func (b *LocalBackend) Delete(ctx context.Context, ids []string) error {
	b.mu.RLock()
	exists, ann := b.exists, b.ann
	b.mu.RUnlock()
	if !exists {
		return b.notInitialized()
	}
	if len(ids) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders, args := inClause(ids)
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		"SELECT seq FROM %s WHERE id IN (%s)", b.recordsTable(), placeholders), args...)
	if err != nil {
		return fmt.Errorf("failed to look up records: %w", err)
	}
	var keys []uint64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			rows.Close()
			return err
		}
		keys = append(keys, uint64(seq))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE id IN (%s)", b.recordsTable(), placeholders), args...); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if err := b.bumpGeneration(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	for _, id := range ids {
		b.records.Remove(id)
	}
	if ann != nil {
		ann.remove(keys)
	}
	return b.keyword.Delete(ctx, ids)
}

func (b *LocalBackend) bumpGeneration(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE collections SET generation = generation + 1 WHERE name = ?`, b.collection)
	if err != nil {
		return fmt.Errorf("failed to update collection state: %w", err)
	}
	return nil
}

// VectorSearch uses the ANN graph when built, otherwise an exact scan.
func (b *LocalBackend) VectorSearch(ctx context.Context, vec []float32, k int) ([]Match, error) {
	b.mu.RLock()
	exists, dims, ann := b.exists, b.dims, b.ann
	b.mu.RUnlock()
	if !exists {
		return nil, b.notInitialized()
	}
	if len(vec) != dims {
		return nil, ErrDimensionMismatch{Expected: dims, Got: len(vec)}
	}
	if k <= 0 {
		return []Match{}, nil
	}

	if ann == nil {
		return b.bruteForceSearch(ctx, vec, k)
	}

	ids, distances := ann.search(vec, k)
	recs, err := b.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(ids))
	for i, id := range ids {
		if r, ok := recs[id]; ok {
			matches = append(matches, Match{Record: r, Distance: distances[i]})
		}
	}
	return matches, nil
}

func (b *LocalBackend) bruteForceSearch(ctx context.Context, vec []float32, k int) ([]Match, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT id, vector FROM "+b.recordsTable())
	if err != nil {
		return nil, fmt.Errorf("vector scan failed: %w", err)
	}

	type scored struct {
		id       string
		distance float64
	}
	var all []scored
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			rows.Close()
			return nil, err
		}
		all = append(all, scored{id: id, distance: CosineDistance(vec, decodeVector(blob))})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].distance != all[j].distance {
			return all[i].distance < all[j].distance
		}
		return all[i].id < all[j].id
	})
	if len(all) > k {
		all = all[:k]
	}

	ids := make([]string, len(all))
	for i, s := range all {
		ids[i] = s.id
	}
	recs, err := b.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(all))
	for _, s := range all {
		if r, ok := recs[s.id]; ok {
			matches = append(matches, Match{Record: r, Distance: s.distance})
		}
	}
	return matches, nil
}

// KeywordSearch delegates to the keyword index and hydrates records.
func (b *LocalBackend) KeywordSearch(ctx context.Context, text string, k int) ([]Match, error) {
	b.mu.RLock()
	exists := b.exists
	b.mu.RUnlock()
	if !exists {
		return nil, b.notInitialized()
	}

	results, err := b.keyword.Search(ctx, text, k)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.DocID
	}
	recs, err := b.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		if rec, ok := recs[r.DocID]; ok {
			matches = append(matches, Match{Record: rec, Score: r.Score})
		}
	}
	return matches, nil
}

// fetch loads records by ID through the LRU cache.
func (b *LocalBackend) fetch(ctx context.Context, ids []string) (map[string]*Record, error) {
	out := make(map[string]*Record, len(ids))
	var missing []string
	for _, id := range ids {
		if r, ok := b.records.Get(id); ok {
			out[id] = r
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	placeholders, args := inClause(missing)
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, content_hash, citation_id, source, chunk_index, content, vector
		FROM %s WHERE id IN (%s)`, b.recordsTable(), placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r := &Record{}
		var blob []byte
		if err := rows.Scan(&r.ID, &r.ContentHash, &r.CitationID, &r.Source,
			&r.ChunkIndex, &r.Content, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Vector = decodeVector(blob)
		b.records.Add(r.ID, r)
		out[r.ID] = r
	}
	return out, rows.Err()
}

// BuildIndexes rebuilds the HNSW graph when it is missing or out of date and
// optimizes the keyword index. Small collections stay on exact search.
func (b *LocalBackend) BuildIndexes(ctx context.Context) (bool, error) {
	b.mu.RLock()
	exists := b.exists
	b.mu.RUnlock()
	if !exists {
		return false, b.notInitialized()
	}

	count, err := b.Count(ctx)
	if err != nil {
		return false, err
	}
	if count < b.opts.MinIndexRows {
		slog.Debug("index_build_skipped",
			slog.String("collection", b.collection),
			slog.Int("rows", count),
			slog.Int("min_rows", b.opts.MinIndexRows))
		return false, nil
	}

	var generation, graphGeneration int64
	if err := b.db.QueryRowContext(ctx,
		`SELECT generation, graph_generation FROM collections WHERE name = ?`,
		b.collection).Scan(&generation, &graphGeneration); err != nil {
		return false, fmt.Errorf("failed to read collection state: %w", err)
	}

	b.mu.RLock()
	current := b.ann != nil && generation == graphGeneration
	b.mu.RUnlock()
	if current {
		return true, nil
	}

	ann, err := b.buildGraph(ctx)
	if err != nil {
		return false, err
	}
	if path := b.graphPath(); path != "" {
		if err := ann.save(path); err != nil {
			return false, err
		}
	}
	if _, err := b.db.ExecContext(ctx,
		`UPDATE collections SET graph_generation = ? WHERE name = ?`,
		generation, b.collection); err != nil {
		return false, fmt.Errorf("failed to record index state: %w", err)
	}
	if err := b.keyword.Optimize(ctx); err != nil {
		return false, fmt.Errorf("failed to optimize keyword index: %w", err)
	}

	b.mu.Lock()
	b.ann = ann
	b.mu.Unlock()

	slog.Debug("index_built",
		slog.String("collection", b.collection),
		slog.Int("rows", count))
	return true, nil
}

func (b *LocalBackend) buildGraph(ctx context.Context) (*hnswIndex, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT seq, id, vector FROM "+b.recordsTable()+" ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to scan vectors: %w", err)
	}
	defer rows.Close()

	var (
		keys    []uint64
		ids     []string
		vectors [][]float32
	)
	for rows.Next() {
		var seq int64
		var id string
		var blob []byte
		if err := rows.Scan(&seq, &id, &blob); err != nil {
			return nil, err
		}
		keys = append(keys, uint64(seq))
		ids = append(ids, id)
		vectors = append(vectors, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buildHNSWIndex(b.opts.HNSW, keys, ids, vectors), nil
}

func (b *LocalBackend) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	exists := b.exists
	b.mu.RUnlock()
	if !exists {
		return 0, b.notInitialized()
	}

	var n int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+b.recordsTable()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database.
func (b *LocalBackend) Close() error {
	_ = b.keyword.Close()
	_, _ = b.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return b.db.Close()
}

// CosineDistance is 1 - cos(a, b). Zero vectors are maximally distant.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// encodeVector stores float32s little-endian.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
