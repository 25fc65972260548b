package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// PostgreSQL error codes the backend maps to domain errors.
const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
)

// PostgresBackend stores a collection as a pgvector table with a generated
// tsvector column for keyword search.
type PostgresBackend struct {
	pool         *pgxpool.Pool
	collection   string
	minIndexRows int
	q            pgQueries
}

var _ Backend = (*PostgresBackend)(nil)

// NewPostgresBackend connects a pool to uri.
func NewPostgresBackend(ctx context.Context, uri, collection string, opts Options) (*PostgresBackend, error) {
	opts = opts.withDefaults()

	pool, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, amanerrors.BackendError("postgres is unreachable", err).
			WithSuggestion("Check store.uri and that the database is running")
	}

	return &PostgresBackend{
		pool:         pool,
		collection:   collection,
		minIndexRows: opts.MinIndexRows,
		q:            newPGQueries(collection),
	}, nil
}

// pgQueries holds the SQL for one collection table.
type pgQueries struct {
	table         string
	exists        string
	drop          string
	insert        string
	deleteByIDs   string
	vectorSearch  string
	keywordSearch string
	count         string
	vectorIndex   string
	keywordIndex  string
}

func newPGQueries(collection string) pgQueries {
	table := pgx.Identifier{collection}.Sanitize()
	cols := "id, content_hash, citation_id, source, chunk_index, content, embedding::text"
	return pgQueries{
		table:  table,
		exists: `SELECT to_regclass($1) IS NOT NULL`,
		drop:   "DROP TABLE IF EXISTS " + table,
		insert: "INSERT INTO " + table +
			" (id, content_hash, citation_id, source, chunk_index, content, embedding)" +
			" VALUES ($1, $2, $3, $4, $5, $6, $7)",
		deleteByIDs: "DELETE FROM " + table + " WHERE id = ANY($1)",
		vectorSearch: "SELECT " + cols + ", embedding <=> $1 AS distance" +
			" FROM " + table +
			" ORDER BY distance ASC, id ASC LIMIT $2",
		// plainto_tsquery ANDs its terms; swapping to OR keeps natural
		// language questions from requiring every word.
		keywordSearch: "WITH q AS (SELECT replace(plainto_tsquery('english', $1)::text, '&', '|')::tsquery AS query)" +
			" SELECT " + cols + ", ts_rank(content_tsv, q.query) AS rank" +
			" FROM " + table + ", q" +
			" WHERE content_tsv @@ q.query" +
			" ORDER BY rank DESC, id ASC LIMIT $2",
		count:        "SELECT COUNT(*) FROM " + table,
		vectorIndex:  "CREATE INDEX IF NOT EXISTS " + pgx.Identifier{collection + "_embedding_hnsw"}.Sanitize() + " ON " + table + " USING hnsw (embedding vector_cosine_ops)",
		keywordIndex: "CREATE INDEX IF NOT EXISTS " + pgx.Identifier{collection + "_content_tsv_gin"}.Sanitize() + " ON " + table + " USING gin (content_tsv)",
	}
}

func (q pgQueries) create(dims int) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id           TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			citation_id  TEXT NOT NULL,
			source       TEXT NOT NULL,
			chunk_index  INTEGER NOT NULL,
			content      TEXT NOT NULL,
			embedding    vector(%d) NOT NULL,
			content_tsv  tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
		)`, q.table, dims),
	}
}

func (p *PostgresBackend) Collection() string { return p.collection }

func (p *PostgresBackend) Exists(ctx context.Context) (bool, error) {
	var ok bool
	if err := p.pool.QueryRow(ctx, p.q.exists, p.q.table).Scan(&ok); err != nil {
		return false, p.mapError("check collection", err)
	}
	return ok, nil
}

func (p *PostgresBackend) Create(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("invalid vector dimensions %d", dims)
	}
	for _, stmt := range p.q.create(dims) {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return p.mapError("create collection", err)
		}
	}
	return nil
}

func (p *PostgresBackend) Drop(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, p.q.drop); err != nil {
		return p.mapError("drop collection", err)
	}
	return nil
}

// Insert writes all records in one transaction.
func (p *PostgresBackend) Insert(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return p.mapError("begin insert", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(p.q.insert, r.ID, r.ContentHash, r.CitationID, r.Source,
			r.ChunkIndex, r.Content, pgvector.NewVector(r.Vector))
	}

	br := tx.SendBatch(ctx, batch)
	for _, r := range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if isPGCode(err, pgUniqueViolation) {
				return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
			}
			return p.mapError("insert "+r.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return p.mapError("insert", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return p.mapError("commit insert", err)
	}
	return nil
}

func (p *PostgresBackend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return p.requireExists(ctx)
	}
	if _, err := p.pool.Exec(ctx, p.q.deleteByIDs, ids); err != nil {
		return p.mapError("delete", err)
	}
	return nil
}

func (p *PostgresBackend) VectorSearch(ctx context.Context, vec []float32, k int) ([]Match, error) {
	rows, err := p.pool.Query(ctx, p.q.vectorSearch, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, p.mapError("vector search", err)
	}
	return p.scanMatches(rows, func(m *Match, v float64) { m.Distance = v })
}

func (p *PostgresBackend) KeywordSearch(ctx context.Context, text string, k int) ([]Match, error) {
	rows, err := p.pool.Query(ctx, p.q.keywordSearch, text, k)
	if err != nil {
		return nil, p.mapError("keyword search", err)
	}
	return p.scanMatches(rows, func(m *Match, v float64) { m.Score = v })
}

func (p *PostgresBackend) scanMatches(rows pgx.Rows, set func(*Match, float64)) ([]Match, error) {
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		r := &Record{}
		var embedding string
		var value float64
		if err := rows.Scan(&r.ID, &r.ContentHash, &r.CitationID, &r.Source,
			&r.ChunkIndex, &r.Content, &embedding, &value); err != nil {
			return nil, p.mapError("scan", err)
		}
		var v pgvector.Vector
		if err := v.Scan(embedding); err != nil {
			return nil, fmt.Errorf("failed to parse embedding for %s: %w", r.ID, err)
		}
		r.Vector = v.Slice()

		m := Match{Record: r}
		set(&m, value)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, p.mapError("row iteration", err)
	}
	return matches, nil
}

// BuildIndexes creates the HNSW and GIN indexes once the table is large
// enough for them to pay off. CREATE INDEX IF NOT EXISTS makes this idempotent.
func (p *PostgresBackend) BuildIndexes(ctx context.Context) (bool, error) {
	n, err := p.Count(ctx)
	if err != nil {
		return false, err
	}
	if n < p.minIndexRows {
		return false, nil
	}
	for _, stmt := range []string{p.q.vectorIndex, p.q.keywordIndex} {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return false, p.mapError("build index", err)
		}
	}
	return true, nil
}

func (p *PostgresBackend) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, p.q.count).Scan(&n); err != nil {
		return 0, p.mapError("count", err)
	}
	return n, nil
}

func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresBackend) requireExists(ctx context.Context) error {
	ok, err := p.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return p.notInitialized()
	}
	return nil
}

func (p *PostgresBackend) notInitialized() error {
	return amanerrors.New(amanerrors.ErrCodeNotInitialized,
		fmt.Sprintf("collection %q has not been created", p.collection), nil).
		WithSuggestion("Run 'amanrag index --full' to build the collection")
}

func (p *PostgresBackend) mapError(op string, err error) error {
	if isPGCode(err, pgUndefinedTable) {
		e := amanerrors.New(amanerrors.ErrCodeNotInitialized,
			fmt.Sprintf("collection %q has not been created", p.collection), err)
		return e.WithSuggestion("Run 'amanrag index --full' to build the collection")
	}
	return amanerrors.BackendError(fmt.Sprintf("postgres %s failed", op), err).
		WithDetail("collection", p.collection)
}

func isPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
