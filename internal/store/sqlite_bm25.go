package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteBM25Index implements KeywordIndex with an FTS5 virtual table that
// lives in the same database as the collection's records.
type SQLiteBM25Index struct {
	db        *sql.DB
	table     string
	stopWords map[string]struct{}
}

var _ KeywordIndex = (*SQLiteBM25Index)(nil)

// NewSQLiteBM25Index binds an FTS5 index named "<collection>_fts" to db.
func NewSQLiteBM25Index(db *sql.DB, collection string) *SQLiteBM25Index {
	return &SQLiteBM25Index{
		db:        db,
		table:     quoteIdent(collection + "_fts"),
		stopWords: BuildStopWordMap(DefaultStopWords),
	}
}

// Create creates the FTS5 table. The porter stemmer lets "refunds" match "refund".
func (s *SQLiteBM25Index) Create(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(
			doc_id UNINDEXED,
			content,
			tokenize='porter unicode61'
		)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to create FTS table: %w", err)
	}
	return nil
}

func (s *SQLiteBM25Index) Drop(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.table)
	return err
}

// Index adds documents. Callers guarantee IDs are new.
func (s *SQLiteBM25Index) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(doc_id, content) VALUES (?, ?)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Content); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// Search ranks documents containing any query term with FTS5's bm25().
func (s *SQLiteBM25Index) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	terms := queryTerms(query, s.stopWords)
	if len(terms) == 0 || limit <= 0 {
		return []*KeywordResult{}, nil
	}

	// Quote every term so FTS5 operators in user text stay literal.
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	match := strings.Join(quoted, " OR ")

	// bm25() is negative, lower is better; doc_id breaks ties.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT doc_id, bm25(%[1]s) AS score
		FROM %[1]s
		WHERE %[1]s MATCH ?
		ORDER BY score, doc_id
		LIMIT ?`, s.table), match, limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []*KeywordResult
	for rows.Next() {
		var docID string
		var score float64
		if err := rows.Scan(&docID, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, &KeywordResult{DocID: docID, Score: -score})
	}

	return results, rows.Err()
}

// Delete removes documents. Unknown IDs are ignored.
func (s *SQLiteBM25Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := inClause(ids)
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE doc_id IN (%s)", s.table, placeholders), args...)
	if err != nil {
		return fmt.Errorf("failed to delete from FTS: %w", err)
	}
	return nil
}

// Optimize merges FTS5 b-tree segments.
func (s *SQLiteBM25Index) Optimize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %[1]s(%[1]s) VALUES('optimize')", s.table))
	return err
}

// Close is a no-op; the owning backend closes the database.
func (s *SQLiteBM25Index) Close() error {
	return nil
}

// inClause builds "?,?,?" and matching args for an IN list.
func inClause(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

// quoteIdent quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
