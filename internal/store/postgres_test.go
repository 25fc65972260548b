package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPGQueries_QuoteTableAndUseCosineOperator(t *testing.T) {
	q := newPGQueries("docs")

	assert.Equal(t, `"docs"`, q.table)
	assert.Contains(t, q.vectorSearch, "embedding <=> $1 AS distance")
	assert.Contains(t, q.vectorSearch, "ORDER BY distance ASC, id ASC LIMIT $2")
	assert.Contains(t, q.keywordSearch, "ts_rank(content_tsv, q.query)")
	assert.Contains(t, q.keywordSearch, "plainto_tsquery('english', $1)")
	assert.Contains(t, q.deleteByIDs, "id = ANY($1)")
	assert.Contains(t, q.vectorIndex, "USING hnsw (embedding vector_cosine_ops)")
	assert.Contains(t, q.vectorIndex, "IF NOT EXISTS")
	assert.Contains(t, q.keywordIndex, "USING gin (content_tsv)")
}

func TestPGQueries_CreateDeclaresDimensions(t *testing.T) {
	stmts := newPGQueries("docs").create(768)

	assert.Equal(t, "CREATE EXTENSION IF NOT EXISTS vector", stmts[0])
	assert.Contains(t, stmts[1], "embedding    vector(768) NOT NULL")
	assert.Contains(t, stmts[1], "GENERATED ALWAYS AS (to_tsvector('english', content)) STORED")
}
