package mcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/query"
)

func TestToAskOptions(t *testing.T) {
	opts, err := toAskOptions(AskInput{
		Question:     "q",
		Sources:      []string{"a.md"},
		SourcePrefix: "docs/",
		MustInclude:  []string{"refund"},
	})

	require.NoError(t, err)
	assert.Equal(t, query.Filters{Sources: []string{"a.md"}, SourcePrefix: "docs/"}, opts.Filters)
	assert.Equal(t, query.MustIncludeAll, opts.MustIncludeMode, "empty mode means all")
	assert.False(t, opts.Debug)
}

func TestToAskOptions_RejectsUnknownMode(t *testing.T) {
	_, err := toAskOptions(AskInput{MustIncludeMode: "most"})

	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))
}

func TestToReindexOutput(t *testing.T) {
	out := toReindexOutput(&index.Result{
		Mode:          index.ModeFull,
		ChunksCount:   5,
		Added:         5,
		Duration:      2 * time.Second,
		DeleteWarning: "w",
	})

	assert.Equal(t, ReindexOutput{Mode: "full", ChunksCount: 5, Added: 5, DurationMS: 2000, DeleteWarning: "w"}, out)
}

func TestToIndexInfo(t *testing.T) {
	info := toIndexInfo(&index.Status{Collection: "kb", ManifestChunks: 4, StoreRows: 3, Initialized: true, Locked: true})

	assert.Equal(t, IndexInfo{Collection: "kb", ManifestChunks: 4, StoreRows: 3, Initialized: true, Locked: true}, info)
}
