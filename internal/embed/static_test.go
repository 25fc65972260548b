package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Basic Embedding
// ============================================================================

func TestStaticEmbedder_Embed_ReturnsUnitVectorsInOrder(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	vecs, err := embedder.Embed(context.Background(), []string{"refund policy", "shipping times"})

	require.NoError(t, err)
	require.Len(t, vecs, 2)
	for _, v := range vecs {
		assert.Len(t, v, StaticDimensions)
		assert.InDelta(t, 1.0, vectorMagnitude(v), 0.001, "vector should be normalized to unit length")
	}
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestStaticEmbedder_Embed_IsDeterministicAcrossInstances(t *testing.T) {
	a := NewStaticEmbedder()
	b := NewStaticEmbedder()
	text := []string{"Refunds are issued within ten days of the request."}

	va, err := a.Embed(context.Background(), text)
	require.NoError(t, err)
	vb, err := b.Embed(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, va, vb)
}

func TestStaticEmbedder_Embed_EmptyInputIsZeroVector(t *testing.T) {
	embedder := NewStaticEmbedderWithDims(32)

	vecs, err := embedder.Embed(context.Background(), []string{"", "  \t\n "})

	require.NoError(t, err)
	for _, v := range vecs {
		assert.Len(t, v, 32)
		for _, f := range v {
			assert.Equal(t, float32(0), f)
		}
	}
}

func TestStaticEmbedder_SimilarTextHasHigherSimilarity(t *testing.T) {
	embedder := NewStaticEmbedder()

	vecs, err := embedder.Embed(context.Background(), []string{
		"what is the refund policy",
		"the refund policy applies to annual plans",
		"shipping takes five business days",
	})
	require.NoError(t, err)

	related := cosineSimilarity(vecs[0], vecs[1])
	unrelated := cosineSimilarity(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
}

func TestStaticEmbedder_ClosedRejectsCalls(t *testing.T) {
	embedder := NewStaticEmbedder()
	require.NoError(t, embedder.Close())

	_, err := embedder.Embed(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestStaticEmbedder_ModelNameIncludesDims(t *testing.T) {
	assert.Equal(t, "static-256", NewStaticEmbedder().ModelName())
	assert.Equal(t, 64, NewStaticEmbedderWithDims(64).Dimensions())
}
