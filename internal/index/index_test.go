package index

import (
	"context"
	"testing"

	"github.com/ar10000/sitechat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{1, 0}), 1e-6)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)

	// Scaling does not change the angle.
	assert.InDelta(t, 1.0, Cosine([]float32{2, 2}, []float32{5, 5}), 1e-6)
}

func TestCosine_DegenerateInputs(t *testing.T) {
	// Mismatched lengths and zero-norm vectors score 0 instead of erroring.
	assert.Zero(t, Cosine([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Zero(t, Cosine(nil, nil))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, Cosine([]float32{1, 0}, []float32{0, 0}))
}

func testChunks() []domain.EmbeddedChunk {
	return []domain.EmbeddedChunk{
		{Content: "pricing", Embedding: []float32{1, 0}, Filename: "pricing.md"},
		{Content: "contact", Embedding: []float32{0, 1}, Filename: "contact.md"},
		{Content: "pending", Embedding: nil, Filename: "pending.md"},
		{Content: "mixed", Embedding: []float32{0.7, 0.7}, Filename: "about.md"},
	}
}

func TestIndex_Search_RanksByDescendingSimilarity(t *testing.T) {
	ix := NewFromChunks(testChunks())

	results := ix.Search([]float32{1, 0}, 3)

	require.Len(t, results, 3)
	assert.Equal(t, "pricing", results[0].Content)
	assert.Equal(t, "mixed", results[1].Content)
	assert.Equal(t, "contact", results[2].Content)
}

func TestIndex_Search_ExcludesChunksWithoutEmbeddings(t *testing.T) {
	ix := NewFromChunks(testChunks())

	results := ix.Search([]float32{1, 0}, 10)

	require.Len(t, results, 3)
	for _, chunk := range results {
		assert.NotEqual(t, "pending", chunk.Content)
	}
}

func TestIndex_Search_TieKeepsOriginalOrder(t *testing.T) {
	ix := NewFromChunks([]domain.EmbeddedChunk{
		{Content: "first", Embedding: []float32{1, 0}},
		{Content: "second", Embedding: []float32{1, 0}},
	})

	results := ix.Search([]float32{1, 0}, 2)

	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Content)
	assert.Equal(t, "second", results[1].Content)
}

func TestIndex_Search_EmptyQueryOrZeroK(t *testing.T) {
	ix := NewFromChunks(testChunks())

	assert.Nil(t, ix.Search(nil, 3))
	assert.Nil(t, ix.Search([]float32{1, 0}, 0))
}

func TestIndex_First(t *testing.T) {
	ix := NewFromChunks(testChunks())

	results := ix.First(2)
	require.Len(t, results, 2)
	assert.Equal(t, "pricing", results[0].Content)
	assert.Equal(t, "contact", results[1].Content)

	// k larger than the index clamps; the unembedded chunk is included
	// since no scoring happens.
	assert.Len(t, ix.First(100), 4)
	assert.Nil(t, ix.First(0))
}

func TestIndex_Ready(t *testing.T) {
	assert.False(t, New("missing.json").Ready())
	assert.False(t, NewFromChunks(nil).Ready())
	assert.True(t, NewFromChunks(testChunks()).Ready())
}

func TestIndex_Stats(t *testing.T) {
	total, embedded := NewFromChunks(testChunks()).Stats()

	assert.Equal(t, 4, total)
	assert.Equal(t, 3, embedded)
}

func TestIndex_Initialize_MissingArtifact(t *testing.T) {
	ix := New(t.TempDir() + "/nope.json")

	err := ix.Initialize(context.Background())

	assert.Error(t, err)
	assert.False(t, ix.Ready())
}

func TestIndex_Initialize_LoadsArtifact(t *testing.T) {
	path := t.TempDir() + "/index.json"
	require.NoError(t, WriteArtifact(path, testChunks()))

	ix := New(path)
	require.NoError(t, ix.Initialize(context.Background()))

	assert.True(t, ix.Ready())
	assert.Equal(t, 4, ix.Len())
}
