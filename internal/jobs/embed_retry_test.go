package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ar10000/sitechat/internal/domain"
)

type stubBatchEmbedder struct {
	err   error
	calls int
}

func (s *stubBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1}
	}
	return vectors, nil
}

func retryChunks() []domain.EmbeddedChunk {
	return []domain.EmbeddedChunk{
		{Content: "embedded", Embedding: []float32{1}},
		{Content: "missing one", Embedding: nil},
		{Content: "missing two", Embedding: []float32{}},
	}
}

func TestEmbeddingRetrier_Pending(t *testing.T) {
	retrier := NewEmbeddingRetrier(retryChunks(), &stubBatchEmbedder{}, 16, 3)

	assert.Equal(t, 2, retrier.Pending())
}

func TestEmbeddingRetrier_FillsMissingEmbeddings(t *testing.T) {
	chunks := retryChunks()
	embedder := &stubBatchEmbedder{}
	retrier := NewEmbeddingRetrier(chunks, embedder, 16, 3)

	err := retrier.ProcessJobs(context.Background())

	require.NoError(t, err)
	assert.Zero(t, retrier.Pending())
	for _, chunk := range chunks {
		assert.True(t, chunk.HasEmbedding())
	}
	// Already-embedded chunks are never re-sent.
	assert.Equal(t, 1, embedder.calls)
}

func TestEmbeddingRetrier_DrainedWhenNothingPending(t *testing.T) {
	chunks := []domain.EmbeddedChunk{{Content: "done", Embedding: []float32{1}}}
	retrier := NewEmbeddingRetrier(chunks, &stubBatchEmbedder{}, 16, 3)

	assert.ErrorIs(t, retrier.ProcessJobs(context.Background()), ErrDrained)
}

func TestEmbeddingRetrier_DrainedAfterSecondPass(t *testing.T) {
	retrier := NewEmbeddingRetrier(retryChunks(), &stubBatchEmbedder{}, 16, 3)

	require.NoError(t, retrier.ProcessJobs(context.Background()))
	assert.ErrorIs(t, retrier.ProcessJobs(context.Background()), ErrDrained)
}

func TestEmbeddingRetrier_GivesUpAfterMaxAttempts(t *testing.T) {
	embedder := &stubBatchEmbedder{err: errors.New("provider down")}
	retrier := NewEmbeddingRetrier(retryChunks(), embedder, 16, 2)

	assert.Error(t, retrier.ProcessJobs(context.Background()))
	assert.Error(t, retrier.ProcessJobs(context.Background()))
	// The attempt budget is spent; the retrier reports drained so the
	// worker loop can exit, leaving the chunks without vectors.
	assert.ErrorIs(t, retrier.ProcessJobs(context.Background()), ErrDrained)
	assert.Equal(t, 2, retrier.Pending())
}

func TestEmbeddingRetrier_BatchesLargePendingSets(t *testing.T) {
	var chunks []domain.EmbeddedChunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, domain.EmbeddedChunk{Content: "pending"})
	}
	embedder := &stubBatchEmbedder{}
	retrier := NewEmbeddingRetrier(chunks, embedder, 2, 3)

	require.NoError(t, retrier.ProcessJobs(context.Background()))

	assert.Zero(t, retrier.Pending())
	assert.Equal(t, 3, embedder.calls)
}
