package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/ar10000/sitechat/internal/domain"
)

// BatchEmbedder generates one vector per input text, order-preserving.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingRetrier re-embeds chunks whose first-pass embedding failed. It
// mutates the chunk slice in place and reports ErrDrained once every chunk
// has a vector or the attempt budget is spent. Chunks that never embed stay
// in the artifact with empty vectors, excluded from search.
type EmbeddingRetrier struct {
	chunks      []domain.EmbeddedChunk
	embedder    BatchEmbedder
	batchSize   int
	maxAttempts int
	attempts    int
}

func NewEmbeddingRetrier(chunks []domain.EmbeddedChunk, embedder BatchEmbedder, batchSize, maxAttempts int) *EmbeddingRetrier {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &EmbeddingRetrier{
		chunks:      chunks,
		embedder:    embedder,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// Pending returns how many chunks still lack an embedding.
func (r *EmbeddingRetrier) Pending() int {
	pending := 0
	for i := range r.chunks {
		if !r.chunks[i].HasEmbedding() {
			pending++
		}
	}
	return pending
}

// ProcessJobs implements the JobProcessor interface.
func (r *EmbeddingRetrier) ProcessJobs(ctx context.Context) error {
	var pending []int
	for i := range r.chunks {
		if !r.chunks[i].HasEmbedding() {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return ErrDrained
	}
	if r.attempts >= r.maxAttempts {
		log.Printf("embedding retry: giving up after %d attempts, %d chunks remain without embeddings", r.attempts, len(pending))
		return ErrDrained
	}
	r.attempts++

	log.Printf("embedding retry: attempt %d/%d for %d chunks", r.attempts, r.maxAttempts, len(pending))

	for start := 0; start < len(pending); start += r.batchSize {
		end := start + r.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, idx := range batch {
			texts[i] = r.chunks[idx].Content
		}

		vectors, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding retry batch failed: %w", err)
		}
		for i, idx := range batch {
			r.chunks[idx].Embedding = vectors[i]
		}
	}

	return nil
}
