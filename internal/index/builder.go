package index

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"

	"github.com/ar10000/sitechat/internal/domain"
	"github.com/ar10000/sitechat/internal/service"
)

// DocumentSource yields the documents of the knowledge base. Implemented by
// the local-directory and S3 sources in internal/storage.
type DocumentSource interface {
	LoadDocuments(ctx context.Context) ([]domain.Document, error)
}

// BatchEmbedder generates one vector per input text, order-preserving.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Builder runs the offline ingestion pipeline: documents are chunked, then
// embedded in fixed-size batches. Batches run sequentially to bound burst
// load on the provider; only the sub-requests inside one batch overlap.
type Builder struct {
	source    DocumentSource
	embedder  BatchEmbedder
	chunkCfg  service.ChunkConfig
	batchSize int
}

// BuildStats summarizes an ingestion run.
type BuildStats struct {
	Documents     int
	Chunks        int
	Embedded      int
	FailedBatches int
}

func NewBuilder(source DocumentSource, embedder BatchEmbedder, chunkCfg service.ChunkConfig, batchSize int) *Builder {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Builder{
		source:    source,
		embedder:  embedder,
		chunkCfg:  chunkCfg,
		batchSize: batchSize,
	}
}

// Build produces the full embedded-chunk set for the knowledge base. A
// failed batch never aborts the run: its chunks are retained with empty
// vectors so the artifact stays usable and a retry pass can fill them in.
func (b *Builder) Build(ctx context.Context) ([]domain.EmbeddedChunk, BuildStats, error) {
	docs, err := b.source.LoadDocuments(ctx)
	if err != nil {
		return nil, BuildStats{}, err
	}

	var chunks []domain.EmbeddedChunk
	for _, doc := range docs {
		for _, chunk := range service.ChunkDocument(doc, b.chunkCfg) {
			chunks = append(chunks, domain.EmbeddedChunk{
				Content:    chunk.Content,
				Embedding:  []float32{},
				ChunkIndex: chunk.ChunkIndex,
				Filename:   chunk.Filename,
			})
		}
	}

	stats := BuildStats{Documents: len(docs), Chunks: len(chunks)}

	for start := 0; start < len(chunks); start += b.batchSize {
		end := start + b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Content
		}

		vectors, err := b.embedBatch(ctx, texts)
		if err != nil {
			stats.FailedBatches++
			log.Printf("builder: batch %d-%d failed, retaining chunks without embeddings: %v", start, end, err)
			continue
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
			stats.Embedded++
		}
	}

	return chunks, stats, nil
}

// embedBatch calls the embedder with bounded exponential backoff on
// transient provider errors. Non-transient errors fail the batch at once.
func (b *Builder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		vectors, err = b.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// IsTransient reports whether a provider error is worth a bounded retry:
// rate limits and server-side failures. Auth and validation errors are not.
func IsTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	return false
}
