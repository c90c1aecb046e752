// Package index holds the in-memory vector index and its on-disk artifact.
package index

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/ar10000/sitechat/internal/domain"
)

// Index is the in-memory set of embedded chunks for the active knowledge
// base. It is loaded once via Initialize and read-only afterwards, so
// Search needs no synchronization.
type Index struct {
	path   string
	chunks []domain.EmbeddedChunk
	ready  bool
}

// New creates an Index backed by the artifact at path. Call Initialize
// before searching.
func New(path string) *Index {
	return &Index{path: path}
}

// NewFromChunks creates an already-initialized index from chunks. Used by
// the build pipeline and tests.
func NewFromChunks(chunks []domain.EmbeddedChunk) *Index {
	return &Index{chunks: chunks, ready: true}
}

// Initialize loads the index artifact from disk. It is an explicit startup
// step; nothing in the request path triggers a reload.
func (ix *Index) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chunks, err := ReadArtifact(ix.path)
	if err != nil {
		return fmt.Errorf("failed to load index artifact: %w", err)
	}

	ix.chunks = chunks
	ix.ready = true

	total, embedded := ix.Stats()
	log.Printf("index: loaded %d chunks (%d embedded, %d pending) from %s", total, embedded, total-embedded, ix.path)
	return nil
}

// Ready reports whether the index has been initialized with at least one
// searchable chunk.
func (ix *Index) Ready() bool {
	return ix.ready && len(ix.chunks) > 0
}

// Len returns the total number of chunks, embedded or not.
func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Stats returns the total chunk count and how many carry embeddings.
func (ix *Index) Stats() (total, embedded int) {
	total = len(ix.chunks)
	for i := range ix.chunks {
		if ix.chunks[i].HasEmbedding() {
			embedded++
		}
	}
	return total, embedded
}

type scoredChunk struct {
	chunk domain.EmbeddedChunk
	score float32
}

// Search returns up to k chunks ranked by descending cosine similarity to
// the query vector. Chunks without an embedding are excluded. Ties keep
// original chunk order. The scan is a deliberate flat pass: the corpus is
// tens to low hundreds of chunks, so approximate indexing would be pure
// overhead.
func (ix *Index) Search(query []float32, k int) []domain.EmbeddedChunk {
	if k <= 0 || len(query) == 0 {
		return nil
	}

	scored := make([]scoredChunk, 0, len(ix.chunks))
	for i := range ix.chunks {
		if !ix.chunks[i].HasEmbedding() {
			continue
		}
		scored = append(scored, scoredChunk{
			chunk: ix.chunks[i],
			score: Cosine(query, ix.chunks[i].Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if k > len(scored) {
		k = len(scored)
	}
	results := make([]domain.EmbeddedChunk, k)
	for i := 0; i < k; i++ {
		results[i] = scored[i].chunk
	}
	return results
}

// First returns the first k chunks in original order. This is the unscored
// fallback used when the query could not be embedded.
func (ix *Index) First(k int) []domain.EmbeddedChunk {
	if k <= 0 {
		return nil
	}
	if k > len(ix.chunks) {
		k = len(ix.chunks)
	}
	out := make([]domain.EmbeddedChunk, k)
	copy(out, ix.chunks[:k])
	return out
}

// Cosine computes cosine similarity between two vectors. Mismatched
// lengths and zero-norm vectors score 0 rather than erroring; a chunk that
// cannot be compared simply never ranks.
func Cosine(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
