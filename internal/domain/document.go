// Package domain contains the core types shared across the assistant
// pipeline.
package domain

// Document is a single knowledge-base source file.
type Document struct {
	Filename string
	Content  string
}

// Chunk is a retrieval unit cut from a document.
type Chunk struct {
	Content    string
	Filename   string
	ChunkIndex int
}

// EmbeddedChunk is a chunk paired with its embedding vector. The JSON tags
// define the on-disk index artifact format, so renaming a field changes the
// artifact contract.
type EmbeddedChunk struct {
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding"`
	ChunkIndex int       `json:"chunkIndex"`
	Filename   string    `json:"filename"`
}

// HasEmbedding reports whether the chunk carries a non-empty vector.
func (c EmbeddedChunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}
