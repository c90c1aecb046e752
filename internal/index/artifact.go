package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ar10000/sitechat/internal/domain"
)

// ReadArtifact reads the serialized index: a flat JSON array of
// {content, embedding, chunkIndex, filename} records. This shape is shared
// with the site's build tooling and must not change.
func ReadArtifact(path string) ([]domain.EmbeddedChunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var chunks []domain.EmbeddedChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("malformed index artifact %s: %w", path, err)
	}
	return chunks, nil
}

// WriteArtifact writes the index artifact, creating parent directories as
// needed. Chunks without an embedding are written with an empty array, not
// null, so downstream JSON consumers see a consistent shape.
func WriteArtifact(path string, chunks []domain.EmbeddedChunk) error {
	for i := range chunks {
		if chunks[i].Embedding == nil {
			chunks[i].Embedding = []float32{}
		}
	}

	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("failed to encode index artifact: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index artifact: %w", err)
	}
	return nil
}
