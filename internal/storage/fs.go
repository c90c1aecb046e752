// Package storage provides document sources for the index build: a local
// directory of knowledge files, or an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ar10000/sitechat/internal/domain"
)

// DirSource reads knowledge documents from a local directory.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// LoadDocuments reads every supported file in the directory, sorted by
// filename so the resulting chunk order is deterministic across builds.
func (s *DirSource) LoadDocuments(ctx context.Context) ([]domain.Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge directory %s: %w", s.dir, err)
	}

	var docs []domain.Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !isKnowledgeFile(entry.Name()) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read knowledge file %s: %w", entry.Name(), err)
		}
		docs = append(docs, domain.Document{
			Filename: entry.Name(),
			Content:  string(data),
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Filename < docs[j].Filename })
	return docs, nil
}

func isKnowledgeFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".txt":
		return true
	}
	return false
}
