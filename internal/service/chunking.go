package service

import (
	"regexp"
	"strings"

	"github.com/ar10000/sitechat/internal/domain"
)

// ChunkConfig controls chunking for knowledge embeddings.
type ChunkConfig struct {
	TargetChars  int
	OverlapChars int
	MaxChunks    int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		TargetChars:  1200,
		OverlapChars: 200,
		MaxChunks:    0,
	}
}

var (
	htmlCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	blankLineRe   = regexp.MustCompile(`\n\s*\n`)
)

// ChunkDocument splits a document into bounded, overlapping chunks.
// Paragraphs are accumulated greedily until appending the next one would
// exceed TargetChars; the next buffer is seeded with the trailing words of
// the previous one, bounded by OverlapChars. The result is deterministic
// for a fixed document and config.
func ChunkDocument(doc domain.Document, cfg ChunkConfig) []domain.Chunk {
	if cfg.TargetChars <= 0 {
		cfg = DefaultChunkConfig()
	}

	clean := normalize(doc.Content)
	if clean == "" {
		return nil
	}

	var paragraphs []string
	for _, para := range blankLineRe.Split(clean, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		paragraphs = append(paragraphs, splitOversized(para, cfg.TargetChars)...)
	}

	var chunks []domain.Chunk
	emit := func(content string) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		chunks = append(chunks, domain.Chunk{
			Content:    content,
			Filename:   doc.Filename,
			ChunkIndex: len(chunks),
		})
	}

	buf := ""
	for _, para := range paragraphs {
		if buf == "" {
			buf = para
			continue
		}
		if len([]rune(buf))+2+len([]rune(para)) > cfg.TargetChars {
			emit(buf)
			if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
				return chunks
			}
			// Shrink the overlap when the next paragraph is large, so the
			// seeded chunk still respects the target size.
			budget := cfg.OverlapChars
			if room := cfg.TargetChars - 2 - len([]rune(para)); room < budget {
				budget = room
			}
			buf = overlapTail(buf, budget)
			if buf == "" {
				buf = para
				continue
			}
		}
		buf = buf + "\n\n" + para
	}
	emit(buf)

	return chunks
}

// normalize strips non-semantic markup so that comment blocks and stray
// carriage returns never end up in embeddings.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = htmlCommentRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// splitOversized word-wraps a paragraph longer than target into pieces no
// larger than target, so the chunk size bound holds mid-document. A single
// word longer than target is hard-cut at the rune level.
func splitOversized(para string, target int) []string {
	if len([]rune(para)) <= target {
		return []string{para}
	}

	var pieces []string
	cur := ""
	for _, word := range strings.Fields(para) {
		for len([]rune(word)) > target {
			runes := []rune(word)
			pieces = append(pieces, string(runes[:target]))
			word = string(runes[target:])
		}
		if cur == "" {
			cur = word
			continue
		}
		if len([]rune(cur))+1+len([]rune(word)) > target {
			pieces = append(pieces, cur)
			cur = word
			continue
		}
		cur = cur + " " + word
	}
	if cur != "" {
		pieces = append(pieces, cur)
	}
	return pieces
}

// overlapTail returns the trailing whole words of s that fit within the
// overlap budget, used to seed the next chunk so context survives the cut.
func overlapTail(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	words := strings.Fields(s)
	tail := ""
	for i := len(words) - 1; i >= 0; i-- {
		candidate := words[i]
		if tail != "" {
			candidate = candidate + " " + tail
		}
		if len([]rune(candidate)) > budget {
			break
		}
		tail = candidate
	}
	return tail
}
