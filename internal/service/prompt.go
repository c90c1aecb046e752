package service

import (
	"fmt"
	"strings"

	"github.com/ar10000/sitechat/internal/domain"
)

// PromptOptions tweaks the composed system prompt per front-door variant.
type PromptOptions struct {
	// Voice answers are read aloud, so they get a brevity instruction.
	Voice bool
}

const promptPreamble = `You are the assistant on a freelance web studio's portfolio site. Visitors ask about services, pricing, process, and past work. Answer from the context below.`

const promptRules = `Rules:
- Use only the information in the context. Do not invent services, prices, or claims that are not there.
- If the context does not cover the question, say so plainly and suggest the contact form for a direct answer.
- Keep a friendly, professional tone. No marketing fluff.`

const promptVoiceRule = `- Your answer is spoken aloud. Keep it to one to three sentences.`

// ComposeSystemPrompt assembles the system prompt from retrieved chunks in
// rank order (best match first), each tagged with a 1-based positional
// marker and its source file, followed by the fixed behavior instructions.
func ComposeSystemPrompt(chunks []domain.EmbeddedChunk, opts PromptOptions) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\nContext:\n")

	if len(chunks) == 0 {
		b.WriteString("(no context available)\n")
	}
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, chunk.Filename, chunk.Content)
	}

	b.WriteString(promptRules)
	if opts.Voice {
		b.WriteString("\n")
		b.WriteString(promptVoiceRule)
	}
	return b.String()
}
