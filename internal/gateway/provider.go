// Package gateway invokes remote chat-completion providers with model
// fallback and streaming relay.
package gateway

import "context"

// Request is one completion attempt against a specific model.
type Request struct {
	Model        string
	SystemPrompt string
	UserMessage  string
	MaxTokens    int
}

// Provider is a chat-completion backend. Both configured services (Groq
// and OpenAI) satisfy it through the OpenAI-compatible wire protocol; tests
// inject fakes to exercise the fallback machine without network calls.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields decoded text fragments from an in-flight completion.
// Recv returns io.EOF when the provider signals the end of the turn.
// Fragments that carry no text are returned as empty strings.
type Stream interface {
	Recv() (string, error)
	Close() error
}
