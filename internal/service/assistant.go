package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/ar10000/sitechat/internal/domain"
	"github.com/ar10000/sitechat/internal/gateway"
	"github.com/ar10000/sitechat/internal/telemetry"
)

// QueryEmbedder turns a visitor query into a vector.
type QueryEmbedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// SearchIndex is the read-only vector index consumed by the front door.
type SearchIndex interface {
	Ready() bool
	Search(query []float32, k int) []domain.EmbeddedChunk
	First(k int) []domain.EmbeddedChunk
}

// CompletionGateway is the model-fallback completion client.
type CompletionGateway interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (*gateway.Result, error)
	StreamText(ctx context.Context, systemPrompt, userMessage string) (<-chan gateway.Fragment, string, error)
}

// AssistantService orchestrates one visitor query: embed, retrieve,
// compose, complete. Each request is fully sequential; concurrency exists
// only across requests, which share nothing but the read-only index.
type AssistantService struct {
	index    SearchIndex
	embedder QueryEmbedder
	chat     CompletionGateway
	voice    CompletionGateway
	topK     int
	timeout  time.Duration
}

type AssistantConfig struct {
	Index    SearchIndex
	Embedder QueryEmbedder // nil when no embedding provider is configured

	// Chat serves the streaming text path, Voice the single-shot path.
	// Either may be nil; the service degrades per capability.
	Chat  CompletionGateway
	Voice CompletionGateway

	TopK            int
	ProviderTimeout time.Duration
}

func NewAssistantService(cfg AssistantConfig) *AssistantService {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AssistantService{
		index:    cfg.Index,
		embedder: cfg.Embedder,
		chat:     cfg.Chat,
		voice:    cfg.Voice,
		topK:     topK,
		timeout:  timeout,
	}
}

// AskStream answers a text-chat query as a stream of fragments.
func (s *AssistantService) AskStream(ctx context.Context, query string) (<-chan gateway.Fragment, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if s.chat == nil {
		return nil, domain.ErrNoCompletionProvider
	}
	if s.index == nil || !s.index.Ready() {
		return nil, domain.ErrIndexNotReady
	}

	ctx, span := telemetry.StartSpan(ctx, "assistant.ask_stream")
	defer span.End()

	chunks := s.retrieve(ctx, query)
	span.SetData("retrieved_chunks", len(chunks))
	prompt := ComposeSystemPrompt(chunks, PromptOptions{})

	fragments, model, err := s.chat.StreamText(ctx, prompt, query)
	if err != nil {
		err = wrapGatewayError(err)
		span.SetError(err)
		return nil, err
	}
	span.SetData("model", model)
	return fragments, nil
}

// Ask answers a voice-chat query in one shot, with a brevity-decorated
// prompt since the reply is spoken aloud.
func (s *AssistantService) Ask(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", domain.ErrEmptyQuery
	}
	if s.voice == nil {
		return "", domain.ErrNoCompletionProvider
	}
	if s.index == nil || !s.index.Ready() {
		return "", domain.ErrIndexNotReady
	}

	ctx, span := telemetry.StartSpan(ctx, "assistant.ask_voice")
	defer span.End()

	chunks := s.retrieve(ctx, message)
	span.SetData("retrieved_chunks", len(chunks))
	prompt := ComposeSystemPrompt(chunks, PromptOptions{Voice: true})

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.voice.Complete(callCtx, prompt, message)
	if err != nil {
		err = wrapGatewayError(err)
		span.SetError(err)
		return "", err
	}
	span.SetData("model", result.Model)
	return strings.TrimSpace(result.Text), nil
}

// retrieve embeds the query and ranks the index against it. When no
// embedding provider is configured, or the query embedding call fails, it
// degrades to the first topK chunks unscored rather than failing the
// request: a generic answer beats no answer.
func (s *AssistantService) retrieve(ctx context.Context, query string) []domain.EmbeddedChunk {
	if s.embedder == nil {
		return s.index.First(s.topK)
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vector, err := s.embedder.GenerateEmbedding(embedCtx, query)
	if err != nil {
		log.Printf("assistant: query embedding failed, degrading to unscored retrieval: %v", err)
		return s.index.First(s.topK)
	}
	return s.index.Search(vector, s.topK)
}

// wrapGatewayError maps gateway failures onto the caller-facing taxonomy.
func wrapGatewayError(err error) error {
	var exhausted *gateway.ExhaustedError
	if errors.As(err, &exhausted) {
		return domain.NewDomainErrorWithCause(domain.ErrCodeModelExhausted, "no completion model is currently available", err)
	}
	if gateway.IsRateLimited(err) {
		return domain.NewDomainErrorWithCause(domain.ErrCodeRateLimited, "completion provider is rate limiting, try again shortly", err)
	}
	return domain.NewDomainErrorWithCause(domain.ErrCodeUpstream, "completion provider request failed", err)
}
