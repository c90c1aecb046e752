package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/ar10000/sitechat/internal/domain"
	"github.com/ar10000/sitechat/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockQueryEmbedder mocks the query embedding client
type MockQueryEmbedder struct {
	mock.Mock
}

func (m *MockQueryEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockCompletionGateway mocks the model-fallback completion client
type MockCompletionGateway struct {
	mock.Mock
}

func (m *MockCompletionGateway) Complete(ctx context.Context, systemPrompt, userMessage string) (*gateway.Result, error) {
	args := m.Called(ctx, systemPrompt, userMessage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Result), args.Error(1)
}

func (m *MockCompletionGateway) StreamText(ctx context.Context, systemPrompt, userMessage string) (<-chan gateway.Fragment, string, error) {
	args := m.Called(ctx, systemPrompt, userMessage)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(<-chan gateway.Fragment), args.String(1), args.Error(2)
}

// stubIndex is a fixed two-chunk index: Search ranks by cosine against the
// chunk vectors, First returns artifact order.
type stubIndex struct {
	chunks []domain.EmbeddedChunk
}

func (s *stubIndex) Ready() bool { return len(s.chunks) > 0 }

func (s *stubIndex) Search(query []float32, k int) []domain.EmbeddedChunk {
	out := append([]domain.EmbeddedChunk(nil), s.chunks...)
	sort.SliceStable(out, func(i, j int) bool {
		return score(query, out[i].Embedding) > score(query, out[j].Embedding)
	})
	if k < len(out) {
		out = out[:k]
	}
	return out
}

func (s *stubIndex) First(k int) []domain.EmbeddedChunk {
	if k > len(s.chunks) {
		k = len(s.chunks)
	}
	return s.chunks[:k]
}

func score(a, b []float32) float32 {
	var dot float32
	for i := range a {
		if i < len(b) {
			dot += a[i] * b[i]
		}
	}
	return dot
}

func readyIndex() *stubIndex {
	return &stubIndex{chunks: []domain.EmbeddedChunk{
		{Content: "Pricing starts at $500.", Embedding: []float32{1, 0}, Filename: "pricing.md"},
		{Content: "We respond within 24 hours.", Embedding: []float32{0, 1}, Filename: "contact.md"},
	}}
}

func closedFragments(texts ...string) <-chan gateway.Fragment {
	ch := make(chan gateway.Fragment, len(texts))
	for _, text := range texts {
		ch <- gateway.Fragment{Text: text}
	}
	close(ch)
	return ch
}

func TestAskStream_EmptyQuery(t *testing.T) {
	svc := NewAssistantService(AssistantConfig{Index: readyIndex(), Chat: new(MockCompletionGateway)})

	_, err := svc.AskStream(context.Background(), "   ")

	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestAskStream_NoCompletionProvider(t *testing.T) {
	svc := NewAssistantService(AssistantConfig{Index: readyIndex()})

	_, err := svc.AskStream(context.Background(), "What do you charge?")

	require.ErrorIs(t, err, domain.ErrNoCompletionProvider)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeMissingAPIKey, domainErr.Code)
}

func TestAskStream_IndexNotReady(t *testing.T) {
	svc := NewAssistantService(AssistantConfig{
		Index: &stubIndex{},
		Chat:  new(MockCompletionGateway),
	})

	_, err := svc.AskStream(context.Background(), "What do you charge?")

	require.ErrorIs(t, err, domain.ErrIndexNotReady)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeMissingEmbeddings, domainErr.Code)
}

func TestAskStream_RetrievesAndStreams(t *testing.T) {
	embedder := new(MockQueryEmbedder)
	chat := new(MockCompletionGateway)
	svc := NewAssistantService(AssistantConfig{
		Index:    readyIndex(),
		Embedder: embedder,
		Chat:     chat,
	})

	embedder.On("GenerateEmbedding", mock.Anything, "What do you charge?").Return([]float32{1, 0}, nil)
	chat.On("StreamText", mock.Anything,
		mock.MatchedBy(func(prompt string) bool {
			// The best-scoring chunk leads the context.
			return strings.Contains(prompt, "[1] (pricing.md)")
		}),
		"What do you charge?",
	).Return(closedFragments("Pricing ", "starts at $500."), "llama-3.3-70b-versatile", nil)

	fragments, err := svc.AskStream(context.Background(), "What do you charge?")

	require.NoError(t, err)
	assert.Equal(t, "Pricing starts at $500.", drain(fragments))
	embedder.AssertExpectations(t)
	chat.AssertExpectations(t)
}

func TestAskStream_DegradesWhenEmbeddingFails(t *testing.T) {
	embedder := new(MockQueryEmbedder)
	chat := new(MockCompletionGateway)
	svc := NewAssistantService(AssistantConfig{
		Index:    readyIndex(),
		Embedder: embedder,
		Chat:     chat,
	})

	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))
	// Unscored fallback: the first chunks in artifact order still make it
	// into the prompt.
	chat.On("StreamText", mock.Anything,
		mock.MatchedBy(func(prompt string) bool {
			return strings.Contains(prompt, "Pricing starts at $500.") &&
				strings.Contains(prompt, "We respond within 24 hours.")
		}),
		mock.Anything,
	).Return(closedFragments("ok"), "llama-3.3-70b-versatile", nil)

	_, err := svc.AskStream(context.Background(), "anything")

	require.NoError(t, err)
	chat.AssertExpectations(t)
}

func TestAskStream_NoEmbedderUsesUnscoredRetrieval(t *testing.T) {
	chat := new(MockCompletionGateway)
	svc := NewAssistantService(AssistantConfig{Index: readyIndex(), Chat: chat})

	chat.On("StreamText", mock.Anything,
		mock.MatchedBy(func(prompt string) bool {
			return strings.Contains(prompt, "Pricing starts at $500.")
		}),
		mock.Anything,
	).Return(closedFragments("ok"), "gpt-4o-mini", nil)

	_, err := svc.AskStream(context.Background(), "hello")

	require.NoError(t, err)
	chat.AssertExpectations(t)
}

func TestAskStream_WrapsExhaustedError(t *testing.T) {
	chat := new(MockCompletionGateway)
	svc := NewAssistantService(AssistantConfig{Index: readyIndex(), Chat: chat})

	exhausted := &gateway.ExhaustedError{Provider: "groq", Last: errors.New("model decommissioned")}
	chat.On("StreamText", mock.Anything, mock.Anything, mock.Anything).Return(nil, "", exhausted)

	_, err := svc.AskStream(context.Background(), "hello")

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeModelExhausted, domainErr.Code)
}

func TestAsk_VoiceHappyPath(t *testing.T) {
	voice := new(MockCompletionGateway)
	svc := NewAssistantService(AssistantConfig{Index: readyIndex(), Voice: voice})

	voice.On("Complete", mock.Anything,
		mock.MatchedBy(func(prompt string) bool {
			return strings.Contains(prompt, promptVoiceRule)
		}),
		"How fast do you reply?",
	).Return(&gateway.Result{Text: "  Within 24 hours.  ", Model: "gpt-4o-mini"}, nil)

	answer, err := svc.Ask(context.Background(), "How fast do you reply?")

	require.NoError(t, err)
	assert.Equal(t, "Within 24 hours.", answer)
	voice.AssertExpectations(t)
}

func TestAsk_EmptyMessage(t *testing.T) {
	svc := NewAssistantService(AssistantConfig{Index: readyIndex(), Voice: new(MockCompletionGateway)})

	_, err := svc.Ask(context.Background(), "")

	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestAsk_WrapsUpstreamError(t *testing.T) {
	voice := new(MockCompletionGateway)
	svc := NewAssistantService(AssistantConfig{Index: readyIndex(), Voice: voice})

	voice.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	_, err := svc.Ask(context.Background(), "hello")

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeUpstream, domainErr.Code)
}

func drain(fragments <-chan gateway.Fragment) string {
	var b strings.Builder
	for f := range fragments {
		b.WriteString(f.Text)
	}
	return b.String()
}
