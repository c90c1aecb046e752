package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modelNotFound() error {
	return &openai.APIError{HTTPStatusCode: http.StatusNotFound, Message: "model not found"}
}

// scriptedProvider answers per-model from a script and records the order
// models were attempted in.
type scriptedProvider struct {
	mu        sync.Mutex
	name      string
	errs      map[string]error
	answer    string
	frags     []string
	streamErr error
	streamed  []*scriptedStream
	attempts  []string
}

func (p *scriptedProvider) Name() string {
	if p.name == "" {
		return "test"
	}
	return p.name
}

func (p *scriptedProvider) record(model string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = append(p.attempts, model)
	return p.errs[model]
}

func (p *scriptedProvider) Complete(ctx context.Context, req Request) (string, error) {
	if err := p.record(req.Model); err != nil {
		return "", err
	}
	return p.answer, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if err := p.record(req.Model); err != nil {
		return nil, err
	}
	stream := &scriptedStream{ctx: ctx, frags: p.frags, err: p.streamErr}
	p.mu.Lock()
	p.streamed = append(p.streamed, stream)
	p.mu.Unlock()
	return stream, nil
}

// scriptedStream yields its fragments then io.EOF. When block is set it
// instead waits for context cancellation.
type scriptedStream struct {
	ctx    context.Context
	frags  []string
	pos    int
	err    error
	block  bool
	mu     sync.Mutex
	closed bool
}

func (s *scriptedStream) Recv() (string, error) {
	if s.block {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	if s.pos < len(s.frags) {
		frag := s.frags[s.pos]
		s.pos++
		return frag, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func collect(t *testing.T, fragments <-chan Fragment) []string {
	t.Helper()
	var out []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-fragments:
			if !ok {
				return out
			}
			out = append(out, f.Text)
		case <-timeout:
			t.Fatal("timed out waiting for fragments")
		}
	}
}

func TestGateway_Complete_FirstCandidateWins(t *testing.T) {
	provider := &scriptedProvider{answer: "hello"}
	g := New(provider, []string{"model-a", "model-b"}, 0)

	result, err := g.Complete(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.Equal(t, "hello", result.Text)
	assert.Equal(t, "model-a", result.Model)
	assert.Equal(t, []string{"model-a"}, provider.attempts)
}

func TestGateway_Complete_AdvancesOnModelNotFound(t *testing.T) {
	provider := &scriptedProvider{
		answer: "hello",
		errs:   map[string]error{"model-a": modelNotFound()},
	}
	g := New(provider, []string{"model-a", "model-b"}, 0)

	result, err := g.Complete(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.Equal(t, "model-b", result.Model)
	assert.Equal(t, []string{"model-a", "model-b"}, provider.attempts)
}

func TestGateway_Complete_OtherErrorsFailFast(t *testing.T) {
	authErr := &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}
	provider := &scriptedProvider{
		errs: map[string]error{"model-a": authErr},
	}
	g := New(provider, []string{"model-a", "model-b"}, 0)

	_, err := g.Complete(context.Background(), "system", "user")

	require.Error(t, err)
	assert.ErrorIs(t, err, authErr)
	// Fallback never fires for non-availability errors.
	assert.Equal(t, []string{"model-a"}, provider.attempts)

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestGateway_Complete_Exhausted(t *testing.T) {
	provider := &scriptedProvider{
		name: "groq",
		errs: map[string]error{
			"model-a": modelNotFound(),
			"model-b": modelNotFound(),
		},
	}
	g := New(provider, []string{"model-a", "model-b"}, 0)

	_, err := g.Complete(context.Background(), "system", "user")

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "groq", exhausted.Provider)
	assert.Error(t, exhausted.Last)
	assert.Equal(t, []string{"model-a", "model-b"}, provider.attempts)
}

func TestGateway_Complete_NoCandidates(t *testing.T) {
	g := New(&scriptedProvider{}, nil, 0)

	_, err := g.Complete(context.Background(), "system", "user")

	var exhausted *ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestGateway_StreamText_RelaysFragments(t *testing.T) {
	provider := &scriptedProvider{frags: []string{"Hel", "", "lo", " there"}}
	g := New(provider, []string{"model-a"}, 0)

	fragments, model, err := g.StreamText(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.Equal(t, "model-a", model)
	// Empty upstream deltas are dropped, never forwarded.
	assert.Equal(t, []string{"Hel", "lo", " there"}, collect(t, fragments))
	require.Len(t, provider.streamed, 1)
	assert.True(t, provider.streamed[0].isClosed())
}

func TestGateway_StreamText_FallbackThenStream(t *testing.T) {
	provider := &scriptedProvider{
		frags: []string{"answer"},
		errs:  map[string]error{"model-a": modelNotFound()},
	}
	g := New(provider, []string{"model-a", "model-b"}, 0)

	fragments, model, err := g.StreamText(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.Equal(t, "model-b", model)
	assert.Equal(t, []string{"answer"}, collect(t, fragments))
}

func TestGateway_StreamText_EmptyStreamApologizes(t *testing.T) {
	provider := &scriptedProvider{frags: nil}
	g := New(provider, []string{"model-a"}, 0)

	fragments, _, err := g.StreamText(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.Equal(t, []string{fallbackApology}, collect(t, fragments))
}

func TestGateway_StreamText_MidFlightErrorAppendsMarker(t *testing.T) {
	// The stream fails after its fragments are spent.
	provider := &scriptedProvider{
		frags:     []string{"partial "},
		streamErr: errors.New("connection reset"),
	}
	g := New(provider, []string{"model-a"}, 0)

	fragments, _, err := g.StreamText(context.Background(), "system", "user")
	require.NoError(t, err)

	assert.Equal(t, []string{"partial ", streamErrorMarker}, collect(t, fragments))
}

func TestGateway_StreamText_CancellationTearsDown(t *testing.T) {
	provider := &scriptedProvider{}
	g := New(provider, []string{"model-a"}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	fragments, _, err := g.StreamText(ctx, "system", "user")
	require.NoError(t, err)
	require.Len(t, provider.streamed, 1)
	provider.streamed[0].block = true

	cancel()

	// The relay tears down silently: channel closes with no marker and the
	// provider stream is closed.
	assert.Empty(t, collect(t, fragments))
	assert.Eventually(t, provider.streamed[0].isClosed, time.Second, 10*time.Millisecond)
}

func TestIsModelNotFound(t *testing.T) {
	assert.True(t, IsModelNotFound(modelNotFound()))
	assert.True(t, IsModelNotFound(&openai.APIError{
		HTTPStatusCode: http.StatusBadRequest,
		Code:           "model_not_found",
	}))
	assert.True(t, IsModelNotFound(&openai.APIError{
		HTTPStatusCode: http.StatusBadRequest,
		Message:        "The model `llama-3.1-70b-versatile` does not exist or you do not have access to it.",
	}))

	assert.False(t, IsModelNotFound(&openai.APIError{HTTPStatusCode: http.StatusUnauthorized}))
	assert.False(t, IsModelNotFound(errors.New("plain error")))
	assert.False(t, IsModelNotFound(nil))
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}))
	assert.False(t, IsRateLimited(&openai.APIError{HTTPStatusCode: http.StatusInternalServerError}))
	assert.False(t, IsRateLimited(errors.New("plain error")))
	assert.False(t, IsRateLimited(nil))
}
