package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// streamBuffer bounds the relay channel between the provider-consuming
	// goroutine and the response writer.
	streamBuffer = 16

	// fallbackApology is emitted when a stream finished without producing
	// any text, so the caller never receives an empty success.
	fallbackApology = "Sorry, I couldn't come up with an answer just now. Please try again or reach out through the contact form."

	// streamErrorMarker is appended after already-flushed text when the
	// upstream stream dies mid-flight. Partial output is worth keeping.
	streamErrorMarker = "\n\n[connection to the assistant was interrupted]"
)

// ExhaustedError reports that every candidate model was tried and rejected
// as unavailable. Last holds the final provider error.
type ExhaustedError struct {
	Provider string
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %s model candidates exhausted: %v", e.Provider, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Fragment is one decoded text piece of a streamed completion.
type Fragment struct {
	Text string
}

// Result is a single-shot completion outcome.
type Result struct {
	Text  string
	Model string
}

// Gateway invokes a completion provider, walking an ordered candidate
// model list. Only "model not recognized" errors advance the list; any
// other failure is surfaced immediately so misconfiguration is never
// masked by silent retries. The winning model is logged, not remembered:
// every request restarts from the top of the list.
type Gateway struct {
	provider   Provider
	candidates []string
	maxTokens  int
}

func New(provider Provider, candidates []string, maxTokens int) *Gateway {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Gateway{
		provider:   provider,
		candidates: candidates,
		maxTokens:  maxTokens,
	}
}

// Complete runs a single-shot completion with model fallback.
func (g *Gateway) Complete(ctx context.Context, systemPrompt, userMessage string) (*Result, error) {
	var text string
	model, err := g.resolve(ctx, func(ctx context.Context, req Request) error {
		var err error
		text, err = g.provider.Complete(ctx, req)
		return err
	}, systemPrompt, userMessage)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text, Model: model}, nil
}

// StreamText opens a streaming completion with model fallback and relays
// decoded fragments through a bounded channel. The channel is closed when
// the upstream turn ends, errors, or ctx is cancelled; cancellation also
// tears down the provider stream.
func (g *Gateway) StreamText(ctx context.Context, systemPrompt, userMessage string) (<-chan Fragment, string, error) {
	var stream Stream
	model, err := g.resolve(ctx, func(ctx context.Context, req Request) error {
		var err error
		stream, err = g.provider.Stream(ctx, req)
		return err
	}, systemPrompt, userMessage)
	if err != nil {
		return nil, "", err
	}

	out := make(chan Fragment, streamBuffer)
	go g.relay(ctx, stream, out)
	return out, model, nil
}

// resolve is the fallback state machine: trying(candidate) advances on
// availability errors, fails fast on anything else, and reports the last
// error when the list is exhausted.
func (g *Gateway) resolve(ctx context.Context, attempt func(context.Context, Request) error, systemPrompt, userMessage string) (string, error) {
	if len(g.candidates) == 0 {
		return "", &ExhaustedError{Provider: g.provider.Name(), Last: errors.New("no candidate models configured")}
	}

	var lastErr error
	for _, model := range g.candidates {
		err := attempt(ctx, Request{
			Model:        model,
			SystemPrompt: systemPrompt,
			UserMessage:  userMessage,
			MaxTokens:    g.maxTokens,
		})
		if err == nil {
			log.Printf("gateway: %s answered with model %s", g.provider.Name(), model)
			return model, nil
		}
		if !IsModelNotFound(err) {
			return "", fmt.Errorf("%s completion failed on model %s: %w", g.provider.Name(), model, err)
		}
		log.Printf("gateway: %s does not recognize model %s, trying next candidate", g.provider.Name(), model)
		lastErr = err
	}

	return "", &ExhaustedError{Provider: g.provider.Name(), Last: lastErr}
}

// relay pumps provider fragments into out. Empty fragments are discarded.
// A mid-flight upstream error appends one inline marker after whatever was
// already sent; a stream that produced no text at all yields exactly one
// apology fragment.
func (g *Gateway) relay(ctx context.Context, stream Stream, out chan<- Fragment) {
	defer close(out)
	defer stream.Close()

	emitted := false
	for {
		text, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				// Caller went away; nobody is reading, so just tear down.
				return
			}
			log.Printf("gateway: %s stream failed mid-flight: %v", g.provider.Name(), err)
			g.send(ctx, out, Fragment{Text: streamErrorMarker})
			return
		}
		if text == "" {
			continue
		}
		if !g.send(ctx, out, Fragment{Text: text}) {
			return
		}
		emitted = true
	}

	if !emitted {
		g.send(ctx, out, Fragment{Text: fallbackApology})
	}
}

func (g *Gateway) send(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// IsModelNotFound classifies provider errors that mean "this model
// identifier is not served here". Only these advance the fallback list.
func IsModelNotFound(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.HTTPStatusCode == http.StatusNotFound {
		return true
	}
	if code, ok := apiErr.Code.(string); ok && strings.Contains(code, "model_not_found") {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "does not exist or you do not have access")
}

// IsRateLimited classifies provider throttling so the HTTP layer can tell
// callers to retry rather than report a hard failure.
func IsRateLimited(err error) bool {
	var apiErr *openai.APIError
	return errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests
}
