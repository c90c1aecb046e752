//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ar10000/sitechat/internal/api/handlers"
	"github.com/ar10000/sitechat/internal/config"
	"github.com/ar10000/sitechat/internal/gateway"
	"github.com/ar10000/sitechat/internal/index"
	"github.com/ar10000/sitechat/internal/openai"
	"github.com/ar10000/sitechat/internal/server"
	"github.com/ar10000/sitechat/internal/service"
	"github.com/ar10000/sitechat/internal/storage"
)

// E2ETestEnv stands up the real pipeline against the real providers: a
// temp knowledge base is chunked and embedded, the artifact written and
// reloaded, and the HTTP stack served from httptest.
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	Server     *httptest.Server
	HTTPClient *http.Client
	IndexPath  string
}

// SetupE2EEnv builds a small knowledge base and serves it. Skips unless
// OPENAI_API_KEY is set; the chat path additionally uses GROQ_API_KEY when
// present and falls back to OpenAI otherwise.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	t.Helper()

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.OpenAIAPIKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping e2e")
	}

	ctx := context.Background()
	dir := t.TempDir()

	writeKnowledge(t, dir, "pricing.md",
		"Project pricing starts at $500 for a landing page. Full sites with a CMS start at $2000.")
	writeKnowledge(t, dir, "process.md",
		"Every project starts with a discovery call, followed by a written proposal within three business days.")

	embedder := openai.NewClientWithConfig(openai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		EmbeddingModel: cfg.EmbeddingModel,
	})

	builder := index.NewBuilder(storage.NewDirSource(dir), embedder, service.ChunkConfig{
		TargetChars:  cfg.ChunkTargetChars,
		OverlapChars: cfg.ChunkOverlapChars,
	}, cfg.EmbedBatchSize)

	chunks, stats, err := builder.Build(ctx)
	if err != nil {
		t.Fatalf("index build failed: %v", err)
	}
	if stats.Embedded != stats.Chunks {
		t.Fatalf("expected all %d chunks embedded, got %d", stats.Chunks, stats.Embedded)
	}

	indexPath := filepath.Join(dir, "vector-index.json")
	if err := index.WriteArtifact(indexPath, chunks); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}

	vectorIndex := index.New(indexPath)
	if err := vectorIndex.Initialize(ctx); err != nil {
		t.Fatalf("failed to load artifact: %v", err)
	}

	openAIGateway := gateway.New(
		gateway.NewOpenAIProvider("openai", cfg.OpenAIAPIKey, ""),
		cfg.OpenAICandidates(), cfg.MaxTokens)

	chat := service.CompletionGateway(openAIGateway)
	if cfg.GroqAPIKey != "" {
		chat = gateway.New(
			gateway.NewOpenAIProvider("groq", cfg.GroqAPIKey, cfg.GroqBaseURL),
			cfg.GroqCandidates(), cfg.MaxTokens)
	}

	assistant := service.NewAssistantService(service.AssistantConfig{
		Index:           vectorIndex,
		Embedder:        embedder,
		Chat:            chat,
		Voice:           openAIGateway,
		TopK:            cfg.TopK,
		ProviderTimeout: cfg.ProviderTimeout(),
	})

	srv := httptest.NewServer(server.NewRouter(server.RouterConfig{
		ChatHandler: handlers.NewChatHandler(assistant),
	}))
	t.Cleanup(srv.Close)

	return &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		Server:     srv,
		HTTPClient: &http.Client{Timeout: 90 * time.Second},
		IndexPath:  indexPath,
	}
}

func writeKnowledge(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

// Post sends a JSON body and returns the status code and raw response body.
func (env *E2ETestEnv) Post(path string, payload any) (int, []byte) {
	env.T.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		env.T.Fatalf("failed to marshal payload: %v", err)
	}

	resp, err := env.HTTPClient.Post(env.Server.URL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		env.T.Fatalf("request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		env.T.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, data
}
