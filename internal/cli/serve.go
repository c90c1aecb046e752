// Package cli contains the sitechatd cobra commands.
package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ar10000/sitechat/internal/api/handlers"
	"github.com/ar10000/sitechat/internal/config"
	"github.com/ar10000/sitechat/internal/gateway"
	"github.com/ar10000/sitechat/internal/index"
	"github.com/ar10000/sitechat/internal/openai"
	"github.com/ar10000/sitechat/internal/server"
	"github.com/ar10000/sitechat/internal/service"
	"github.com/ar10000/sitechat/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant API server",
		Long:  "Start the sitechat API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	caps := cfg.Capabilities()
	log.Printf("capabilities: embeddings=%t groq=%t openai=%t s3=%t", caps.Embeddings, caps.GroqChat, caps.OpenAIChat, caps.S3)

	vectorIndex := index.New(cfg.IndexPath)
	if err := vectorIndex.Initialize(ctx); err != nil {
		// A missing artifact is a degraded state, not a fatal one: the
		// handlers report missing-embeddings until an index is built.
		log.Printf("index not available (serving degraded): %v", err)
	}

	assistant := service.NewAssistantService(buildAssistantConfig(cfg, caps, vectorIndex))

	routerCfg := server.RouterConfig{
		ChatHandler: handlers.NewChatHandler(assistant),
	}
	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// buildAssistantConfig wires providers per resolved capabilities. The chat
// path prefers the Groq gateway with its model-fallback list; the voice
// path prefers OpenAI's single default model. Either provider covers both
// paths when it is the only one configured.
func buildAssistantConfig(cfg *config.Config, caps config.Capabilities, vectorIndex *index.Index) service.AssistantConfig {
	assistantCfg := service.AssistantConfig{
		Index:           vectorIndex,
		TopK:            cfg.TopK,
		ProviderTimeout: cfg.ProviderTimeout(),
	}

	if caps.Embeddings {
		assistantCfg.Embedder = openai.NewClientWithConfig(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			EmbeddingModel: cfg.EmbeddingModel,
		})
	}

	var groqGateway, openAIGateway service.CompletionGateway
	if caps.GroqChat {
		provider := gateway.NewOpenAIProvider("groq", cfg.GroqAPIKey, cfg.GroqBaseURL)
		groqGateway = gateway.New(provider, cfg.GroqCandidates(), cfg.MaxTokens)
	}
	if caps.OpenAIChat {
		provider := gateway.NewOpenAIProvider("openai", cfg.OpenAIAPIKey, "")
		openAIGateway = gateway.New(provider, cfg.OpenAICandidates(), cfg.MaxTokens)
	}

	assistantCfg.Chat = groqGateway
	if assistantCfg.Chat == nil {
		assistantCfg.Chat = openAIGateway
	}
	assistantCfg.Voice = openAIGateway
	if assistantCfg.Voice == nil {
		assistantCfg.Voice = groqGateway
	}

	return assistantCfg
}
