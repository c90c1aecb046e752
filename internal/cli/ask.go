package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ar10000/sitechat/internal/config"
	"github.com/ar10000/sitechat/internal/index"
	"github.com/ar10000/sitechat/internal/service"
)

// AskCmd returns the ask command
func AskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the assistant a single question",
		Long:  "Run one retrieval-augmented query against the local index and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	caps := cfg.Capabilities()
	if !caps.HasCompletion() {
		return fmt.Errorf("GROQ_API_KEY or OPENAI_API_KEY is required to ask a question")
	}

	vectorIndex := index.New(cfg.IndexPath)
	if err := vectorIndex.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to load index from %s (run `sitechatd index` first): %w", cfg.IndexPath, err)
	}

	assistant := service.NewAssistantService(buildAssistantConfig(cfg, caps, vectorIndex))

	answer, err := assistant.Ask(ctx, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	fmt.Println(answer)
	return nil
}
