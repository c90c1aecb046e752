package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/ar10000/sitechat/internal/config"
	"github.com/ar10000/sitechat/internal/index"
	"github.com/ar10000/sitechat/internal/jobs"
	"github.com/ar10000/sitechat/internal/openai"
	"github.com/ar10000/sitechat/internal/service"
	"github.com/ar10000/sitechat/internal/storage"
)

const (
	embedRetryInterval = 2 * time.Second
	embedRetryAttempts = 3
)

// IndexCmd returns the index command
func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the vector index artifact",
		Long:  "Chunk the knowledge base, generate embeddings and write the index artifact to disk",
		RunE:  runIndex,
	}

	cmd.Flags().String("knowledge-dir", "", "Directory of knowledge documents (overrides KNOWLEDGE_DIR)")
	cmd.Flags().String("out", "", "Output path for the index artifact (overrides INDEX_PATH)")
	cmd.Flags().Bool("s3", false, "Load knowledge documents from S3 instead of the local filesystem")

	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if dir, _ := cmd.Flags().GetString("knowledge-dir"); dir != "" {
		cfg.KnowledgeDir = dir
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		cfg.IndexPath = out
	}

	caps := cfg.Capabilities()
	if !caps.Embeddings {
		return fmt.Errorf("OPENAI_API_KEY is required to build the index")
	}

	source, err := buildDocumentSource(ctx, cmd, cfg)
	if err != nil {
		return err
	}

	embedder := openai.NewClientWithConfig(openai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		EmbeddingModel: cfg.EmbeddingModel,
	})

	builder := index.NewBuilder(source, embedder, service.ChunkConfig{
		TargetChars:  cfg.ChunkTargetChars,
		OverlapChars: cfg.ChunkOverlapChars,
	}, cfg.EmbedBatchSize)

	chunks, stats, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}

	log.Printf("Chunked %d documents into %d chunks, embedded %d", stats.Documents, stats.Chunks, stats.Embedded)

	// Re-embed chunks whose batches failed during the first pass.
	retrier := jobs.NewEmbeddingRetrier(chunks, embedder, cfg.EmbedBatchSize, embedRetryAttempts)
	if pending := retrier.Pending(); pending > 0 {
		log.Printf("Retrying embeddings for %d chunks", pending)

		worker := jobs.NewWorker(retrier, embedRetryInterval)
		worker.Start(ctx)

		if remaining := retrier.Pending(); remaining > 0 {
			log.Printf("WARNING: %d chunks still missing embeddings", remaining)
		}
	}

	if err := index.WriteArtifact(cfg.IndexPath, chunks); err != nil {
		return fmt.Errorf("failed to write index artifact: %w", err)
	}

	log.Printf("Wrote index artifact to %s", cfg.IndexPath)
	return nil
}

func buildDocumentSource(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (index.DocumentSource, error) {
	useS3, _ := cmd.Flags().GetBool("s3")
	if !useS3 {
		return storage.NewDirSource(cfg.KnowledgeDir), nil
	}

	if !cfg.HasS3() {
		return nil, fmt.Errorf("S3_BUCKET, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required for --s3")
	}

	source, err := storage.NewS3Source(ctx, storage.S3SourceConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Prefix:          cfg.S3Prefix,
		UsePathStyle:    cfg.S3Endpoint != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 source: %w", err)
	}

	return source, nil
}
