package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// Knowledge base and index artifact locations.
	KnowledgeDir string `envconfig:"KNOWLEDGE_DIR" default:"content/knowledge"`
	IndexPath    string `envconfig:"INDEX_PATH" default:"data/vector-index.json"`

	// OpenAI provides embeddings and the voice-path completion model.
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL"`
	VoiceModel     string `envconfig:"VOICE_MODEL" default:"gpt-4o-mini"`

	// Groq is the multi-model fallback provider used by the chat path.
	GroqAPIKey  string `envconfig:"GROQ_API_KEY"`
	GroqBaseURL string `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1"`

	// ChatModel, when set, is tried before the built-in candidate list.
	ChatModel string `envconfig:"CHAT_MODEL"`

	MaxTokens              int `envconfig:"MAX_TOKENS" default:"1024"`
	TopK                   int `envconfig:"TOP_K" default:"5"`
	ProviderTimeoutSeconds int `envconfig:"PROVIDER_TIMEOUT_SECONDS" default:"30"`

	ChunkTargetChars  int `envconfig:"CHUNK_TARGET_CHARS" default:"1200"`
	ChunkOverlapChars int `envconfig:"CHUNK_OVERLAP_CHARS" default:"200"`
	EmbedBatchSize    int `envconfig:"EMBED_BATCH_SIZE" default:"16"`

	// Optional S3-backed knowledge store for the offline index build.
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3Prefix    string `envconfig:"S3_PREFIX" default:"knowledge/"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("SITECHAT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasEmbeddings() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasGroq() bool {
	return c.GroqAPIKey != ""
}

func (c *Config) HasS3() bool {
	return c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3Bucket != ""
}

func (c *Config) ProviderTimeout() time.Duration {
	if c.ProviderTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

// Capabilities is the typed "which providers are active" result, resolved
// once at startup instead of scattering env existence checks through the
// request path.
type Capabilities struct {
	Embeddings bool
	GroqChat   bool
	OpenAIChat bool
	S3         bool
}

func (c *Config) Capabilities() Capabilities {
	return Capabilities{
		Embeddings: c.HasEmbeddings(),
		GroqChat:   c.HasGroq(),
		OpenAIChat: c.HasOpenAI(),
		S3:         c.HasS3(),
	}
}

// HasCompletion reports whether at least one completion provider is active.
func (caps Capabilities) HasCompletion() bool {
	return caps.GroqChat || caps.OpenAIChat
}

// Known-good Groq model identifiers, in priority order. The gateway walks
// this list when a model is decommissioned upstream.
var defaultGroqModels = []string{
	"llama-3.3-70b-versatile",
	"llama-3.1-70b-versatile",
	"llama-3.1-8b-instant",
}

// Known-good OpenAI model identifiers, in priority order.
var defaultOpenAIModels = []string{
	"gpt-4o-mini",
	"gpt-4o",
}

// GroqCandidates returns the ordered model candidate list for the Groq
// gateway: the operator override first (when set), then the priority list.
func (c *Config) GroqCandidates() []string {
	return prependOverride(c.ChatModel, defaultGroqModels)
}

// OpenAICandidates returns the ordered model candidate list for the OpenAI
// gateway. The voice model is the preferred default.
func (c *Config) OpenAICandidates() []string {
	return prependOverride(c.VoiceModel, defaultOpenAIModels)
}

func prependOverride(override string, defaults []string) []string {
	out := make([]string, 0, len(defaults)+1)
	if override != "" {
		out = append(out, override)
	}
	for _, m := range defaults {
		if m == override {
			continue
		}
		out = append(out, m)
	}
	return out
}
