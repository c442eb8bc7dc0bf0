// Package config provides application configuration management.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (AZURE_OPENAI_*, DATABASE_URL, ...)
//  2. Config file (grimoire.yaml in the working directory, optional)
//  3. Default values matching the production corpus
//
// Sensitive values (API key, database URL) are masked by String() and
// never logged.
//
// Error handling uses sentinel errors so callers can branch with
// errors.Is(); wrap with fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates AZURE_OPENAI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing AZURE_OPENAI_API_KEY")

	// ErrMissingEndpoint indicates AZURE_OPENAI_ENDPOINT is not set.
	ErrMissingEndpoint = errors.New("missing AZURE_OPENAI_ENDPOINT")

	// ErrMissingEmbeddingDeployment indicates the embedding deployment name is not set.
	ErrMissingEmbeddingDeployment = errors.New("missing AZURE_OPENAI_EMBEDDING_DEPLOYMENT_NAME")

	// ErrMissingChatDeployment indicates the chat deployment name is not set.
	ErrMissingChatDeployment = errors.New("missing AZURE_OPENAI_DEPLOYMENT_NAME")

	// ErrMissingDatabaseURL indicates DATABASE_URL is not set.
	ErrMissingDatabaseURL = errors.New("missing DATABASE_URL")

	// ErrInvalidChunking indicates a chunking threshold is out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidRetrieval indicates a retrieval parameter is out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval configuration")
)

// Config stores the application configuration.
// All values are captured once at startup and passed by reference;
// components never read the environment themselves.
type Config struct {
	// Azure OpenAI
	AzureOpenAIAPIKey      string `mapstructure:"azure_openai_api_key"`
	AzureOpenAIEndpoint    string `mapstructure:"azure_openai_endpoint"`
	AzureOpenAIAPIVersion  string `mapstructure:"azure_openai_api_version"`
	EmbeddingDeploymentName string `mapstructure:"azure_openai_embedding_deployment_name"`
	ChatDeploymentName     string `mapstructure:"azure_openai_deployment_name"`
	EmbeddingDimensions    int    `mapstructure:"embedding_dimensions"`

	// Storage
	DatabaseURL string `mapstructure:"database_url"`
	DBBatchSize int    `mapstructure:"db_batch_size"`

	// Chunking thresholds (characters of plain text)
	MaxChunkChars     int `mapstructure:"max_chunk_chars"`
	ChunkOverlapChars int `mapstructure:"chunk_overlap_chars"`
	MinContentChars   int `mapstructure:"min_content_chars"`

	// Embedding batching and retry
	EmbeddingBatchSize int           `mapstructure:"embedding_batch_size"`
	EmbeddingDelay     time.Duration `mapstructure:"embedding_delay"`
	RetryWait          time.Duration `mapstructure:"retry_wait"`
	MaxServerRetries   int           `mapstructure:"max_server_retries"`

	// Retrieval
	TopK                int     `mapstructure:"top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`

	// HTTP server (serve command)
	ListenAddr string `mapstructure:"listen_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load reads configuration from the environment and an optional
// grimoire.yaml in the working directory.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("grimoire")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; only real parse failures are fatal.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers a default for every key. Viper only consults the
// environment for keys it already knows about, so every key needs a default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("azure_openai_api_key", "")
	v.SetDefault("azure_openai_endpoint", "")
	v.SetDefault("azure_openai_api_version", "2024-06-01")
	v.SetDefault("azure_openai_embedding_deployment_name", "text-embedding-3-small")
	v.SetDefault("azure_openai_deployment_name", "")
	v.SetDefault("embedding_dimensions", 1536)

	v.SetDefault("database_url", "")
	v.SetDefault("db_batch_size", 50)

	v.SetDefault("max_chunk_chars", 6000)
	v.SetDefault("chunk_overlap_chars", 200)
	v.SetDefault("min_content_chars", 20)

	v.SetDefault("embedding_batch_size", 100)
	v.SetDefault("embedding_delay", 200*time.Millisecond)
	v.SetDefault("retry_wait", 2*time.Second)
	v.SetDefault("max_server_retries", 5)

	v.SetDefault("top_k", 8)
	v.SetDefault("similarity_threshold", 0.3)

	v.SetDefault("listen_addr", ":8080")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// ValidateDatabase checks the settings required for any command that
// touches the vector store.
func (c *Config) ValidateDatabase() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

// ValidateEmbedding checks the settings required to call the embedding API.
func (c *Config) ValidateEmbedding() error {
	if c.AzureOpenAIAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.AzureOpenAIEndpoint == "" {
		return ErrMissingEndpoint
	}
	if c.EmbeddingDeploymentName == "" {
		return ErrMissingEmbeddingDeployment
	}
	return nil
}

// ValidateChat checks the settings required by the chat orchestrator.
func (c *Config) ValidateChat() error {
	if err := c.ValidateEmbedding(); err != nil {
		return err
	}
	if c.ChatDeploymentName == "" {
		return ErrMissingChatDeployment
	}
	return nil
}

// ValidateChunking checks the chunking and retrieval thresholds.
func (c *Config) ValidateChunking() error {
	if c.MaxChunkChars < 100 {
		return fmt.Errorf("%w: max_chunk_chars must be >= 100, got %d", ErrInvalidChunking, c.MaxChunkChars)
	}
	if c.ChunkOverlapChars < 0 || c.ChunkOverlapChars >= c.MaxChunkChars {
		return fmt.Errorf("%w: chunk_overlap_chars must be in [0, max_chunk_chars), got %d", ErrInvalidChunking, c.ChunkOverlapChars)
	}
	if c.MinContentChars < 0 {
		return fmt.Errorf("%w: min_content_chars must be >= 0, got %d", ErrInvalidChunking, c.MinContentChars)
	}
	if c.EmbeddingBatchSize < 1 {
		return fmt.Errorf("%w: embedding_batch_size must be >= 1, got %d", ErrInvalidChunking, c.EmbeddingBatchSize)
	}
	if c.DBBatchSize < 1 {
		return fmt.Errorf("%w: db_batch_size must be >= 1, got %d", ErrInvalidChunking, c.DBBatchSize)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: top_k must be >= 1, got %d", ErrInvalidRetrieval, c.TopK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold must be in [0, 1], got %v", ErrInvalidRetrieval, c.SimilarityThreshold)
	}
	return nil
}

// String returns a loggable representation with secrets masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{endpoint=%s, embedding=%s, chat=%s, dims=%d, api_key=%s, database_url=%s, chunk=%d/%d/%d, topK=%d, threshold=%v}",
		c.AzureOpenAIEndpoint,
		c.EmbeddingDeploymentName,
		c.ChatDeploymentName,
		c.EmbeddingDimensions,
		mask(c.AzureOpenAIAPIKey),
		mask(c.DatabaseURL),
		c.MaxChunkChars, c.ChunkOverlapChars, c.MinContentChars,
		c.TopK, c.SimilarityThreshold,
	)
}

func mask(s string) string {
	if s == "" {
		return "<unset>"
	}
	return "***"
}
