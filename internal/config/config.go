package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is built once at startup from the environment and passed explicitly
// to every component. It is never mutated afterwards.
type Config struct {
	APIHost string
	APIPort int

	// Models
	EmbeddingModel string
	ChatModel      string

	// Chunking and QA context limits
	ChunkSize    int
	ChunkOverlap int
	MaxChunks    int

	CitationThreshold float64

	SearchCacheCapacity int
	SearchCacheTTL      time.Duration

	// Upstream endpoints and credentials
	VectorStoreURL        string
	VectorStoreAPIVersion string
	EmbeddingAPIKey       string
	EmbeddingBaseURL      string
	LLMAPIKey             string
	LLMBaseURL            string

	EmbeddingDim       int
	EmbeddingBatchSize int

	// Optional Redis second-level embedding cache
	EmbeddingCacheRedisAddr string

	SummaryConcurrency int

	// Optional S3 mirror of raw uploads
	S3Bucket  string
	AWSRegion string

	// Per-call timeouts
	EmbeddingTimeout   time.Duration
	LLMTimeout         time.Duration
	VectorStoreTimeout time.Duration

	DemoMode bool
	LogLevel string
}

// Load reads configuration from the environment with defaults.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("API_HOST", "0.0.0.0")
	v.SetDefault("API_PORT", 8080)
	v.SetDefault("EMBEDDING_MODEL", "text-embedding-ada-002")
	v.SetDefault("CHAT_MODEL", "gpt-3.5-turbo")
	v.SetDefault("CHUNK_SIZE", 1000)
	v.SetDefault("CHUNK_OVERLAP", 100)
	v.SetDefault("MAX_CHUNKS", 15)
	v.SetDefault("CITATION_THRESHOLD", 0.40)
	v.SetDefault("SEARCH_CACHE_CAPACITY", 1000)
	v.SetDefault("SEARCH_CACHE_TTL_SEC", 3600)
	v.SetDefault("VECTOR_STORE_URL", "http://localhost:8002")
	v.SetDefault("VECTOR_STORE_API_VERSION", "v1")
	v.SetDefault("EMBEDDING_DIM", 1536)
	v.SetDefault("EMBEDDING_BATCH_SIZE", 96)
	v.SetDefault("SUMMARY_CONCURRENCY", 4)
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("EMBEDDING_TIMEOUT_SEC", 30)
	v.SetDefault("LLM_TIMEOUT_SEC", 60)
	v.SetDefault("VECTOR_STORE_TIMEOUT_SEC", 15)
	v.SetDefault("DEMO_MODE", false)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := Config{
		APIHost:                 v.GetString("API_HOST"),
		APIPort:                 v.GetInt("API_PORT"),
		EmbeddingModel:          v.GetString("EMBEDDING_MODEL"),
		ChatModel:               v.GetString("CHAT_MODEL"),
		ChunkSize:               v.GetInt("CHUNK_SIZE"),
		ChunkOverlap:            v.GetInt("CHUNK_OVERLAP"),
		MaxChunks:               v.GetInt("MAX_CHUNKS"),
		CitationThreshold:       v.GetFloat64("CITATION_THRESHOLD"),
		SearchCacheCapacity:     v.GetInt("SEARCH_CACHE_CAPACITY"),
		SearchCacheTTL:          time.Duration(v.GetInt("SEARCH_CACHE_TTL_SEC")) * time.Second,
		VectorStoreURL:          v.GetString("VECTOR_STORE_URL"),
		VectorStoreAPIVersion:   v.GetString("VECTOR_STORE_API_VERSION"),
		EmbeddingAPIKey:         v.GetString("EMBEDDING_API_KEY"),
		EmbeddingBaseURL:        v.GetString("EMBEDDING_BASE_URL"),
		LLMAPIKey:               v.GetString("LLM_API_KEY"),
		LLMBaseURL:              v.GetString("LLM_BASE_URL"),
		EmbeddingDim:            v.GetInt("EMBEDDING_DIM"),
		EmbeddingBatchSize:      v.GetInt("EMBEDDING_BATCH_SIZE"),
		EmbeddingCacheRedisAddr: v.GetString("EMBEDDING_CACHE_REDIS_ADDR"),
		SummaryConcurrency:      v.GetInt("SUMMARY_CONCURRENCY"),
		S3Bucket:                v.GetString("S3_BUCKET"),
		AWSRegion:               v.GetString("AWS_REGION"),
		EmbeddingTimeout:        time.Duration(v.GetInt("EMBEDDING_TIMEOUT_SEC")) * time.Second,
		LLMTimeout:              time.Duration(v.GetInt("LLM_TIMEOUT_SEC")) * time.Second,
		VectorStoreTimeout:      time.Duration(v.GetInt("VECTOR_STORE_TIMEOUT_SEC")) * time.Second,
		DemoMode:                v.GetBool("DEMO_MODE"),
		LogLevel:                v.GetString("LOG_LEVEL"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk overlap cannot be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be less than chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	if c.CitationThreshold < 0 || c.CitationThreshold > 1 {
		return fmt.Errorf("citation threshold must be in [0,1], got %g", c.CitationThreshold)
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("api port must be in (0,65535], got %d", c.APIPort)
	}
	if v := c.VectorStoreAPIVersion; v != "v1" && v != "v2" {
		return fmt.Errorf("vector store api version must be v1 or v2, got %q", v)
	}
	if !c.DemoMode && c.EmbeddingAPIKey == "" {
		return fmt.Errorf("EMBEDDING_API_KEY is required (or set DEMO_MODE=true)")
	}
	if !c.DemoMode && c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required (or set DEMO_MODE=true)")
	}
	if c.SummaryConcurrency <= 0 {
		return fmt.Errorf("summary concurrency must be positive, got %d", c.SummaryConcurrency)
	}
	return nil
}

// S3Enabled reports whether the optional upload mirror is configured.
func (c Config) S3Enabled() bool { return c.S3Bucket != "" }

// ListenAddr returns host:port for the HTTP server.
func (c Config) ListenAddr() string { return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort) }
