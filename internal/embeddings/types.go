package embeddings

import "time"

// Config controls the embedding client behavior.
type Config struct {
	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways).
	BaseURL string
	APIKey  string
	// Model is the embedding model identifier.
	Model string
	// Dimension is the expected vector length D.
	Dimension int
	// BatchSize caps texts per provider call.
	BatchSize int
	// Timeout for one provider call.
	Timeout time.Duration
	// CacheTTL sets TTL for cached vectors.
	CacheTTL time.Duration
	// MaxLRU controls the in-process LRU size.
	MaxLRU int
	// RedisAddr enables the Redis second-level cache when non-empty.
	RedisAddr string
	// DemoMode returns deterministic hash-derived vectors without any
	// provider call.
	DemoMode bool
}

func (c *Config) setDefaults() {
	if c.Model == "" {
		c.Model = "text-embedding-ada-002"
	}
	if c.Dimension <= 0 {
		c.Dimension = 1536
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 96
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.MaxLRU <= 0 {
		c.MaxLRU = 2048
	}
}
