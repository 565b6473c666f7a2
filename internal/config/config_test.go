package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DEMO_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.ChunkOverlap)
	assert.Equal(t, 15, cfg.MaxChunks)
	assert.Equal(t, 0.40, cfg.CitationThreshold)
	assert.Equal(t, 1000, cfg.SearchCacheCapacity)
	assert.Equal(t, "v1", cfg.VectorStoreAPIVersion)
	assert.Equal(t, 1536, cfg.EmbeddingDim)
	assert.Equal(t, 96, cfg.EmbeddingBatchSize)
	assert.Equal(t, 4, cfg.SummaryConcurrency)
	assert.True(t, cfg.DemoMode)
	assert.False(t, cfg.S3Enabled())
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DEMO_MODE", "true")
	t.Setenv("API_PORT", "9090")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "50")
	t.Setenv("VECTOR_STORE_API_VERSION", "v2")
	t.Setenv("S3_BUCKET", "docchat-raw")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, "v2", cfg.VectorStoreAPIVersion)
	assert.True(t, cfg.S3Enabled())
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() Config {
		return Config{
			APIPort:               8080,
			ChunkSize:             1000,
			ChunkOverlap:          100,
			CitationThreshold:     0.4,
			VectorStoreAPIVersion: "v1",
			SummaryConcurrency:    4,
			DemoMode:              true,
		}
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.ChunkOverlap = 1000
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.CitationThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.VectorStoreAPIVersion = "v3"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.DemoMode = false
	assert.Error(t, cfg.Validate(), "missing API keys outside demo mode")

	cfg = base()
	cfg.SummaryConcurrency = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadRejectsMissingKeys(t *testing.T) {
	t.Setenv("DEMO_MODE", "false")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}
