package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/luminalhq/docchat/internal/metrics"
	"github.com/luminalhq/docchat/internal/model"
)

const maxRetryAttempts = 3

// Client generates embeddings with a two-level cache in front of the
// provider. It is stateless apart from the caches and safe to share.
type Client struct {
	cfg   Config
	api   *openai.Client
	lru   *LocalLRU
	cache Cache // optional Redis second level, may be nil
	log   *zap.Logger
}

// NewClient builds an embedding client. The Redis cache is attached when
// configured and reachable; otherwise the client runs on the LocalLRU alone.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{cfg: cfg, lru: NewLocalLRU(cfg.MaxLRU), log: logger}

	if !cfg.DemoMode {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		c.api = openai.NewClientWithConfig(oc)
	}

	if cfg.RedisAddr != "" {
		rc, err := NewRedisCache(cfg.RedisAddr)
		if err != nil {
			logger.Warn("embedding redis cache unavailable, continuing with local LRU only",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			c.cache = rc
		}
	}
	return c
}

// Dimension returns the configured vector length D.
func (c *Client) Dimension() int { return c.cfg.Dimension }

// Ping probes the provider. The probe text lands in the LRU, so repeated
// health checks cost a single upstream call.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Embed(ctx, []string{"ping"})
	return err
}

// Embed returns one vector per input text, in order. Cached vectors are
// served without a provider call; the rest are fetched in batches of at most
// BatchSize. The vector count always equals the input count on success.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var uncached []string
	var uncachedIdx []int

	for i, text := range texts {
		key := MakeKey(c.cfg.Model, text)
		if v, ok := c.lru.Get(ctx, key); ok {
			results[i] = v
			metrics.RecordEmbeddingMetrics(c.cfg.Model, "lru_hit", 0)
			continue
		}
		if c.cache != nil {
			if v, ok := c.cache.Get(ctx, key); ok {
				results[i] = v
				c.lru.Set(ctx, key, v, c.cfg.CacheTTL)
				metrics.RecordEmbeddingMetrics(c.cfg.Model, "cache_hit", 0)
				continue
			}
		}
		uncached = append(uncached, text)
		uncachedIdx = append(uncachedIdx, i)
	}

	for start := 0; start < len(uncached); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(uncached) {
			end = len(uncached)
		}
		vecs, err := c.embedBatch(ctx, uncached[start:end])
		if err != nil {
			return nil, err
		}
		for j, v := range vecs {
			idx := uncachedIdx[start+j]
			results[idx] = v
			key := MakeKey(c.cfg.Model, uncached[start+j])
			c.lru.Set(ctx, key, v, c.cfg.CacheTTL)
			if c.cache != nil {
				c.cache.Set(ctx, key, v, c.cfg.CacheTTL)
			}
		}
	}
	return results, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.cfg.DemoMode {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			out[i] = demoVector(t, c.cfg.Dimension)
		}
		return out, nil
	}

	start := time.Now()

	var resp openai.EmbeddingResponse
	op := func() error {
		r, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: openai.EmbeddingModel(c.cfg.Model),
		})
		if err != nil {
			if transient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.Multiplier = 2
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxRetryAttempts-1), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		metrics.RecordEmbeddingMetrics(c.cfg.Model, "error", time.Since(start).Seconds())
		if ctx.Err() != nil {
			return nil, model.WithStage(model.StageEmbed, model.Classify(ctx.Err()))
		}
		return nil, model.WithStage(model.StageEmbed,
			fmt.Errorf("%w: embedding after %d attempts: %v", model.ErrUpstreamUnavailable, maxRetryAttempts, err))
	}

	if len(resp.Data) != len(texts) {
		metrics.RecordEmbeddingMetrics(c.cfg.Model, "error", time.Since(start).Seconds())
		return nil, model.WithStage(model.StageEmbed,
			fmt.Errorf("%w: provider returned %d embeddings for %d texts", model.ErrInternal, len(resp.Data), len(texts)))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	metrics.RecordEmbeddingMetrics(c.cfg.Model, "ok", time.Since(start).Seconds())
	return out, nil
}

// transient reports whether an upstream failure is worth retrying:
// 5xx and 429 responses, timeouts, and connection resets.
func transient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

// demoVector derives a deterministic L2-normalized vector from the text so
// that identical texts compare at similarity 1 without any provider.
func demoVector(text string, dim int) []float32 {
	out := make([]float32, dim)
	var block [8]byte
	seed := sha256.Sum256([]byte(text))
	var norm float64
	for i := 0; i < dim; i++ {
		binary.LittleEndian.PutUint64(block[:], uint64(i))
		h := sha256.Sum256(append(seed[:], block[:]...))
		u := binary.LittleEndian.Uint32(h[:4])
		// map to [-1, 1]
		f := float64(u)/float64(math.MaxUint32)*2 - 1
		out[i] = float32(f)
		norm += f * f
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range out {
			out[i] *= inv
		}
	}
	return out
}
