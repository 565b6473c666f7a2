package embeddings

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(Config{DemoMode: true, Dimension: 64}, nil)
}

func TestDemoEmbedDeterministic(t *testing.T) {
	c := demoClient(t)
	ctx := context.Background()

	a, err := c.Embed(ctx, []string{"hello world"})
	require.NoError(t, err)
	b, err := c.Embed(ctx, []string{"hello world"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := c.Embed(ctx, []string{"different text"})
	require.NoError(t, err)
	assert.NotEqual(t, a[0], other[0])
}

func TestDemoEmbedShape(t *testing.T) {
	c := demoClient(t)
	vecs, err := c.Embed(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 64)
		var norm float64
		for _, f := range v {
			norm += float64(f) * float64(f)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-3, "demo vectors are unit length")
	}
}

func TestPingDemoMode(t *testing.T) {
	c := demoClient(t)
	require.NoError(t, c.Ping(context.Background()))
}

func TestEmbedEmptyInput(t *testing.T) {
	c := demoClient(t)
	vecs, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestLocalLRUEviction(t *testing.T) {
	lru := NewLocalLRU(2)
	ctx := context.Background()

	lru.Set(ctx, "a", []float32{1}, time.Minute)
	lru.Set(ctx, "b", []float32{2}, time.Minute)
	lru.Set(ctx, "c", []float32{3}, time.Minute)

	_, ok := lru.Get(ctx, "a")
	assert.False(t, ok, "oldest entry evicted at capacity")
	v, ok := lru.Get(ctx, "c")
	require.True(t, ok)
	assert.Equal(t, []float32{3}, v)
}

func TestLocalLRUExpiry(t *testing.T) {
	lru := NewLocalLRU(4)
	ctx := context.Background()

	lru.Set(ctx, "k", []float32{1}, -time.Second)
	_, ok := lru.Get(ctx, "k")
	assert.False(t, ok, "expired entry is a miss")
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := NewRedisCache(mr.Addr())
	require.NoError(t, err)

	ctx := context.Background()
	vec := []float32{0.5, -1.25, 3.75}
	rc.Set(ctx, "emb:test", vec, time.Minute)

	got, ok := rc.Get(ctx, "emb:test")
	require.True(t, ok)
	assert.Equal(t, vec, got)

	_, ok = rc.Get(ctx, "emb:absent")
	assert.False(t, ok)
}

func TestMakeKeyIncludesModel(t *testing.T) {
	a := MakeKey("model-a", "same text")
	b := MakeKey("model-b", "same text")
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "emb:")
}
