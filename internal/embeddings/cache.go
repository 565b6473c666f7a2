package embeddings

import (
	"container/list"
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache defines second-level vector cache operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, v []float32, ttl time.Duration)
}

// LocalLRU is the in-process first level: recency order on a linked list,
// entries past their TTL treated as absent.
type LocalLRU struct {
	mu    sync.Mutex
	cap   int
	order *list.List
	byKey map[string]*list.Element
}

type lruEntry struct {
	key     string
	vec     []float32
	expires time.Time
}

func NewLocalLRU(capacity int) *LocalLRU {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LocalLRU{cap: capacity, order: list.New(), byKey: make(map[string]*list.Element, capacity)}
}

func (l *LocalLRU) Get(_ context.Context, key string) ([]float32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.byKey[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(lruEntry)
	if !ent.expires.After(time.Now()) {
		l.order.Remove(el)
		delete(l.byKey, key)
		return nil, false
	}
	l.order.MoveToFront(el)
	return ent.vec, true
}

func (l *LocalLRU) Set(_ context.Context, key string, v []float32, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ent := lruEntry{key: key, vec: v, expires: time.Now().Add(ttl)}
	if el, ok := l.byKey[key]; ok {
		el.Value = ent
		l.order.MoveToFront(el)
		return
	}
	l.byKey[key] = l.order.PushFront(ent)
	for l.order.Len() > l.cap {
		oldest := l.order.Back()
		delete(l.byKey, oldest.Value.(lruEntry).key)
		l.order.Remove(oldest)
	}
}

// RedisCache is an optional shared second level behind the LocalLRU.
type RedisCache struct {
	cli *redis.Client
}

func NewRedisCache(addr string) (*RedisCache, error) {
	rc := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisCache{cli: rc}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	b, err := r.cli.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	// vectors are stored as little-endian float32 words
	if len(b)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(b)/4)
	for i := 0; i < len(out); i++ {
		u := binary.LittleEndian.Uint32(b[i*4:])
		out[i] = math.Float32frombits(u)
	}
	return out, true
}

func (r *RedisCache) Set(ctx context.Context, key string, v []float32, ttl time.Duration) {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	_ = r.cli.Set(ctx, key, b, ttl).Err()
}

// MakeKey derives the cache key for one (model, text) pair.
func MakeKey(model, text string) string {
	h := md5.Sum([]byte(model + "|" + text))
	return "emb:" + hex.EncodeToString(h[:])
}
