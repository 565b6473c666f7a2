package search

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/luminalhq/docchat/internal/metrics"
	"github.com/luminalhq/docchat/internal/model"
)

// Cache holds recent result sets keyed by search_id so follow-up questions
// can reuse retrieved context without re-searching. Entries expire after the
// TTL and the least recently used fall out at capacity.
type Cache struct {
	lru *expirable.LRU[string, model.SearchResultSet]
}

// NewCache builds a cache with the given capacity and TTL. Non-positive
// values fall back to 1000 entries and one hour.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{lru: expirable.NewLRU[string, model.SearchResultSet](capacity, nil, ttl)}
}

// Put stores a result set under its search_id.
func (c *Cache) Put(set model.SearchResultSet) {
	c.lru.Add(set.SearchID, set)
	metrics.SearchCacheSize.Set(float64(c.lru.Len()))
}

// Get returns the result set for id. A miss, including an expired entry,
// returns ok=false.
func (c *Cache) Get(id string) (model.SearchResultSet, bool) {
	set, ok := c.lru.Get(id)
	if ok {
		metrics.SearchCacheHits.Inc()
	} else {
		metrics.SearchCacheMisses.Inc()
	}
	return set, ok
}

// Evict removes one entry; it reports whether the id was present.
func (c *Cache) Evict(id string) bool {
	ok := c.lru.Remove(id)
	metrics.SearchCacheSize.Set(float64(c.lru.Len()))
	return ok
}

// Len returns the number of live entries.
func (c *Cache) Len() int { return c.lru.Len() }
