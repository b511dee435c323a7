// Package cache holds the in-process profile cache and the redis client
// constructor.
package cache

import (
	"maps"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/Espresso-Aficionados/sprobot/apperr"
	"github.com/Espresso-Aficionados/sprobot/metrics"
)

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	HitRatio float64 `json:"hit_ratio"`
}

// ProfileCache is a bounded LRU of profile documents keyed by
// "template/community/user". Values are copied on the way in and out, so
// callers may mutate what they get back. Safe for concurrent use; the
// counters are only approximately consistent with each other.
type ProfileCache struct {
	entries  *lru.Cache[string, map[string]string]
	capacity int

	hits   atomic.Uint64
	misses atomic.Uint64

	log *zap.Logger
}

// NewProfileCache returns a cache holding at most capacity documents.
func NewProfileCache(capacity int, log *zap.Logger) (*ProfileCache, error) {
	if capacity <= 0 {
		return nil, apperr.InvalidArgument("cache capacity must be positive")
	}
	entries, err := lru.New[string, map[string]string](capacity)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileCache{entries: entries, capacity: capacity, log: log}, nil
}

// Get returns a copy of the cached document and records a hit or miss.
func (c *ProfileCache) Get(key string) (map[string]string, bool) {
	doc, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
		metrics.ProfileCacheHits.Inc()
	} else {
		c.misses.Add(1)
		metrics.ProfileCacheMisses.Inc()
	}

	stats := c.Stats()
	c.log.Debug("Profile cache lookup",
		zap.String("key", key),
		zap.Bool("hit", ok),
		zap.Uint64("hits", stats.Hits),
		zap.Uint64("misses", stats.Misses),
		zap.Float64("hit_ratio", stats.HitRatio),
	)

	if !ok {
		return nil, false
	}
	return maps.Clone(doc), true
}

// Put stores a copy of doc, evicting the least recently used entry when
// the cache is full.
func (c *ProfileCache) Put(key string, doc map[string]string) {
	if doc == nil {
		doc = map[string]string{}
	}
	c.entries.Add(key, maps.Clone(doc))
}

// Invalidate drops key. Missing keys are ignored.
func (c *ProfileCache) Invalidate(key string) {
	c.entries.Remove(key)
}

func (c *ProfileCache) Len() int {
	return c.entries.Len()
}

func (c *ProfileCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	stats := Stats{
		Hits:     hits,
		Misses:   misses,
		Size:     c.entries.Len(),
		Capacity: c.capacity,
	}
	if total := hits + misses; total > 0 {
		stats.HitRatio = float64(hits) / float64(total)
	}
	return stats
}
