package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"manualkb/internal/embedder"
	"manualkb/internal/storage"
)

// Cache defaults.
const (
	DefaultTTL                 = 10 * time.Minute
	DefaultMaxSize             = 100
	DefaultSimilarityThreshold = 0.90
)

// Config tunes the response cache.
type Config struct {
	TTL                 time.Duration
	MaxSize             int
	SimilarityThreshold float64
}

// DefaultConfig returns the documented cache defaults.
func DefaultConfig() Config {
	return Config{
		TTL:                 DefaultTTL,
		MaxSize:             DefaultMaxSize,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// entry is one cached response. Immutable after insertion except for the
// lastAccessedAt touch on a hit.
type entry[V any] struct {
	embedding      []float32
	value          V
	createdAt      time.Time
	lastAccessedAt time.Time
}

// Cache memoizes computed responses keyed by the query's position in
// embedding space rather than its exact text, so rephrased near-duplicate
// questions reuse the original answer. Lookup scans all live entries for
// the best cosine match, which is linear but cheap at the configured
// capacity.
//
// Expiry is lazy: expired entries are skipped during scans and physically
// removed while the insert path already holds the write lock. There is no
// background sweeper.
type Cache[V any] struct {
	embedder embedder.Embedder
	logger   *slog.Logger

	ttl       time.Duration
	maxSize   int
	threshold float64

	mu      sync.RWMutex
	entries []*entry[V]

	now func() time.Time // test hook
}

// New creates a response cache. Zero config fields fall back to the
// documented defaults.
func New[V any](emb embedder.Embedder, cfg Config, logger *slog.Logger) *Cache[V] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}

	return &Cache[V]{
		embedder:  emb,
		logger:    logger,
		ttl:       cfg.TTL,
		maxSize:   cfg.MaxSize,
		threshold: cfg.SimilarityThreshold,
		now:       time.Now,
	}
}

// LookupOrCompute returns the cached response for a query semantically close
// to queryText, or runs compute and caches its result. The boolean reports
// whether the response came from the cache.
//
// A hit requires the best live entry's cosine similarity to reach the
// configured threshold. On a miss the computed value is stored under the
// fresh query embedding; when the cache is full the entry with the oldest
// access time is evicted first.
//
// If embedding the query fails the cache steps aside: compute runs and its
// result is returned uncached, since a cache outage must not fail the query.
func (c *Cache[V]) LookupOrCompute(ctx context.Context, queryText string, compute func(context.Context) (V, error)) (V, bool, error) {
	var zero V

	queryEmbedding, err := c.embedder.GenerateEmbedding(ctx, queryText)
	if err != nil {
		if ctx.Err() != nil {
			return zero, false, fmt.Errorf("cache lookup canceled: %w", ctx.Err())
		}
		c.logger.Warn("cache lookup skipped, query embedding failed", "error", err)
		value, err := compute(ctx)
		return value, false, err
	}

	if value, ok := c.lookup(queryEmbedding); ok {
		return value, true, nil
	}

	value, err := compute(ctx)
	if err != nil {
		return zero, false, err
	}

	c.insert(queryEmbedding, value)
	return value, false, nil
}

// lookup scans live entries for the best match and touches it on a hit.
// The scan runs under the read lock; the touch re-checks the entry under
// the write lock because it may have been evicted or expired in between.
func (c *Cache[V]) lookup(queryEmbedding []float32) (V, bool) {
	var zero V

	c.mu.RLock()
	best := c.bestMatchLocked(queryEmbedding)
	c.mu.RUnlock()

	if best == nil {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.containsLocked(best) || c.expiredLocked(best) {
		return zero, false
	}
	best.lastAccessedAt = c.now()
	return best.value, true
}

// bestMatchLocked returns the live entry with the highest cosine similarity
// to the query, or nil when none reaches the threshold. Callers hold at
// least the read lock.
func (c *Cache[V]) bestMatchLocked(queryEmbedding []float32) *entry[V] {
	var best *entry[V]
	bestSim := 0.0

	for _, e := range c.entries {
		if c.expiredLocked(e) {
			continue
		}
		sim := storage.CosineSimilarity(queryEmbedding, e.embedding)
		if sim > bestSim {
			best = e
			bestSim = sim
		}
	}

	if best == nil || bestSim < c.threshold {
		return nil
	}
	return best
}

// insert stores a fresh entry, dropping expired entries opportunistically
// and evicting by oldest access time under capacity pressure.
func (c *Cache[V]) insert(queryEmbedding []float32, value V) {
	now := c.now()
	fresh := &entry[V]{
		embedding:      queryEmbedding,
		value:          value,
		createdAt:      now,
		lastAccessedAt: now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeExpiredLocked()
	c.entries = append(c.entries, fresh)

	for len(c.entries) > c.maxSize {
		c.evictOldestLocked()
	}
}

// removeExpiredLocked drops entries past their TTL. Called with the write
// lock held.
func (c *Cache[V]) removeExpiredLocked() {
	live := c.entries[:0]
	for _, e := range c.entries {
		if c.expiredLocked(e) {
			continue
		}
		live = append(live, e)
	}
	for i := len(live); i < len(c.entries); i++ {
		c.entries[i] = nil
	}
	c.entries = live
}

// evictOldestLocked removes the entry with the oldest lastAccessedAt.
// Called with the write lock held and a non-empty entry list.
func (c *Cache[V]) evictOldestLocked() {
	oldest := 0
	for i, e := range c.entries {
		if e.lastAccessedAt.Before(c.entries[oldest].lastAccessedAt) {
			oldest = i
		}
	}

	c.logger.Debug("evicting cache entry",
		"last_accessed", c.entries[oldest].lastAccessedAt,
		"size", len(c.entries))
	c.entries = append(c.entries[:oldest], c.entries[oldest+1:]...)
}

func (c *Cache[V]) expiredLocked(e *entry[V]) bool {
	return c.now().Sub(e.createdAt) >= c.ttl
}

func (c *Cache[V]) containsLocked(target *entry[V]) bool {
	for _, e := range c.entries {
		if e == target {
			return true
		}
	}
	return false
}

// Len returns the number of stored entries, expired ones included until
// they are lazily removed.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Capacity returns the configured maximum entry count.
func (c *Cache[V]) Capacity() int {
	return c.maxSize
}

// Purge drops every entry. The service calls this after an index rebuild
// because cached responses reference chunks of the previous index.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}
