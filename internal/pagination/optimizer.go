package pagination

import (
	"container/list"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tonemesh/backend/internal/cache"
	"github.com/tonemesh/backend/internal/logger"
	"github.com/tonemesh/backend/internal/metrics"
	"github.com/tonemesh/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	key      string
	result   FetchResult
	storedAt time.Time
}

// Optimizer deduplicates concurrent feed requests, caches recent results in
// a bounded LRU with a TTL freshness check, trims the post buffer, and
// collects advisory performance metrics. An optional Redis client adds a
// shared second cache layer; everything works without it.
type Optimizer struct {
	opts    Options
	group   singleflight.Group
	metrics *metrics.PaginationMetrics

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used

	redis *cache.RedisClient
}

// NewOptimizer creates an optimizer with the given options
func NewOptimizer(opts Options) *Optimizer {
	return &Optimizer{
		opts:    opts.withDefaults(),
		metrics: metrics.NewPaginationMetrics(),
		entries: map[string]*list.Element{},
		lru:     list.New(),
	}
}

// WithRedis attaches a shared Redis cache layer
func (o *Optimizer) WithRedis(rc *cache.RedisClient) *Optimizer {
	o.redis = rc
	return o
}

// Metrics returns the rolling metrics tracker
func (o *Optimizer) Metrics() *metrics.PaginationMetrics {
	return o.metrics
}

// RequestKey derives a stable cache key from the page number and the active
// search/filter context
func RequestKey(page, pageSize int, query string, filters Filters) string {
	payload, _ := json.Marshal(struct {
		Page     int     `json:"page"`
		PageSize int     `json:"page_size"`
		Query    string  `json:"query"`
		Filters  Filters `json:"filters"`
	}{page, pageSize, query, filters})
	return fmt.Sprintf("feed:page:%x", md5.Sum(payload))
}

// OptimizeRequest serves the request from cache when a fresh entry exists,
// deduplicates concurrent requests sharing the same key onto one in-flight
// call, and caches the result on success.
func (o *Optimizer) OptimizeRequest(ctx context.Context, key string, requestFn func(context.Context) (FetchResult, error)) (FetchResult, error) {
	if res, ok := o.lookup(key); ok {
		o.metrics.RecordCacheHit()
		return res, nil
	}

	if o.redis != nil {
		if res, ok := o.lookupRedis(ctx, key); ok {
			o.metrics.RecordCacheHit()
			o.store(key, res)
			return res, nil
		}
	}

	o.metrics.RecordCacheMiss()

	v, err, shared := o.group.Do(key, func() (interface{}, error) {
		start := time.Now()
		res, err := requestFn(ctx)
		o.metrics.RecordLoad(string(StrategyServerFetch), time.Since(start), err != nil)
		if err != nil {
			return FetchResult{}, err
		}
		o.store(key, res)
		o.storeRedis(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return FetchResult{}, err
	}
	if shared {
		logger.Log.Debug("Feed request deduplicated", zap.String("key", key))
	}
	return v.(FetchResult), nil
}

// OptimizeMemoryUsage trims the earliest-fetched posts once the buffer
// exceeds MaxMemoryPosts, preserving the most recently fetched window
// unmodified
func (o *Optimizer) OptimizeMemoryUsage(posts []models.Post) []models.Post {
	over := len(posts) - o.opts.MaxMemoryPosts
	if over <= 0 {
		return posts
	}

	trimmed := append([]models.Post(nil), posts[over:]...)
	o.metrics.RecordTrim(over)
	logger.Log.Debug("Memory usage optimized",
		zap.Int("dropped", over),
		zap.Int("kept", len(trimmed)),
	)
	return trimmed
}

// OptimizeClientPagination returns the rendered prefix window for client
// mode, instrumented with a duration measurement
func (o *Optimizer) OptimizeClientPagination(posts []models.Post, page, pageSize int) []models.Post {
	start := time.Now()

	if page < 1 {
		page = 1
	}
	end := page * pageSize
	if end > len(posts) {
		end = len(posts)
	}
	window := posts[:end]

	o.metrics.RecordLoad(string(StrategyClientReveal), time.Since(start), false)
	return window
}

// InvalidateCache drops all cached feed pages (both layers); used after
// writes that change feed content
func (o *Optimizer) InvalidateCache(ctx context.Context) {
	o.mu.Lock()
	o.entries = map[string]*list.Element{}
	o.lru.Init()
	o.mu.Unlock()

	if o.redis != nil {
		if err := o.redis.DelPattern(ctx, "feed:page:*"); err != nil {
			logger.WarnWithFields("Failed to invalidate Redis feed cache", err)
		}
	}
}

// ---- local LRU layer ----

func (o *Optimizer) lookup(key string) (FetchResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	el, ok := o.entries[key]
	if !ok {
		return FetchResult{}, false
	}

	entry := el.Value.(*cacheEntry)
	if time.Since(entry.storedAt) > o.opts.CacheTTL {
		// Stale entries count as misses and are dropped eagerly
		o.lru.Remove(el)
		delete(o.entries, key)
		return FetchResult{}, false
	}

	o.lru.MoveToFront(el)
	return entry.result, true
}

func (o *Optimizer) store(key string, res FetchResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if el, ok := o.entries[key]; ok {
		el.Value.(*cacheEntry).result = res
		el.Value.(*cacheEntry).storedAt = time.Now()
		o.lru.MoveToFront(el)
		return
	}

	o.entries[key] = o.lru.PushFront(&cacheEntry{key: key, result: res, storedAt: time.Now()})

	// Bounded size: evict least recently used
	for o.lru.Len() > o.opts.CacheSize {
		oldest := o.lru.Back()
		if oldest == nil {
			break
		}
		o.lru.Remove(oldest)
		delete(o.entries, oldest.Value.(*cacheEntry).key)
		o.metrics.RecordEviction()
	}
}

// ---- optional Redis layer ----

func (o *Optimizer) lookupRedis(ctx context.Context, key string) (FetchResult, bool) {
	raw, err := o.redis.Get(ctx, key)
	if err != nil {
		return FetchResult{}, false
	}
	var res FetchResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return FetchResult{}, false
	}
	return res, true
}

func (o *Optimizer) storeRedis(ctx context.Context, key string, res FetchResult) {
	if o.redis == nil {
		return
	}
	if data, err := json.Marshal(res); err == nil {
		if err := o.redis.SetEx(ctx, key, data, o.opts.CacheTTL); err != nil {
			logger.WarnWithFields("Failed to store feed page in Redis", err)
		}
	}
}
