package metrics

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Feed pagination metrics exported to Prometheus
var (
	LoadMoreTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_load_more_total",
			Help: "Total number of load-more invocations",
		},
		[]string{"strategy", "status"},
	)

	LoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_load_duration_seconds",
			Help:    "Load-more duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"strategy"},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_request_cache_hits_total",
			Help: "Total number of feed request cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_request_cache_misses_total",
			Help: "Total number of feed request cache misses",
		},
	)

	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_request_cache_evictions_total",
			Help: "Total number of feed request cache evictions",
		},
	)

	MemoryTrimsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_post_buffer_trims_total",
			Help: "Total number of post buffer memory trims",
		},
	)

	AutoFetchSignalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_auto_fetch_signals_total",
			Help: "Total number of auto-fetch signals emitted for under-filled filtered views",
		},
	)
)

// PaginationMetrics tracks rolling in-process metrics for one pagination
// instance. Advisory only; never read for correctness.
type PaginationMetrics struct {
	RequestCount int64
	CacheHits    int64
	CacheMisses  int64
	ErrorCount   int64

	// Load timings in milliseconds
	TotalLoadTime int64
	MaxLoadTime   int64
	MinLoadTime   int64

	TrimmedPosts int64

	mu          sync.RWMutex
	loadTimings []int64 // recent timings, bounded
	maxTimings  int
}

// NewPaginationMetrics creates a new rolling metrics tracker
func NewPaginationMetrics() *PaginationMetrics {
	return &PaginationMetrics{
		loadTimings: make([]int64, 0, 1024),
		maxTimings:  1024,
	}
}

// RecordLoad records a single load-more cycle
func (pm *PaginationMetrics) RecordLoad(strategy string, duration time.Duration, failed bool) {
	ms := duration.Milliseconds()

	atomic.AddInt64(&pm.RequestCount, 1)
	atomic.AddInt64(&pm.TotalLoadTime, ms)

	for {
		max := atomic.LoadInt64(&pm.MaxLoadTime)
		if ms <= max || atomic.CompareAndSwapInt64(&pm.MaxLoadTime, max, ms) {
			break
		}
	}
	for {
		min := atomic.LoadInt64(&pm.MinLoadTime)
		if (min != 0 && ms >= min) || atomic.CompareAndSwapInt64(&pm.MinLoadTime, min, ms) {
			break
		}
	}

	status := "success"
	if failed {
		atomic.AddInt64(&pm.ErrorCount, 1)
		status = "error"
	}
	LoadMoreTotal.WithLabelValues(strategy, status).Inc()
	LoadDuration.WithLabelValues(strategy).Observe(duration.Seconds())

	pm.mu.Lock()
	if len(pm.loadTimings) >= pm.maxTimings {
		pm.loadTimings = pm.loadTimings[1:]
	}
	pm.loadTimings = append(pm.loadTimings, ms)
	pm.mu.Unlock()
}

// RecordCacheHit records a request cache hit
func (pm *PaginationMetrics) RecordCacheHit() {
	atomic.AddInt64(&pm.CacheHits, 1)
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a request cache miss
func (pm *PaginationMetrics) RecordCacheMiss() {
	atomic.AddInt64(&pm.CacheMisses, 1)
	CacheMissesTotal.Inc()
}

// RecordEviction records a request cache eviction
func (pm *PaginationMetrics) RecordEviction() {
	CacheEvictionsTotal.Inc()
}

// RecordTrim records a post buffer trim of n posts
func (pm *PaginationMetrics) RecordTrim(n int) {
	atomic.AddInt64(&pm.TrimmedPosts, int64(n))
	MemoryTrimsTotal.Inc()
}

// CacheHitRate returns the fraction of cache lookups that hit, 0..1
func (pm *PaginationMetrics) CacheHitRate() float64 {
	hits := atomic.LoadInt64(&pm.CacheHits)
	misses := atomic.LoadInt64(&pm.CacheMisses)
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// ErrorRate returns the fraction of load cycles that failed, 0..1
func (pm *PaginationMetrics) ErrorRate() float64 {
	requests := atomic.LoadInt64(&pm.RequestCount)
	if requests == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&pm.ErrorCount)) / float64(requests)
}

// AvgLoadTime returns the mean load time in milliseconds
func (pm *PaginationMetrics) AvgLoadTime() float64 {
	requests := atomic.LoadInt64(&pm.RequestCount)
	if requests == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&pm.TotalLoadTime)) / float64(requests)
}

// P95LoadTime returns the 95th percentile load time in milliseconds over
// the recent-timings window. The lifetime mean hides tail latency; this is
// what dashboards should alert on.
func (pm *PaginationMetrics) P95LoadTime() int64 {
	pm.mu.RLock()
	timings := make([]int64, len(pm.loadTimings))
	copy(timings, pm.loadTimings)
	pm.mu.RUnlock()

	if len(timings) == 0 {
		return 0
	}

	sort.Slice(timings, func(i, j int) bool { return timings[i] < timings[j] })
	idx := (len(timings)*95 + 99) / 100
	if idx > 0 {
		idx--
	}
	return timings[idx]
}

// GetStats returns all rolling metrics as a map
func (pm *PaginationMetrics) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"request_count":    atomic.LoadInt64(&pm.RequestCount),
		"error_count":      atomic.LoadInt64(&pm.ErrorCount),
		"error_rate":       pm.ErrorRate(),
		"cache_hits":       atomic.LoadInt64(&pm.CacheHits),
		"cache_misses":     atomic.LoadInt64(&pm.CacheMisses),
		"cache_hit_rate":   pm.CacheHitRate(),
		"avg_load_time_ms": pm.AvgLoadTime(),
		"p95_load_time_ms": pm.P95LoadTime(),
		"max_load_time_ms": atomic.LoadInt64(&pm.MaxLoadTime),
		"min_load_time_ms": atomic.LoadInt64(&pm.MinLoadTime),
		"trimmed_posts":    atomic.LoadInt64(&pm.TrimmedPosts),
	}
}

// Report returns a human-readable performance report
func (pm *PaginationMetrics) Report() string {
	return fmt.Sprintf(
		"requests=%d errors=%d (%.1f%%) cache_hit_rate=%.1f%% avg_load=%.1fms p95_load=%dms",
		atomic.LoadInt64(&pm.RequestCount),
		atomic.LoadInt64(&pm.ErrorCount),
		pm.ErrorRate()*100,
		pm.CacheHitRate()*100,
		pm.AvgLoadTime(),
		pm.P95LoadTime(),
	)
}

// Reset clears all rolling metrics (tests)
func (pm *PaginationMetrics) Reset() {
	atomic.StoreInt64(&pm.RequestCount, 0)
	atomic.StoreInt64(&pm.CacheHits, 0)
	atomic.StoreInt64(&pm.CacheMisses, 0)
	atomic.StoreInt64(&pm.ErrorCount, 0)
	atomic.StoreInt64(&pm.TotalLoadTime, 0)
	atomic.StoreInt64(&pm.MaxLoadTime, 0)
	atomic.StoreInt64(&pm.MinLoadTime, 0)
	atomic.StoreInt64(&pm.TrimmedPosts, 0)

	pm.mu.Lock()
	pm.loadTimings = pm.loadTimings[:0]
	pm.mu.Unlock()
}
