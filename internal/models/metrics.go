package models

import "time"

// SystemMetrics is a lightweight instrumentation snapshot served next to the Prometheus endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	EngineComputeCount       uint64    `json:"engine_compute_count"`
	AverageEngineComputeMs   float64   `json:"average_engine_compute_ms"`
	MemoHits                 uint64    `json:"memo_hits"`
	StaleFetchDiscards       uint64    `json:"stale_fetch_discards"`
	UpstreamFetchErrors      uint64    `json:"upstream_fetch_errors"`
	PrefetchQueueDepth       int       `json:"prefetch_queue_depth"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
