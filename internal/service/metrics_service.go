package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/wellness-analytics-api/internal/models"
)

const metricsNamespace = "wellness"

// engineBuckets cover sub-millisecond rollups up to half a second.
var engineBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5}

// tally keeps a count and a summed duration for snapshot averages.
type tally struct {
	n     atomic.Uint64
	nanos atomic.Uint64
}

func (t *tally) add(d time.Duration) {
	t.n.Add(1)
	t.nanos.Add(uint64(d.Nanoseconds()))
}

func (t *tally) averageMs() float64 {
	n := t.n.Load()
	if n == 0 {
		return 0
	}
	return float64(t.nanos.Load()) / float64(n) / float64(time.Millisecond)
}

// MetricsService owns the Prometheus registry of the API and keeps running
// totals for the JSON summary. Every method is safe on a nil receiver.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.HistogramVec
	cacheWrite      prometheus.Histogram
	dbQueryDuration *prometheus.HistogramVec
	engineCompute   *prometheus.HistogramVec
	memoLookups     *prometheus.CounterVec
	staleDiscards   prometheus.Counter
	upstreamErrors  *prometheus.CounterVec
	prefetchJobs    *prometheus.CounterVec
	exportsTotal    *prometheus.CounterVec

	queueDepth atomic.Pointer[func() int]

	requests  tally
	dbQueries tally
	computes  tally
	hits      atomic.Uint64
	misses    atomic.Uint64
	memoHits  atomic.Uint64
	stale     atomic.Uint64
	upstreams atomic.Uint64
}

// NewMetricsService builds a private registry with the Go runtime and process
// collectors plus the API's own series.
func NewMetricsService() *MetricsService {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	m := &MetricsService{registry: reg}

	m.requestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request latency by route template.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	m.requestTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests by route template.",
	}, []string{"method", "route", "status"})

	m.cacheLookups = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "cache", Name: "lookup_seconds",
		Help:    "Shared cache reads by result.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})
	m.cacheWrite = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "cache", Name: "write_seconds",
		Help:    "Shared cache writes.",
		Buckets: prometheus.DefBuckets,
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Subsystem: "cache", Name: "hit_ratio",
		Help: "Hits over all shared cache reads since start.",
	}, m.hitRatio)

	m.dbQueryDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "store", Name: "query_duration_seconds",
		Help:    "Record store query latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})
	m.upstreamErrors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "store", Name: "upstream_fetch_errors_total",
		Help: "Record store failures per drill-down level.",
	}, []string{"level"})

	m.engineCompute = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "engine", Name: "compute_seconds",
		Help:    "Analytics engine time per view.",
		Buckets: engineBuckets,
	}, []string{"op"})
	m.memoLookups = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "engine", Name: "memo_lookups_total",
		Help: "Rollup memo lookups by result.",
	}, []string{"result"})

	m.staleDiscards = f.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "navigation", Name: "stale_fetch_discards_total",
		Help: "Level loads dropped because a newer selection superseded them.",
	})

	m.prefetchJobs = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "prefetch", Name: "tasks_total",
		Help: "Class warm-up tasks by outcome.",
	}, []string{"outcome"})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Subsystem: "prefetch", Name: "queue_depth",
		Help: "Warm-up tasks waiting for a worker.",
	}, func() float64 { return float64(m.pendingPrefetch()) })

	m.exportsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "export", Name: "files_total",
		Help: "Generated exports by dataset and format.",
	}, []string{"dataset", "format"})

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry is exposed for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records one served request under its route template.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
	m.requestTotal.WithLabelValues(method, route, code).Inc()
	m.requests.add(d)
}

// RecordCacheOperation records one shared cache read.
func (m *MetricsService) RecordCacheOperation(hit bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	m.cacheLookups.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveCacheWrite records one shared cache write.
func (m *MetricsService) ObserveCacheWrite(d time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(d.Seconds())
}

// ObserveDBQuery records a record store query.
func (m *MetricsService) ObserveDBQuery(query string, d time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(query).Observe(d.Seconds())
	m.dbQueries.add(d)
}

// ObserveCompute records engine time for one view.
func (m *MetricsService) ObserveCompute(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.engineCompute.WithLabelValues(op).Observe(d.Seconds())
	m.computes.add(d)
}

func (m *MetricsService) RecordMemoLookup(hit bool) {
	if m == nil {
		return
	}
	if !hit {
		m.memoLookups.WithLabelValues("miss").Inc()
		return
	}
	m.memoLookups.WithLabelValues("hit").Inc()
	m.memoHits.Add(1)
}

func (m *MetricsService) RecordStaleDiscard() {
	if m == nil {
		return
	}
	m.staleDiscards.Inc()
	m.stale.Add(1)
}

// RecordUpstreamError counts a record store failure seen at level.
func (m *MetricsService) RecordUpstreamError(level string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(level).Inc()
	m.upstreams.Add(1)
}

// RecordPrefetch counts a warm-up task outcome as reported by the queue.
func (m *MetricsService) RecordPrefetch(outcome string) {
	if m == nil {
		return
	}
	m.prefetchJobs.WithLabelValues(outcome).Inc()
}

func (m *MetricsService) RecordExport(dataset, format string) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(dataset, format).Inc()
}

// TrackQueueDepth sets the function reporting the prefetch backlog. The last
// call wins.
func (m *MetricsService) TrackQueueDepth(depth func() int) {
	if m == nil {
		return
	}
	m.queueDepth.Store(&depth)
}

// Snapshot summarises the running totals for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	return models.SystemMetrics{
		CacheHitRatio:            m.hitRatio(),
		CacheHits:                m.hits.Load(),
		CacheMisses:              m.misses.Load(),
		RequestsTotal:            m.requests.n.Load(),
		AverageRequestDurationMs: m.requests.averageMs(),
		DBQueryCount:             m.dbQueries.n.Load(),
		AverageDBQueryDurationMs: m.dbQueries.averageMs(),
		EngineComputeCount:       m.computes.n.Load(),
		AverageEngineComputeMs:   m.computes.averageMs(),
		MemoHits:                 m.memoHits.Load(),
		StaleFetchDiscards:       m.stale.Load(),
		UpstreamFetchErrors:      m.upstreams.Load(),
		PrefetchQueueDepth:       m.pendingPrefetch(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

func (m *MetricsService) hitRatio() float64 {
	hits, misses := m.hits.Load(), m.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func (m *MetricsService) pendingPrefetch() int {
	if fn := m.queueDepth.Load(); fn != nil && *fn != nil {
		return (*fn)()
	}
	return 0
}
