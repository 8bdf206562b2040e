package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kmorand/air-quality-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Open-Meteo origin call rate. Watch for: error vs success ratio.
	OriginCallsTotal *prometheus.CounterVec

	// Origin latency per request. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	OriginDuration *prometheus.HistogramVec

	// Origin failures by category (timeout, network, upstream_http, parsing).
	OriginErrorsTotal *prometheus.CounterVec

	// Cache hits by backend type. Hit rate = hits/(hits+originApiCallsTotal).
	CacheHitsTotal *prometheus.CounterVec

	// Cache faults by operation and category. Faults are absorbed (treated as
	// miss / discarded) but must stay visible here.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache get/set latency by operation and outcome.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Total air quality lookups. rate() for QPS.
	AirQualityQueriesTotal prometheus.Counter

	// Per-key query count (allow-list; others go to "other").
	AirQualityQueriesByKeyTotal *prometheus.CounterVec

	// Concurrent misses for one key observed without coalescing.
	CacheStampedeDetectedTotal *prometheus.CounterVec

	// Distribution of concurrent miss counts when a stampede is detected.
	CacheStampedeConcurrency *prometheus.HistogramVec

	// Requests that piggybacked on an in-flight origin call (coalescing enabled).
	RequestCoalescingHitsTotal *prometheus.CounterVec

	// Time spent waiting on a shared origin call.
	RequestCoalescingWaitSeconds prometheus.Histogram

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Warming runs started. Compare against cacheWarmingErrorsTotal for failure rate.
	CacheWarmingTotal prometheus.Counter

	// Warming runs where at least one coordinate failed.
	CacheWarmingErrorsTotal prometheus.Counter

	// End-to-end duration of one warming run across all coordinates.
	CacheWarmingDurationSeconds prometheus.Histogram

	// trackedKeys is built from config; used to resolve cache keys for metrics.
	trackedKeysMu sync.RWMutex
	trackedKeys   map[string]struct{}

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	OriginCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "originApiCallsTotal",
			Help: "Total number of Open-Meteo air quality API calls",
		},
		[]string{"status"},
	)
	OriginDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "originApiDurationSeconds",
			Help:    "Open-Meteo API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	OriginErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "originApiErrorsTotal",
			Help: "Open-Meteo API failures by error category",
		},
		[]string{"category"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits. Hit rate = hits/(hits+originApiCallsTotal).",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache faults by operation (get/set) and category; absorbed but observable",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds by operation and outcome",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "outcome"},
	)
	AirQualityQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "airQualityQueriesTotal",
			Help: "Total number of air quality lookups",
		},
	)
	AirQualityQueriesByKeyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airQualityQueriesByKeyTotal",
			Help: "Air quality queries by cache key (allow-list; others use key=other)",
		},
		[]string{"key"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Concurrent cache misses for the same key (origin contacted more than once)",
		},
		[]string{"key"},
	)
	CacheStampedeConcurrency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Concurrent miss count per key when a stampede is detected",
			Buckets: []float64{2, 3, 5, 10, 25, 50},
		},
		[]string{"key"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Requests served by piggybacking on an in-flight origin call",
		},
		[]string{"key"},
	)
	RequestCoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "requestCoalescingWaitSeconds",
			Help:    "Time spent waiting on a shared origin call",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs started",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs where at least one coordinate failed",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of one cache warming run across all coordinates",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		OriginCallsTotal, OriginDuration, OriginErrorsTotal,
		CacheHitsTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		AirQualityQueriesTotal, AirQualityQueriesByKeyTotal,
		CacheStampedeDetectedTotal, CacheStampedeConcurrency,
		RequestCoalescingHitsTotal, RequestCoalescingWaitSeconds,
		RateLimitDeniedTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with cfg.OverloadWindow.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// SetTrackedKeys sets the allow-list for per-key metrics. Non-tracked keys
// increment "other" to keep label cardinality bounded.
func SetTrackedKeys(keys []string) {
	trackedKeysMu.Lock()
	defer trackedKeysMu.Unlock()
	trackedKeys = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		trackedKeys[strings.TrimSpace(k)] = struct{}{}
	}
}

// MetricKeyLabel resolves a cache key to its metric label: the key itself
// when tracked, "other" otherwise.
func MetricKeyLabel(key string) string {
	trackedKeysMu.RLock()
	_, ok := trackedKeys[key] // nil map read is safe in Go
	trackedKeysMu.RUnlock()
	if ok {
		return key
	}
	return "other"
}

// RecordAirQualityQuery records one lookup for the given cache key.
func RecordAirQualityQuery(key string) {
	AirQualityQueriesTotal.Inc()
	AirQualityQueriesByKeyTotal.WithLabelValues(MetricKeyLabel(key)).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
