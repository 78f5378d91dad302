package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of upstream AI calls by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Upstream AI call duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"kind"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Number of requests waiting in the request queue",
		},
	)
	QueueWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_wait_seconds",
			Help:    "Time between enqueue and dispatch",
			Buckets: []float64{0, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"priority"},
	)
	RateLimitDenialsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_denials_total",
			Help: "Number of times the drain loop waited for the rate window",
		},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Response cache lookups by kind and result",
		},
		[]string{"kind", "result"},
	)

	QuotaUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quota_used",
			Help: "Upstream calls counted against today's quota",
		},
	)
	QuotaThresholdEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_threshold_events_total",
			Help: "Quota threshold crossings by level",
		},
		[]string{"level"},
	)

	registerOnce sync.Once
)

// InitMetrics registers all collectors with the default registry. Safe to call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			QueueDepth,
			QueueWaitSeconds,
			RateLimitDenialsTotal,
			CacheLookupsTotal,
			QuotaUsed,
			QuotaThresholdEventsTotal,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one upstream call.
func ObserveAIRequest(kind, outcome string, dur time.Duration) {
	AIRequestsTotal.WithLabelValues(kind, outcome).Inc()
	AIRequestDuration.WithLabelValues(kind).Observe(dur.Seconds())
}

// ObserveCacheLookup records a cache hit, miss or expiry.
func ObserveCacheLookup(kind, result string) {
	CacheLookupsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveQueueWait records how long a request waited before dispatch.
func ObserveQueueWait(priority string, d time.Duration) {
	QueueWaitSeconds.WithLabelValues(priority).Observe(d.Seconds())
}

// SetQueueDepth publishes the current queue length.
func SetQueueDepth(n int) { QueueDepth.Set(float64(n)) }

// RecordRateLimitDenial counts one drain-loop wait.
func RecordRateLimitDenial() { RateLimitDenialsTotal.Inc() }

// SetQuotaUsed publishes today's quota usage.
func SetQuotaUsed(n int) { QuotaUsed.Set(float64(n)) }

// RecordQuotaThreshold counts a threshold crossing (warning, critical or exhausted).
func RecordQuotaThreshold(level string) {
	QuotaThresholdEventsTotal.WithLabelValues(level).Inc()
}
