package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	switch {
	case pb.Counter != nil:
		return pb.Counter.GetValue()
	case pb.Gauge != nil:
		return pb.Gauge.GetValue()
	}
	return 0
}

func TestHTTPMetricsMiddleware_Basic(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	mw := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) }))
	mw.ServeHTTP(rec, r)
	assert.Equal(t, 204, rec.Result().StatusCode)
}

func TestHTTPMetricsMiddleware_ChiRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMetricsMiddleware)
	r.Get("/api/cache/{kind}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	before := value(t, HTTPRequestsTotal.WithLabelValues("/api/cache/{kind}", "GET", "OK"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/cache/specs", nil))
	after := value(t, HTTPRequestsTotal.WithLabelValues("/api/cache/{kind}", "GET", "OK"))
	assert.Equal(t, before+1, after)
}

func TestMetricHelpers(t *testing.T) {
	InitMetrics()
	InitMetrics()

	before := value(t, AIRequestsTotal.WithLabelValues("comparison", "success"))
	ObserveAIRequest("comparison", "success", 200*time.Millisecond)
	assert.Equal(t, before+1, value(t, AIRequestsTotal.WithLabelValues("comparison", "success")))

	ObserveCacheLookup("specs", "hit")
	ObserveQueueWait("high", time.Second)
	RecordRateLimitDenial()

	SetQueueDepth(4)
	assert.Equal(t, 4.0, value(t, QueueDepth))
	SetQuotaUsed(12)
	assert.Equal(t, 12.0, value(t, QuotaUsed))

	lvl := value(t, QuotaThresholdEventsTotal.WithLabelValues("warning"))
	RecordQuotaThreshold("warning")
	assert.Equal(t, lvl+1, value(t, QuotaThresholdEventsTotal.WithLabelValues("warning")))
}
