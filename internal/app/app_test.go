package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/ai-device-compare/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-device-compare/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-device-compare/internal/adapter/kv"
	"github.com/fairyhunter13/ai-device-compare/internal/config"
	"github.com/fairyhunter13/ai-device-compare/internal/domain"
	"github.com/fairyhunter13/ai-device-compare/internal/service/cache"
	"github.com/fairyhunter13/ai-device-compare/internal/service/queue"
	"github.com/fairyhunter13/ai-device-compare/internal/service/quota"
	"github.com/fairyhunter13/ai-device-compare/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-device-compare/internal/usecase"
)

func TestParseOrigins(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want []string
	}{
		{"", []string{"*"}},
		{"*", []string{"*"}},
		{"https://a.com, https://b.com", []string{"https://a.com", "https://b.com"}},
		{"  ,  ", []string{"*"}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ParseOrigins(c.in), c.in)
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type pingResult struct{ err error }

func (p pingResult) Err() error { return p.err }

type fakeRedis struct{ err error }

func (f fakeRedis) Ping(context.Context) RedisPingResult { return pingResult{f.err} }

func TestBuildReadinessCheck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.NoError(t, BuildReadinessCheck(pinger{}, nil)(ctx))
	assert.NoError(t, BuildReadinessCheck(pinger{}, fakeRedis{})(ctx))

	err := BuildReadinessCheck(pinger{err: errors.New("disk")}, fakeRedis{err: errors.New("conn refused")})(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kv: disk")
	assert.Contains(t, err.Error(), "redis: conn refused")

	assert.Error(t, BuildReadinessCheck(nil, nil)(ctx))
}

type countingSweep struct{ n atomic.Int32 }

func (c *countingSweep) Sweep(context.Context) int {
	c.n.Add(1)
	return 2
}

func TestCacheSweeper(t *testing.T) {
	t.Parallel()
	assert.Nil(t, NewCacheSweeper(nil, time.Second))

	c := &countingSweep{}
	s := NewCacheSweeper(c, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return c.n.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	var nilSweeper *CacheSweeper
	nilSweeper.Run(context.Background())
}

// newStack wires the real services over the stub executor.
func newStack(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	cfg := config.Config{RequestTimeout: 10 * time.Second, RateLimitPerMin: 1000, CORSAllowOrigins: "*"}
	store := kv.NewMemoryStore()
	exec := stub.New()

	tracker := quota.NewTracker(ctx, store, 50)
	c, err := cache.New(ctx, store)
	require.NoError(t, err)
	q := queue.New(exec, ratelimiter.NewFixedWindow(50, time.Minute), queue.WithInterRequestDelay(0), queue.WithQuotaGate(tracker))
	t.Cleanup(func() { _ = q.Shutdown(context.Background()) })
	prompts, err := config.LoadPrompts("")
	require.NoError(t, err)

	svc := usecase.NewCompareService(q, tracker, c, prompts, usecase.WithSource(domain.SourceMock))
	srv := httpserver.NewServer(cfg, svc, q, tracker, c, BuildReadinessCheck(store, nil))
	return BuildRouter(cfg, srv)
}

func TestRouter_EndToEndWithStub(t *testing.T) {
	t.Parallel()
	h := newStack(t)
	post := func(path, body string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, r)
		return rw
	}
	get := func(path string) *httptest.ResponseRecorder {
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, path, nil))
		return rw
	}

	rw := post("/api/compare", `{"currentDevice":"iPhone 12","newDevice":"iPhone 15"}`)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	assert.NotEmpty(t, rw.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rw.Header().Get("X-Content-Type-Options"))
	var out domain.ComparisonOutcome
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &out))
	assert.Equal(t, domain.OutcomeOK, out.Status)
	assert.Equal(t, domain.SourceMock, out.Provenance.Source)

	rw = post("/api/compare", `{"currentDevice":"MacBook Air M1","newDevice":"Galaxy Tab S9"}`)
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &out))
	assert.Equal(t, domain.OutcomeIncompatible, out.Status)

	rw = post("/api/compare/direct", `{"currentDevice":"iphone 12","newDevice":"IPHONE 15"}`)
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &out))
	assert.True(t, out.Provenance.Cached)

	rw = get("/api/usage")
	require.Equal(t, http.StatusOK, rw.Code)
	var u domain.Usage
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &u))
	assert.Equal(t, 4, u.Used, "three calls for the first compare, one probe for the second")

	rw = post("/api/queue", `{"type":"specs","data":{"prompt":"p","productName":"Pixel 8"},"priority":"normal"}`)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "candidates")

	assert.Equal(t, http.StatusOK, get("/api/queue/status").Code)
	assert.Equal(t, http.StatusOK, get("/healthz").Code)
	assert.Equal(t, http.StatusOK, get("/readyz").Code)
	assert.Equal(t, http.StatusOK, get("/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/cache/stats").Code, "admin disabled")
}
