package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-device-compare/internal/adapter/observability"
	"github.com/fairyhunter13/ai-device-compare/internal/domain"
)

func TestExecute_PostsSubmissionAndReturnsBody(t *testing.T) {
	t.Parallel()
	var got domain.QueueSubmission
	var gotReqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/queue", r.URL.Path)
		gotReqID = r.Header.Get("X-Request-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{}"}]}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	ctx := observability.ContextWithRequestID(context.Background(), "rid-7")
	raw, err := c.Execute(ctx, domain.KindComparison, domain.Payload{Prompt: "p", CurrentDevice: "a", NewDevice: "b"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"candidates":[{"content":{"parts":[{"text":"{}"}]}}]}`, string(raw))
	assert.Equal(t, domain.KindComparison, got.Type)
	assert.Equal(t, domain.PriorityHigh, got.Priority)
	assert.Equal(t, "a", got.Data.CurrentDevice)
	assert.Equal(t, "rid-7", gotReqID)
}

func TestExecute_StatusMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"quota", http.StatusTooManyRequests, domain.ErrQuotaExceeded},
		{"server error", http.StatusBadGateway, domain.ErrTransportFailure},
		{"bad request", http.StatusBadRequest, domain.ErrTransportFailure},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"code":"X","message":"nope"}}`))
			}))
			defer srv.Close()
			_, err := New(srv.URL, time.Second).Execute(context.Background(), domain.KindSpecs, domain.Payload{Prompt: "p"})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestExecute_TimeoutIsTransportFailure(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, 50*time.Millisecond).Execute(context.Background(), domain.KindSpecs, domain.Payload{Prompt: "p"})
	assert.ErrorIs(t, err, domain.ErrTransportFailure)
}

func TestQuotaGate(t *testing.T) {
	t.Parallel()
	used := 489
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/usage":
			_ = json.NewEncoder(w).Encode(map[string]int{"used": used, "remaining": 490 - used, "limit": 490})
		case "/api/increment":
			allowed := used < 490
			if allowed {
				used++
			}
			_ = json.NewEncoder(w).Encode(domain.IncrementResult{Allowed: allowed, Used: used, Remaining: 490 - used, Limit: 490})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	ctx := context.Background()

	u, err := c.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Usage{Used: 489, Remaining: 1, Limit: 490, Percentage: 100}, u)

	ok, err := c.Allow(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Increment(ctx))
	ok, err = c.Allow(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Increment(ctx), "refused increment is not an error")
}

func TestQuotaGate_BackendDown(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Allow(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransportFailure)
	assert.ErrorIs(t, c.Increment(context.Background()), domain.ErrTransportFailure)
}

func TestPriorityFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, domain.PriorityHigh, priorityFor(domain.KindCompatibility))
	assert.Equal(t, domain.PriorityNormal, priorityFor(domain.KindMultiComparison))
	assert.Equal(t, domain.PriorityLow, priorityFor(domain.KindCacheUpdate))
}
