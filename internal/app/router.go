// Package app wires application components and startup helpers.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	httpserver "github.com/fairyhunter13/ai-device-compare/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-device-compare/internal/adapter/observability"
	"github.com/fairyhunter13/ai-device-compare/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(otelhttp.NewMiddleware("http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string { return r.Method + " " + r.URL.Path })))
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Upstream-bound endpoints. The queue and quota already bound upstream traffic,
	// so only the orchestrator surface is limited per client.
	r.Group(func(ar chi.Router) {
		ar.Use(httpserver.TimeoutMiddleware(cfg.RequestTimeout))
		ar.Post("/api/queue", srv.QueueHandler())
		ar.Post("/api/increment", srv.IncrementHandler())

		ar.Group(func(lr chi.Router) {
			lr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
			lr.Post("/api/compare", srv.CompareHandler())
			lr.Post("/api/compare/direct", srv.DirectCompareHandler())
			lr.Post("/api/comparability", srv.ComparabilityHandler())
			lr.Post("/api/completeness", srv.CompletenessHandler())
			lr.Post("/api/specs", srv.SpecsHandler())
			lr.Post("/api/multi-compare", srv.MultiCompareHandler())
			lr.Post("/api/refresh", srv.RefreshHandler())
		})
	})

	// Read-only endpoints
	r.Get("/api/queue/status", srv.QueueStatusHandler())
	r.Get("/api/usage", srv.UsageHandler())

	// Health and metrics
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/readyz", srv.ReadyzHandler())

	srv.MountAdmin(r)

	return httpserver.SecurityHeaders(r)
}
