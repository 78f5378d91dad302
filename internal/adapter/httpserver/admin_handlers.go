package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-device-compare/internal/domain"
	"github.com/fairyhunter13/ai-device-compare/internal/service/cache"
)

// CacheAdmin is the response cache as managed by operators.
type CacheAdmin interface {
	Stats() cache.Stats
	Clear(ctx context.Context)
	Invalidate(ctx context.Context, kind domain.Kind, parts ...string) bool
	InvalidateKind(ctx context.Context, kind domain.Kind) int
}

// MountAdmin mounts the cache admin routes behind basic auth. Nothing is mounted
// when admin credentials are not configured.
func (s *Server) MountAdmin(r chi.Router) {
	if !s.Cfg.AdminEnabled() || s.Cache == nil {
		return
	}
	r.Route("/api/cache", func(ar chi.Router) {
		ar.Use(AdminBasicAuth(s.Cfg.AdminUsername, s.Cfg.AdminPasswordHash))
		ar.Get("/stats", s.CacheStatsHandler())
		ar.Delete("/", s.CacheClearHandler())
		ar.Delete("/{kind}", s.CacheInvalidateHandler())
	})
}

// CacheStatsHandler serves GET /api/cache/stats.
func (s *Server) CacheStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.Cache.Stats())
	}
}

// CacheClearHandler serves DELETE /api/cache.
func (s *Server) CacheClearHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Cache.Clear(r.Context())
		LoggerFrom(r).Info("cache cleared by admin")
		w.WriteHeader(http.StatusNoContent)
	}
}

// CacheInvalidateHandler serves DELETE /api/cache/{kind}. With parts query values it
// removes one entry, otherwise every entry of the kind.
func (s *Server) CacheInvalidateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := domain.Kind(strings.ToLower(strings.TrimSpace(chi.URLParam(r, "kind"))))
		if kind == "" {
			writeError(w, r, fmt.Errorf("%w: kind is required", domain.ErrInvalidArgument), nil)
			return
		}
		parts := r.URL.Query()["parts"]
		if len(parts) == 0 {
			n := s.Cache.InvalidateKind(r.Context(), kind)
			writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "removed": n})
			return
		}
		if !s.Cache.Invalidate(r.Context(), kind, parts...) {
			writeError(w, r, fmt.Errorf("%w: no entry for %s", domain.ErrNotFound, cache.Key(kind, parts...)), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "removed": 1})
	}
}
