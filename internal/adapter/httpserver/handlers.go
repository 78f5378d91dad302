package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fairyhunter13/ai-device-compare/internal/config"
	"github.com/fairyhunter13/ai-device-compare/internal/domain"
	"github.com/fairyhunter13/ai-device-compare/internal/service/queue"
)

// Orchestrator is the comparison service behind the /api/compare family.
type Orchestrator interface {
	Compare(ctx context.Context, a, b string) (domain.ComparisonOutcome, error)
	GetProductComparison(ctx context.Context, a, b string) (domain.ComparisonOutcome, error)
	RefreshComparison(ctx context.Context, a, b string) (domain.ComparisonOutcome, error)
	CheckComparability(ctx context.Context, a, b string) (domain.CompatibilityVerdict, error)
	CheckDetailCompleteness(ctx context.Context, a, b string) (domain.CompletenessVerdict, error)
	GetProductSpecs(ctx context.Context, name string) (domain.SpecsResult, error)
	GetMultiComparison(ctx context.Context, products []string) (domain.MultiComparisonResult, error)
}

// RequestQueue is the shared upstream queue. Relay does not count against the
// daily quota; remote callers report usage separately.
type RequestQueue interface {
	Relay(ctx context.Context, kind domain.Kind, payload domain.Payload, priority domain.Priority) (json.RawMessage, error)
	Status(ctx context.Context) domain.QueueStatus
}

// QuotaCounter is the daily budget as exposed to remote executors.
type QuotaCounter interface {
	Allow(ctx context.Context) (bool, error)
	Usage(ctx context.Context) (domain.Usage, error)
	TryIncrement(ctx context.Context) (domain.IncrementResult, error)
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg     config.Config
	Compare Orchestrator
	Queue   RequestQueue
	Quota   QuotaCounter
	Cache   CacheAdmin
	// KVCheck backs /readyz.
	KVCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, compare Orchestrator, q RequestQueue, quota QuotaCounter, cache CacheAdmin, kvCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Compare: compare, Queue: q, Quota: quota, Cache: cache, KVCheck: kvCheck}
}

// QueueHandler serves POST /api/queue. Queueable kinds wait their turn on the shared
// queue; the quick checks skip the line but still take a rate slot. The response
// body is the raw upstream payload. Quota is checked but not counted; callers report
// usage through POST /api/increment.
func (s *Server) QueueHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sub domain.QueueSubmission
		if details, err := decodeJSON(w, r, &sub); err != nil {
			writeError(w, r, err, details)
			return
		}
		ctx := r.Context()
		allowed, err := s.Quota.Allow(ctx)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if !allowed {
			writeError(w, r, fmt.Errorf("%w: daily limit reached", domain.ErrQuotaExceeded), nil)
			return
		}

		raw, err := s.Queue.Relay(ctx, sub.Type, sub.Data, sub.Priority)
		if err != nil {
			writeError(w, r, relayError(err), map[string]string{"type": string(sub.Type)})
			return
		}
		writeRaw(w, http.StatusOK, raw)
	}
}

// relayError keeps typed failures intact so statusFor can map them; anything else
// is reported as an upstream transport failure.
func relayError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, domain.ErrQuotaExceeded),
		errors.Is(err, domain.ErrTransportFailure),
		errors.Is(err, queue.ErrClosed):
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrTransportFailure, err)
}

// QueueStatusHandler serves GET /api/queue/status.
func (s *Server) QueueStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Queue.Status(r.Context()))
	}
}

// UsageHandler serves GET /api/usage.
func (s *Server) UsageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.Quota.Usage(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// IncrementHandler serves POST /api/increment. It counts one call only if the budget allows.
func (s *Server) IncrementHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.Quota.TryIncrement(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if !res.Allowed {
			LoggerFrom(r).Warn("increment refused: daily limit reached", slog.Int("used", res.Used), slog.Int("limit", res.Limit))
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type pairRequest struct {
	CurrentDevice string `json:"currentDevice" validate:"required,max=200"`
	NewDevice     string `json:"newDevice" validate:"required,max=200"`
}

type specsRequest struct {
	Product string `json:"product" validate:"required,max=200"`
}

type multiRequest struct {
	Products []string `json:"products" validate:"required,min=2,max=6,dive,required,max=200"`
}

// pairHandler adapts an orchestrator operation on a device pair.
func pairHandler[T any](op func(ctx context.Context, a, b string) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pairRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		out, err := op(r.Context(), req.CurrentDevice, req.NewDevice)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// CompareHandler serves POST /api/compare with the full state machine.
func (s *Server) CompareHandler() http.HandlerFunc { return pairHandler(s.Compare.Compare) }

// DirectCompareHandler serves POST /api/compare/direct without the probes.
func (s *Server) DirectCompareHandler() http.HandlerFunc {
	return pairHandler(s.Compare.GetProductComparison)
}

// RefreshHandler serves POST /api/refresh.
func (s *Server) RefreshHandler() http.HandlerFunc { return pairHandler(s.Compare.RefreshComparison) }

// ComparabilityHandler serves POST /api/comparability.
func (s *Server) ComparabilityHandler() http.HandlerFunc {
	return pairHandler(s.Compare.CheckComparability)
}

// CompletenessHandler serves POST /api/completeness.
func (s *Server) CompletenessHandler() http.HandlerFunc {
	return pairHandler(s.Compare.CheckDetailCompleteness)
}

// SpecsHandler serves POST /api/specs.
func (s *Server) SpecsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req specsRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		out, err := s.Compare.GetProductSpecs(r.Context(), req.Product)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// MultiCompareHandler serves POST /api/multi-compare.
func (s *Server) MultiCompareHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req multiRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		out, err := s.Compare.GetMultiComparison(r.Context(), req.Products)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ReadyzHandler reports dependency readiness.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 1)
		if s.KVCheck != nil {
			c := check{Name: "kv", OK: true}
			if err := s.KVCheck(ctx); err != nil {
				c.OK, c.Details = false, err.Error()
			}
			checks = append(checks, c)
		}
		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
