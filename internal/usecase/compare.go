// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-device-compare/internal/adapter/ai"
	"github.com/fairyhunter13/ai-device-compare/internal/adapter/observability"
	"github.com/fairyhunter13/ai-device-compare/internal/config"
	"github.com/fairyhunter13/ai-device-compare/internal/domain"
	"github.com/fairyhunter13/ai-device-compare/pkg/textx"
)

// DefaultMinSpecCount is the smallest spec list accepted as a complete comparison.
const DefaultMinSpecCount = 3

// MaxMultiProducts bounds a multi-product comparison.
const MaxMultiProducts = 6

// Enqueuer is the request queue as seen by the orchestrator. Both calls enforce the
// daily quota at dispatch and count successful calls.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind domain.Kind, payload domain.Payload, priority domain.Priority) (json.RawMessage, error)
	Direct(ctx context.Context, kind domain.Kind, payload domain.Payload) (json.RawMessage, error)
	Status(ctx context.Context) domain.QueueStatus
}

// ResultCache is the response cache as seen by the orchestrator.
type ResultCache interface {
	GetInto(ctx context.Context, v any, kind domain.Kind, parts ...string) (domain.Provenance, bool)
	Set(ctx context.Context, kind domain.Kind, data any, source domain.Source, parts ...string) error
}

// Extractor turns a raw provider payload into a decoded value.
type Extractor interface {
	ExtractInto(ctx context.Context, raw json.RawMessage, v any) error
}

// CompareService runs the comparison state machine: sanitize, compatibility probe,
// completeness probe, cache lookup, queued comparison, normalization, sufficiency
// check and cache write.
type CompareService struct {
	queue    Enqueuer
	quota    domain.QuotaGate
	cache    ResultCache
	extract  Extractor
	prompts  *config.Prompts
	minSpecs int
	source   domain.Source
}

// Option configures a CompareService.
type Option func(*CompareService)

// WithMinSpecCount sets the sufficiency threshold.
func WithMinSpecCount(n int) Option {
	return func(s *CompareService) {
		if n > 0 {
			s.minSpecs = n
		}
	}
}

// WithSource tags cached results, e.g. domain.SourceMock for the stub executor.
func WithSource(src domain.Source) Option {
	return func(s *CompareService) {
		if src != "" {
			s.source = src
		}
	}
}

// WithExtractor replaces the default payload extractor.
func WithExtractor(e Extractor) Option {
	return func(s *CompareService) {
		if e != nil {
			s.extract = e
		}
	}
}

// NewCompareService wires the orchestrator. Quick checks skip the line but not the rate
// window; every other upstream call waits in q. quota is consulted up front so an
// exhausted day fails fast, while q does the counting.
func NewCompareService(q Enqueuer, quota domain.QuotaGate, cache ResultCache, prompts *config.Prompts, opts ...Option) *CompareService {
	s := &CompareService{
		queue:    q,
		quota:    quota,
		cache:    cache,
		extract:  ai.NewExtractor(),
		prompts:  prompts,
		minSpecs: DefaultMinSpecCount,
		source:   domain.SourceAPI,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type devicePair struct {
	// raw is trimmed caller input, used for display.
	rawA, rawB string
	// safe is sanitized input, used in prompts and cache keys.
	safeA, safeB string
}

func newDevicePair(a, b string) (devicePair, error) {
	p := devicePair{
		rawA:  strings.TrimSpace(a),
		rawB:  strings.TrimSpace(b),
		safeA: textx.SanitizeInput(a),
		safeB: textx.SanitizeInput(b),
	}
	if p.safeA == "" || p.safeB == "" {
		return devicePair{}, fmt.Errorf("%w: both device descriptions are required", domain.ErrInvalidArgument)
	}
	return p, nil
}

func (p devicePair) payload(prompt string) domain.Payload {
	return domain.Payload{Prompt: prompt, CurrentDevice: p.safeA, NewDevice: p.safeB}
}

// call checks the quota, performs one upstream call and decodes the result into v.
func (s *CompareService) call(ctx context.Context, kind domain.Kind, payload domain.Payload, priority domain.Priority, v any) error {
	allowed, err := s.quota.Allow(ctx)
	if err != nil {
		return classify(ctx, err)
	}
	if !allowed {
		return fmt.Errorf("%w: try again after the daily reset", domain.ErrQuotaExceeded)
	}

	var raw json.RawMessage
	if kind.Queueable() {
		raw, err = s.queue.Enqueue(ctx, kind, payload, priority)
	} else {
		raw, err = s.queue.Direct(ctx, kind, payload)
	}
	if err != nil {
		return classify(ctx, err)
	}
	return s.extract.ExtractInto(ctx, raw, v)
}

// classify keeps typed failures and the caller's own cancellation, and files
// everything else as a transport failure.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	for _, typed := range []error{
		domain.ErrQuotaExceeded,
		domain.ErrTransportFailure,
		domain.ErrTokenLimitExceeded,
		domain.ErrMalformedResponse,
		domain.ErrInvalidArgument,
	} {
		if errors.Is(err, typed) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrTransportFailure, err)
}

func (s *CompareService) render(name string, data config.PromptData) (string, error) {
	prompt, err := s.prompts.Render(name, data)
	if err != nil {
		return "", fmt.Errorf("op=usecase.render: %w", err)
	}
	return prompt, nil
}

// CheckComparability asks whether a and b belong to the same category. A verdict of
// "not comparable" with identical categories contradicts itself and is retried once,
// as is a first attempt cut off by the token limit.
func (s *CompareService) CheckComparability(ctx context.Context, a, b string) (domain.CompatibilityVerdict, error) {
	pair, err := newDevicePair(a, b)
	if err != nil {
		return domain.CompatibilityVerdict{}, fmt.Errorf("op=usecase.CheckComparability: %w", err)
	}
	return s.checkComparability(ctx, pair)
}

func (s *CompareService) checkComparability(ctx context.Context, pair devicePair) (domain.CompatibilityVerdict, error) {
	lg := observability.LoggerFromContext(ctx)
	prompt, err := s.render(config.PromptCompatibility, config.PromptData{CurrentDevice: pair.safeA, NewDevice: pair.safeB})
	if err != nil {
		return domain.CompatibilityVerdict{}, err
	}
	probe := func() (domain.CompatibilityVerdict, error) {
		var v domain.CompatibilityVerdict
		if err := s.call(ctx, domain.KindCompatibility, pair.payload(prompt), domain.PriorityHigh, &v); err != nil {
			return domain.CompatibilityVerdict{}, err
		}
		v.Category1 = textx.FirstWord(v.Category1)
		v.Category2 = textx.FirstWord(v.Category2)
		return v, nil
	}

	first, err := probe()
	switch {
	case errors.Is(err, domain.ErrTokenLimitExceeded):
		lg.Warn("compatibility probe truncated; retrying once")
		second, err := probe()
		if err != nil {
			return domain.CompatibilityVerdict{}, fmt.Errorf("op=usecase.CheckComparability: %w", err)
		}
		return second, nil
	case err != nil:
		return domain.CompatibilityVerdict{}, fmt.Errorf("op=usecase.CheckComparability: %w", err)
	}

	if !first.Comparable && first.Category1 == first.Category2 {
		lg.Info("contradictory compatibility verdict; retrying once", slog.String("category", first.Category1))
		second, err := probe()
		if err != nil {
			lg.Warn("compatibility retry failed; keeping first verdict", slog.Any("error", err))
			return first, nil
		}
		return second, nil
	}
	return first, nil
}

// CheckDetailCompleteness asks whether each description identifies a specific model.
func (s *CompareService) CheckDetailCompleteness(ctx context.Context, a, b string) (domain.CompletenessVerdict, error) {
	pair, err := newDevicePair(a, b)
	if err != nil {
		return domain.CompletenessVerdict{}, fmt.Errorf("op=usecase.CheckDetailCompleteness: %w", err)
	}
	return s.checkCompleteness(ctx, pair)
}

func (s *CompareService) checkCompleteness(ctx context.Context, pair devicePair) (domain.CompletenessVerdict, error) {
	prompt, err := s.render(config.PromptCompleteness, config.PromptData{CurrentDevice: pair.safeA, NewDevice: pair.safeB})
	if err != nil {
		return domain.CompletenessVerdict{}, err
	}
	var v domain.CompletenessVerdict
	if err := s.call(ctx, domain.KindCompleteness, pair.payload(prompt), domain.PriorityHigh, &v); err != nil {
		return domain.CompletenessVerdict{}, fmt.Errorf("op=usecase.CheckDetailCompleteness: %w", err)
	}
	return v, nil
}

// Compare runs the full state machine for a and b.
func (s *CompareService) Compare(ctx context.Context, a, b string) (domain.ComparisonOutcome, error) {
	ctx, span := observability.StartSpan(ctx, "usecase.Compare")
	defer span.End()

	pair, err := newDevicePair(a, b)
	if err != nil {
		return domain.ComparisonOutcome{}, fmt.Errorf("op=usecase.Compare: %w", err)
	}

	verdict, err := s.checkComparability(ctx, pair)
	if err != nil {
		span.RecordError(err)
		return domain.ComparisonOutcome{}, err
	}
	if !verdict.Comparable {
		span.SetAttributes(attribute.String("outcome", string(domain.OutcomeIncompatible)))
		return domain.ComparisonOutcome{
			Status:       domain.OutcomeIncompatible,
			Incompatible: incompatible(pair, verdict),
		}, nil
	}

	completeness, err := s.checkCompleteness(ctx, pair)
	if err != nil {
		span.RecordError(err)
		return domain.ComparisonOutcome{}, err
	}
	if !completeness.Complete() {
		span.SetAttributes(attribute.String("outcome", string(domain.OutcomeNeedsDetails)))
		return domain.ComparisonOutcome{Status: domain.OutcomeNeedsDetails, Completeness: &completeness}, nil
	}

	return s.comparison(ctx, pair)
}

func incompatible(pair devicePair, v domain.CompatibilityVerdict) *domain.IncompatibleResult {
	return &domain.IncompatibleResult{
		IsIncompatible: true,
		CurrentDevice:  pair.rawA,
		NewDevice:      pair.rawB,
		Category1:      v.Category1,
		Category2:      v.Category2,
		Explanation: fmt.Sprintf(
			"I cannot compare %q and %q because they belong to different categories (%s vs %s). "+
				"For a meaningful comparison, please choose two products from the same category, such as two smartphones or two laptops.",
			pair.rawA, pair.rawB, v.Category1, v.Category2),
	}
}

// GetProductComparison serves a cached comparison or computes a fresh one. It does
// not run the probes.
func (s *CompareService) GetProductComparison(ctx context.Context, a, b string) (domain.ComparisonOutcome, error) {
	pair, err := newDevicePair(a, b)
	if err != nil {
		return domain.ComparisonOutcome{}, fmt.Errorf("op=usecase.GetProductComparison: %w", err)
	}
	return s.comparison(ctx, pair)
}

func (s *CompareService) comparison(ctx context.Context, pair devicePair) (domain.ComparisonOutcome, error) {
	var cached domain.ComparisonResult
	if prov, ok := s.cache.GetInto(ctx, &cached, domain.KindComparison, pair.safeA, pair.safeB); ok && len(cached.Specs) > 0 {
		return domain.ComparisonOutcome{Status: domain.OutcomeOK, Result: &cached, Provenance: prov}, nil
	}
	return s.computeComparison(ctx, pair, domain.KindComparison, domain.PriorityHigh)
}

func (s *CompareService) computeComparison(ctx context.Context, pair devicePair, kind domain.Kind, priority domain.Priority) (domain.ComparisonOutcome, error) {
	lg := observability.LoggerFromContext(ctx)
	prompt, err := s.render(config.PromptComparison, config.PromptData{
		CurrentDevice: pair.safeA,
		NewDevice:     pair.safeB,
		MinSpecs:      s.minSpecs,
	})
	if err != nil {
		return domain.ComparisonOutcome{}, err
	}

	var raw rawComparison
	if err := s.call(ctx, kind, pair.payload(prompt), priority, &raw); err != nil {
		return domain.ComparisonOutcome{}, fmt.Errorf("op=usecase.comparison: %w", err)
	}
	res := normalizeComparison(raw, pair.rawA, pair.rawB)

	if len(res.Specs) < s.minSpecs {
		lg.Info("comparison too thin; asking for precise input",
			slog.Int("specs", len(res.Specs)), slog.Int("min", s.minSpecs))
		return domain.ComparisonOutcome{Status: domain.OutcomeNeedsDetails}, nil
	}

	if err := s.cache.Set(ctx, domain.KindComparison, res, s.source, pair.safeA, pair.safeB); err != nil {
		lg.Warn("comparison not cached", slog.Any("error", err))
	}
	return domain.ComparisonOutcome{
		Status:     domain.OutcomeOK,
		Result:     &res,
		Provenance: domain.Provenance{Source: s.source},
	}, nil
}

// RefreshComparison recomputes a comparison at low priority and overwrites the cached
// entry. A thin result leaves the existing entry in place.
func (s *CompareService) RefreshComparison(ctx context.Context, a, b string) (domain.ComparisonOutcome, error) {
	pair, err := newDevicePair(a, b)
	if err != nil {
		return domain.ComparisonOutcome{}, fmt.Errorf("op=usecase.RefreshComparison: %w", err)
	}
	return s.computeComparison(ctx, pair, domain.KindCacheUpdate, domain.PriorityLow)
}

// GetProductSpecs returns free-form specifications for name.
func (s *CompareService) GetProductSpecs(ctx context.Context, name string) (domain.SpecsResult, error) {
	safe := textx.SanitizeInput(name)
	if safe == "" {
		return domain.SpecsResult{}, fmt.Errorf("op=usecase.GetProductSpecs: %w: product name is required", domain.ErrInvalidArgument)
	}
	var specs map[string]any
	if prov, ok := s.cache.GetInto(ctx, &specs, domain.KindSpecs, safe); ok && len(specs) > 0 {
		return domain.SpecsResult{Product: strings.TrimSpace(name), Specs: specs, Provenance: prov}, nil
	}

	prompt, err := s.render(config.PromptSpecs, config.PromptData{ProductName: safe})
	if err != nil {
		return domain.SpecsResult{}, err
	}
	if err := s.call(ctx, domain.KindSpecs, domain.Payload{Prompt: prompt, ProductName: safe}, domain.PriorityNormal, &specs); err != nil {
		return domain.SpecsResult{}, fmt.Errorf("op=usecase.GetProductSpecs: %w", err)
	}
	if err := s.cache.Set(ctx, domain.KindSpecs, specs, s.source, safe); err != nil {
		observability.LoggerFromContext(ctx).Warn("specs not cached", slog.Any("error", err))
	}
	return domain.SpecsResult{Product: strings.TrimSpace(name), Specs: specs, Provenance: domain.Provenance{Source: s.source}}, nil
}

// GetMultiComparison scores several products against common categories.
func (s *CompareService) GetMultiComparison(ctx context.Context, products []string) (domain.MultiComparisonResult, error) {
	safe := make([]string, 0, len(products))
	for _, p := range products {
		if v := textx.SanitizeInput(p); v != "" {
			safe = append(safe, v)
		}
	}
	if len(safe) < 2 || len(safe) > MaxMultiProducts {
		return domain.MultiComparisonResult{}, fmt.Errorf("op=usecase.GetMultiComparison: %w: between 2 and %d products are required",
			domain.ErrInvalidArgument, MaxMultiProducts)
	}

	var res domain.MultiComparisonResult
	if prov, ok := s.cache.GetInto(ctx, &res, domain.KindMultiComparison, safe...); ok && len(res.Products) > 0 {
		res.Provenance = prov
		return res, nil
	}

	prompt, err := s.render(config.PromptMultiComparison, config.PromptData{Products: safe})
	if err != nil {
		return domain.MultiComparisonResult{}, err
	}
	res = domain.MultiComparisonResult{}
	if err := s.call(ctx, domain.KindMultiComparison, domain.Payload{Prompt: prompt, Products: safe}, domain.PriorityNormal, &res); err != nil {
		return domain.MultiComparisonResult{}, fmt.Errorf("op=usecase.GetMultiComparison: %w", err)
	}
	if len(res.Products) == 0 {
		return domain.MultiComparisonResult{}, fmt.Errorf("op=usecase.GetMultiComparison: no products scored: %w", domain.ErrMalformedResponse)
	}
	res.Provenance = domain.Provenance{}
	if err := s.cache.Set(ctx, domain.KindMultiComparison, res, s.source, safe...); err != nil {
		observability.LoggerFromContext(ctx).Warn("multi comparison not cached", slog.Any("error", err))
	}
	res.Provenance = domain.Provenance{Source: s.source}
	return res, nil
}

// GetDailyUsage returns today's quota snapshot.
func (s *CompareService) GetDailyUsage(ctx context.Context) (domain.Usage, error) {
	u, err := s.quota.Usage(ctx)
	if err != nil {
		return domain.Usage{}, fmt.Errorf("op=usecase.GetDailyUsage: %w", err)
	}
	return u, nil
}

// IsQuotaExceeded reports whether today's budget is spent. It has no side effects.
func (s *CompareService) IsQuotaExceeded(ctx context.Context) (bool, error) {
	u, err := s.GetDailyUsage(ctx)
	if err != nil {
		return false, err
	}
	return u.Used >= u.Limit, nil
}

// QueueStatus returns the request queue snapshot.
func (s *CompareService) QueueStatus(ctx context.Context) domain.QueueStatus {
	return s.queue.Status(ctx)
}
