package usecase

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-device-compare/internal/domain"
)

// flexNumber accepts a JSON number or a numeric string.
type flexNumber struct {
	v  float64
	ok bool
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			n.v, n.ok = f, true
		}
		return nil
	}
	if err := json.Unmarshal(b, &n.v); err == nil {
		n.ok = true
	}
	return nil
}

// side accepts either {"value","technical"} or a bare string value.
type side struct {
	Value     *string `json:"value"`
	Technical *string `json:"technical"`
	set       bool
}

func (s *side) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return nil
		}
		s.Value, s.set = &v, true
		return nil
	}
	type plain side
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return nil
	}
	*s = side(p)
	s.set = true
	return nil
}

type rawSpec struct {
	Category         string     `json:"category"`
	Subcategory      string     `json:"subcategory"`
	Current          side       `json:"current"`
	New              side       `json:"new"`
	CurrentValue     *string    `json:"currentValue"`
	CurrentTechnical *string    `json:"currentTechnical"`
	NewValue         *string    `json:"newValue"`
	NewTechnical     *string    `json:"newTechnical"`
	Improvement      string     `json:"improvement"`
	Score            flexNumber `json:"score"`
	Details          string     `json:"details"`
}

// rawComparison covers the canonical shape and the legacy
// (reasons+specs+technicalSpecs, takeHome+connoisseurSpecs) shapes.
type rawComparison struct {
	CurrentDevice    string     `json:"currentDevice"`
	NewDevice        string     `json:"newDevice"`
	Recommendation   string     `json:"recommendation"`
	Score            flexNumber `json:"score"`
	Summary          string     `json:"summary"`
	TakeHome         string     `json:"takeHome"`
	Reasons          []string   `json:"reasons"`
	Specs            []rawSpec  `json:"specs"`
	TechnicalSpecs   []rawSpec  `json:"technicalSpecs"`
	ConnoisseurSpecs []rawSpec  `json:"connoisseurSpecs"`
}

func pick(first, second *string) string {
	if first != nil {
		return *first
	}
	if second != nil {
		return *second
	}
	return ""
}

// normalizeSpec folds the nested and flattened shapes into one canonical row.
// Missing improvement becomes "same", missing score 0, missing details "".
func normalizeSpec(r rawSpec) domain.SpecComparison {
	out := domain.SpecComparison{
		Category:    strings.TrimSpace(r.Category),
		Subcategory: strings.TrimSpace(r.Subcategory),
		Current: domain.ValuePair{
			Value:     pick(r.Current.Value, r.CurrentValue),
			Technical: pick(r.Current.Technical, r.CurrentTechnical),
		},
		New: domain.ValuePair{
			Value:     pick(r.New.Value, r.NewValue),
			Technical: pick(r.New.Technical, r.NewTechnical),
		},
		Improvement: domain.ImprovementSame,
		Details:     r.Details,
	}
	switch imp := domain.Improvement(strings.ToLower(strings.TrimSpace(r.Improvement))); imp {
	case domain.ImprovementBetter, domain.ImprovementWorse, domain.ImprovementSame:
		out.Improvement = imp
	}
	if r.Score.ok {
		out.Score = int(math.Round(r.Score.v))
	}
	return out
}

func normalizeSpecs(in []rawSpec) []domain.SpecComparison {
	out := make([]domain.SpecComparison, 0, len(in))
	for _, r := range in {
		out = append(out, normalizeSpec(r))
	}
	return out
}

// normalizeComparison maps any known result shape onto the canonical schema.
// currentDevice and newDevice fill identifiers the upstream left out.
func normalizeComparison(raw rawComparison, currentDevice, newDevice string) domain.ComparisonResult {
	res := domain.ComparisonResult{
		CurrentDevice:  firstNonEmpty(raw.CurrentDevice, currentDevice),
		NewDevice:      firstNonEmpty(raw.NewDevice, newDevice),
		Recommendation: domain.RecommendationMaybe,
		Summary:        firstNonEmpty(raw.Summary, raw.TakeHome, strings.Join(raw.Reasons, " ")),
	}
	switch rec := domain.Recommendation(strings.ToLower(strings.TrimSpace(raw.Recommendation))); rec {
	case domain.RecommendationUpgrade, domain.RecommendationKeep, domain.RecommendationMaybe:
		res.Recommendation = rec
	}
	if raw.Score.ok {
		res.Score = min(max(int(math.Round(raw.Score.v)), 0), 100)
	}

	switch {
	case len(raw.ConnoisseurSpecs) > 0:
		res.Specs = normalizeSpecs(raw.ConnoisseurSpecs)
	case len(raw.TechnicalSpecs) > 0:
		res.Specs = normalizeSpecs(raw.TechnicalSpecs)
	default:
		res.Specs = normalizeSpecs(raw.Specs)
	}
	return res
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
