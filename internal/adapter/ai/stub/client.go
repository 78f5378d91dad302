// Package stub is a deterministic executor for local runs and tests. It never
// calls the network and answers in the provider payload shape.
package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/fairyhunter13/ai-device-compare/internal/adapter/ai"
	"github.com/fairyhunter13/ai-device-compare/internal/domain"
)

// Executor implements domain.Executor with canned, input-derived answers.
type Executor struct{}

var _ domain.Executor = Executor{}

// New returns a stub executor.
func New() Executor { return Executor{} }

var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"laptop", []string{"macbook", "laptop", "thinkpad", "notebook", "xps", "zenbook", "chromebook"}},
	{"tablet", []string{"ipad", "tablet", "galaxy tab", "surface pro"}},
	{"smartwatch", []string{"watch"}},
	{"headphones", []string{"airpods", "headphone", "earbuds", "buds", "wh-1000"}},
	{"smartphone", []string{"iphone", "pixel", "galaxy", "phone", "oneplus", "xiaomi"}},
	{"television", []string{" tv", "television", "oled", "bravia"}},
	{"camera", []string{"camera", "eos", "alpha", "lumix", "gopro"}},
	{"console", []string{"playstation", "xbox", "switch", "steam deck"}},
}

func category(device string) string {
	d := " " + strings.ToLower(device)
	for _, c := range categoryKeywords {
		for _, w := range c.words {
			if strings.Contains(d, w) {
				return c.category
			}
		}
	}
	return "device"
}

// seed derives a stable number in [0,n) from parts.
func seed(n int, parts ...string) int {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(p))))
		_, _ = h.Write([]byte{0})
	}
	return int(h.Sum32() % uint32(n))
}

func identifiesModel(device string) bool {
	fields := strings.Fields(device)
	if len(fields) < 2 {
		return false
	}
	return strings.IndexFunc(device, unicode.IsDigit) >= 0
}

// Execute answers by kind.
func (Executor) Execute(_ context.Context, kind domain.Kind, p domain.Payload) (json.RawMessage, error) {
	var v any
	switch kind {
	case domain.KindCompatibility:
		c1, c2 := category(p.CurrentDevice), category(p.NewDevice)
		v = domain.CompatibilityVerdict{
			Comparable: c1 == c2 || c1 == "device" || c2 == "device",
			Category1:  c1,
			Category2:  c2,
			Reason:     fmt.Sprintf("%s vs %s", c1, c2),
		}
	case domain.KindCompleteness:
		v = completeness(p)
	case domain.KindComparison, domain.KindCacheUpdate:
		v = comparison(p)
	case domain.KindSpecs:
		v = specs(p.ProductName)
	case domain.KindMultiComparison:
		v = multi(p.Products)
	default:
		return nil, fmt.Errorf("op=stub.Execute: kind %q: %w", kind, domain.ErrInvalidArgument)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("op=stub.Execute: %w", err)
	}
	return ai.TextPayload("```json\n"+string(b)+"\n```", "STOP"), nil
}

func completeness(p domain.Payload) domain.CompletenessVerdict {
	v := domain.CompletenessVerdict{Complete1: identifiesModel(p.CurrentDevice), Complete2: identifiesModel(p.NewDevice)}
	if !v.Complete1 {
		v.Missing1 = "model generation or year"
	}
	if !v.Complete2 {
		v.Missing2 = "model generation or year"
	}
	return v
}

var specCategories = []string{"Performance", "Display", "Battery", "Storage", "Camera"}

func comparison(p domain.Payload) domain.ComparisonResult {
	res := domain.ComparisonResult{
		CurrentDevice: p.CurrentDevice,
		NewDevice:     p.NewDevice,
	}
	total := 0
	for _, cat := range specCategories {
		cur := 4 + seed(6, p.CurrentDevice, cat)
		nw := 4 + seed(6, p.NewDevice, cat)
		imp := domain.ImprovementSame
		switch {
		case nw > cur:
			imp = domain.ImprovementBetter
		case nw < cur:
			imp = domain.ImprovementWorse
		}
		total += nw - cur
		res.Specs = append(res.Specs, domain.SpecComparison{
			Category:    cat,
			Current:     domain.ValuePair{Value: fmt.Sprintf("%d/10", cur), Technical: fmt.Sprintf("%s rating %d", cat, cur)},
			New:         domain.ValuePair{Value: fmt.Sprintf("%d/10", nw), Technical: fmt.Sprintf("%s rating %d", cat, nw)},
			Improvement: imp,
			Score:       nw,
			Details:     fmt.Sprintf("%s: %s is %s", cat, p.NewDevice, imp),
		})
	}
	res.Score = min(max(50+total*5, 0), 100)
	switch {
	case res.Score >= 65:
		res.Recommendation = domain.RecommendationUpgrade
	case res.Score <= 40:
		res.Recommendation = domain.RecommendationKeep
	default:
		res.Recommendation = domain.RecommendationMaybe
	}
	res.Summary = fmt.Sprintf("Simulated comparison of %s and %s.", p.CurrentDevice, p.NewDevice)
	return res
}

func specs(product string) map[string]any {
	return map[string]any{
		"name":        product,
		"category":    category(product),
		"releaseYear": 2018 + seed(8, product),
		"performance": map[string]any{"rating": 5 + seed(5, product, "perf")},
		"storage":     fmt.Sprintf("%d GB", 64<<seed(4, product, "storage")),
		"notes":       "simulated specifications",
	}
}

func multi(products []string) domain.MultiComparisonResult {
	res := domain.MultiComparisonResult{Categories: []string{"Performance", "Price", "Battery", "Display"}}
	best, bestIdx := -1.0, -1
	for i, name := range products {
		ps := domain.ProductScore{Name: name, Scores: map[string]float64{}, Recommendation: "Good Option"}
		sum := 0.0
		for _, c := range res.Categories {
			s := float64(60 + seed(40, name, c))
			ps.Scores[c] = s
			sum += s
		}
		ps.OverallScore = sum / float64(len(res.Categories))
		if ps.OverallScore > best {
			best, bestIdx = ps.OverallScore, i
		}
		res.Products = append(res.Products, ps)
	}
	if bestIdx >= 0 {
		res.Products[bestIdx].Recommendation = "Best Choice"
	}
	return res
}
