package usecase

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-device-compare/internal/domain"
)

func decodeComparison(t *testing.T, s string) domain.ComparisonResult {
	t.Helper()
	var raw rawComparison
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return normalizeComparison(raw, "Old 1", "New 2")
}

func TestNormalize_NestedAndFlattenedAgree(t *testing.T) {
	t.Parallel()
	nested := decodeComparison(t, `{"recommendation": "upgrade", "score": 70, "summary": "ok", "specs": [
		{"category": "CPU", "current": {"value": "A", "technical": "a"}, "new": {"value": "B", "technical": "b"}, "improvement": "better", "score": 8, "details": "d"}]}`)
	flat := decodeComparison(t, `{"recommendation": "upgrade", "score": "70", "summary": "ok", "specs": [
		{"category": "CPU", "currentValue": "A", "currentTechnical": "a", "newValue": "B", "newTechnical": "b", "improvement": "better", "score": "8", "details": "d"}]}`)

	assert.Equal(t, nested, flat)
	assert.Equal(t, "Old 1", nested.CurrentDevice)
	assert.Equal(t, domain.ValuePair{Value: "B", Technical: "b"}, nested.Specs[0].New)
}

func TestNormalize_Defaults(t *testing.T) {
	t.Parallel()
	res := decodeComparison(t, `{"recommendation": "Definitely", "score": 140.6, "specs": [
		{"category": "Battery", "current": "10h", "new": "12h", "improvement": "much better"}]}`)

	assert.Equal(t, domain.RecommendationMaybe, res.Recommendation)
	assert.Equal(t, 100, res.Score)
	require.Len(t, res.Specs, 1)
	s := res.Specs[0]
	assert.Equal(t, "10h", s.Current.Value)
	assert.Empty(t, s.Current.Technical)
	assert.Equal(t, domain.ImprovementSame, s.Improvement)
	assert.Equal(t, 0, s.Score)
	assert.Empty(t, s.Details)

	neg := decodeComparison(t, `{"score": -3, "recommendation": " KEEP "}`)
	assert.Equal(t, 0, neg.Score)
	assert.Equal(t, domain.RecommendationKeep, neg.Recommendation)
	assert.Empty(t, neg.Specs)
}

func TestNormalize_LegacyShapes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		in          string
		wantSummary string
		wantFirst   string
	}{
		{
			name:        "reasons with technical specs",
			in:          `{"reasons": ["Faster.", "Lighter."], "specs": [{"category": "basic"}], "technicalSpecs": [{"category": "CPU"}]}`,
			wantSummary: "Faster. Lighter.",
			wantFirst:   "CPU",
		},
		{
			name:        "take home with connoisseur specs",
			in:          `{"takeHome": "Worth it.", "technicalSpecs": [{"category": "CPU"}], "connoisseurSpecs": [{"category": "Materials"}]}`,
			wantSummary: "Worth it.",
			wantFirst:   "Materials",
		},
		{
			name:        "summary wins",
			in:          `{"summary": "S", "takeHome": "T", "specs": [{"category": "GPU"}]}`,
			wantSummary: "S",
			wantFirst:   "GPU",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := decodeComparison(t, tt.in)
			assert.Equal(t, tt.wantSummary, res.Summary)
			require.NotEmpty(t, res.Specs)
			assert.Equal(t, tt.wantFirst, res.Specs[0].Category)
		})
	}
}

func TestFlexNumber_IgnoresGarbage(t *testing.T) {
	t.Parallel()
	var v struct {
		N flexNumber `json:"n"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"n": "n/a"}`), &v))
	assert.False(t, v.N.ok)
	require.NoError(t, json.Unmarshal([]byte(`{"n": "85%"}`), &v))
	assert.True(t, v.N.ok)
	assert.InDelta(t, 85, v.N.v, 0.001)
}
