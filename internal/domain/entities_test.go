package domain

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriority_Valid(t *testing.T) {
	assert.True(t, PriorityHigh.Valid())
	assert.True(t, PriorityNormal.Valid())
	assert.True(t, PriorityLow.Valid())
	assert.False(t, Priority("urgent").Valid())
	assert.False(t, Priority("").Valid())
}

func TestKind_Queueable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindComparison, true},
		{KindSpecs, true},
		{KindMultiComparison, true},
		{KindCacheUpdate, true},
		{KindCompatibility, false},
		{KindCompleteness, false},
		{KindPrice, false},
		{Kind("other"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Queueable())
		})
	}
}

func TestCompletenessVerdict_Complete(t *testing.T) {
	assert.True(t, CompletenessVerdict{Complete1: true, Complete2: true}.Complete())
	assert.False(t, CompletenessVerdict{Complete1: true, Missing2: "storage size"}.Complete())
	assert.False(t, CompletenessVerdict{}.Complete())
}

func TestExecutorFunc(t *testing.T) {
	var got Payload
	var f Executor = ExecutorFunc(func(_ context.Context, kind Kind, p Payload) (json.RawMessage, error) {
		got = p
		return json.RawMessage(`{"kind":"` + string(kind) + `"}`), nil
	})

	raw, err := f.Execute(context.Background(), KindSpecs, Payload{Prompt: "p", ProductName: "Pixel 8"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"specs"}`, string(raw))
	assert.Equal(t, "Pixel 8", got.ProductName)
}

func TestComparisonOutcome_JSON(t *testing.T) {
	out := ComparisonOutcome{
		Status: OutcomeOK,
		Result: &ComparisonResult{
			CurrentDevice:  "iPhone 13",
			NewDevice:      "iPhone 15",
			Recommendation: RecommendationUpgrade,
			Score:          82,
			Summary:        "better camera",
			Specs: []SpecComparison{{
				Category:    "Camera",
				Current:     ValuePair{Value: "12MP", Technical: "f/1.6"},
				New:         ValuePair{Value: "48MP", Technical: "f/1.78"},
				Improvement: ImprovementBetter,
				Score:       9,
			}},
		},
		Provenance: Provenance{Cached: true, AgeMs: 1500, Source: SourceAPI},
	}

	b, err := json.Marshal(out)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "ok", m["status"])
	assert.NotContains(t, m, "incompatible")
	assert.NotContains(t, m["result"], "cached")
	prov := m["provenance"].(map[string]any)
	assert.Equal(t, true, prov["cached"])
	assert.Equal(t, "api", prov["source"])
}
