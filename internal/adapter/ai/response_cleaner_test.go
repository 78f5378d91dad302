package ai

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResponseCleaner(t *testing.T) {
	t.Parallel()

	cleaner := NewResponseCleaner()
	assert.NotNil(t, cleaner)
	assert.NotNil(t, cleaner.repair)
}

func TestResponseCleaner_Repair(t *testing.T) {
	t.Parallel()

	cleaner := NewResponseCleaner()

	tests := []struct {
		name     string
		input    string
		expected string
		stages   []string
	}{
		{
			name:     "clean_json",
			input:    `{"status": "success"}`,
			expected: `{"status": "success"}`,
		},
		{
			name:     "markdown_wrapped_json",
			input:    "```json\n{\"status\": \"success\"}\n```",
			expected: `{"status": "success"}`,
			stages:   []string{"markdown"},
		},
		{
			name:     "json_with_trailing_comma",
			input:    `{"status": "success", "data": "test",}`,
			expected: `{"status": "success", "data": "test"}`,
			stages:   []string{"jsonrepair"},
		},
		{
			name:     "trailing_comma_in_array",
			input:    `{"specs": [1, 2, 3, ]}`,
			expected: `{"specs": [1, 2, 3]}`,
			stages:   []string{"jsonrepair"},
		},
		{
			name:     "json_with_unquoted_keys",
			input:    `{status: "success", data: "test"}`,
			expected: `{"status": "success", "data": "test"}`,
			stages:   []string{"jsonrepair"},
		},
		{
			name:     "single_quotes_keep_apostrophes",
			input:    `{'name': 'Pixel', 'note': "it's fast"}`,
			expected: `{"name": "Pixel", "note": "it's fast"}`,
			stages:   []string{"jsonrepair"},
		},
		{
			name:     "unclosed_array",
			input:    `{"a": 1, "b": [1, 2}`,
			expected: `{"a": 1, "b": [1, 2]}`,
			stages:   []string{"jsonrepair"},
		},
		{
			name:     "missing_comma",
			input:    `{"summary": "ok" "score": 5}`,
			expected: `{"summary": "ok", "score": 5}`,
			stages:   []string{"jsonrepair"},
		},
		{
			name:     "block_comment",
			input:    `{"a": "x", /* note */ "b": 2}`,
			expected: `{"a": "x", "b": 2}`,
			stages:   []string{"jsonrepair"},
		},
		{
			name:     "key_lookalike_inside_value",
			input:    `{note: "ratio, width: 5", ok: true,}`,
			expected: `{"note": "ratio, width: 5", "ok": true}`,
			stages:   []string{"jsonrepair"},
		},
		{
			name:     "fenced_and_broken",
			input:    "```json\n{comparable: true, category1: 'phone',}\n```",
			expected: `{"comparable": true, "category1": "phone"}`,
			stages:   []string{"markdown", "jsonrepair"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, stages, ok := cleaner.Repair(tt.input)
			require.True(t, ok, "repair failed: %s", result)
			assert.JSONEq(t, tt.expected, result)
			assert.Equal(t, tt.stages, stages)
		})
	}
}

func TestResponseCleaner_Repair_Unrepairable(t *testing.T) {
	t.Parallel()

	failing := &ResponseCleaner{repair: func(string) (string, error) { return "", errors.New("unexpected character") }}
	_, stages, ok := failing.Repair(`{"a": ???}`)
	assert.False(t, ok)
	assert.Equal(t, []string{"jsonrepair"}, stages)

	invalidOutput := &ResponseCleaner{repair: func(s string) (string, error) { return s, nil }}
	_, _, ok = invalidOutput.Repair(`{"a": ???}`)
	assert.False(t, ok)
}

func TestResponseCleaner_TrailingCommaEquivalence(t *testing.T) {
	t.Parallel()

	cleaner := NewResponseCleaner()
	pairs := []struct{ withComma, without string }{
		{`{"a": 1,}`, `{"a": 1}`},
		{`{"a": [1, 2,]}`, `{"a": [1, 2]}`},
		{`{"a": {"b": "c",}}`, `{"a": {"b": "c"}}`},
		{`{"specs": [{"x": 1}, {"y": 2},]}`, `{"specs": [{"x": 1}, {"y": 2}]}`},
	}
	for _, p := range pairs {
		repaired, _, ok := cleaner.Repair(p.withComma)
		require.True(t, ok)

		var got, want any
		require.NoError(t, json.Unmarshal([]byte(repaired), &got))
		require.NoError(t, json.Unmarshal([]byte(p.without), &want))
		assert.Equal(t, want, got)
	}
}

func TestFindObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, true},
		{"prose around", `Sure! Here it is: {"a":{"b":2}} Hope that helps {"c":3}`, `{"a":{"b":2}}`, true},
		{"brace inside string", `x {"a":"}{","b":1} y`, `{"a":"}{","b":1}`, true},
		{"escaped quote inside string", `{"a":"say \"}\" ok"} tail`, `{"a":"say \"}\" ok"}`, true},
		{"nested closes at outer brace", `{"a": { } }}`, `{"a": { } }`, true},
		{"unbalanced falls back to greedy", `{"a": {"b": 1} tail`, `{"a": {"b": 1}`, true},
		{"none", `no json here`, ``, false},
		{"never closes", `{"a": 1`, ``, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, found := FindObject(tt.input)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}
