// Package ai extracts structured JSON from generation-API payloads and repairs the
// syntax defects models commonly produce.
package ai

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ResponseCleaner repairs JSON syntax defects in model output.
type ResponseCleaner struct {
	repair func(string) (string, error)
}

// NewResponseCleaner creates a cleaner that strips markdown fences and then hands
// anything still invalid to jsonrepair (quotes, missing commas, comments, unclosed
// brackets, trailing commas).
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{repair: jsonrepair.JSONRepair}
}

// Repair returns a form of span that parses as JSON, together with the names of the
// stages that were applied. ok is false when the text cannot be repaired.
func (rc *ResponseCleaner) Repair(span string) (repaired string, applied []string, ok bool) {
	if rc.IsValidJSON(span) {
		return span, nil, true
	}
	cur := span
	if next := rc.removeMarkdownBlocks(cur); next != cur {
		cur = next
		applied = append(applied, "markdown")
		if rc.IsValidJSON(cur) {
			return cur, applied, true
		}
	}

	applied = append(applied, "jsonrepair")
	fixed, err := rc.repair(cur)
	if err != nil || !rc.IsValidJSON(fixed) {
		return cur, applied, false
	}
	return fixed, applied, true
}

// removeMarkdownBlocks removes markdown code fences from the response.
func (rc *ResponseCleaner) removeMarkdownBlocks(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// IsValidJSON checks if a string is valid JSON.
func (rc *ResponseCleaner) IsValidJSON(response string) bool {
	var temp interface{}
	return json.Unmarshal([]byte(response), &temp) == nil
}

// FindObject locates the first top-level {...} span in text. Braces inside JSON
// strings are ignored. When the first object never closes, the greedy span from the
// first '{' to the last '}' is returned instead.
func FindObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	end := strings.LastIndexByte(text, '}')
	if end > start {
		return text[start : end+1], true
	}
	return "", false
}
