package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-device-compare/internal/adapter/observability"
	"github.com/fairyhunter13/ai-device-compare/internal/domain"
)

// FinishReasonMaxTokens is the finish indicator reported when generation stopped at
// the output-length limit.
const FinishReasonMaxTokens = "MAX_TOKENS"

// generationPayload mirrors the subset of the provider response the extractor reads.
type generationPayload struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// Extractor turns raw provider payloads into parsed JSON objects.
type Extractor struct {
	cleaner *ResponseCleaner
}

// NewExtractor creates an Extractor with the default repair stages.
func NewExtractor() *Extractor {
	return &Extractor{cleaner: NewResponseCleaner()}
}

// Extract returns the first JSON object embedded in the payload's text.
// Errors wrap domain.ErrTokenLimitExceeded or domain.ErrMalformedResponse.
func (e *Extractor) Extract(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	lg := observability.LoggerFromContext(ctx)

	var p generationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("op=ai.Extract: decode payload: %w", domain.ErrMalformedResponse)
	}
	if len(p.Candidates) == 0 {
		return nil, fmt.Errorf("op=ai.Extract: no candidates: %w", domain.ErrMalformedResponse)
	}
	cand := p.Candidates[0]

	var text *string
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part.Text != nil {
				text = part.Text
				break
			}
		}
	}

	if cand.FinishReason == FinishReasonMaxTokens {
		lg.Warn("generation truncated at output limit", slog.Bool("has_text", text != nil))
		return nil, fmt.Errorf("op=ai.Extract: finish reason %s: %w", cand.FinishReason, domain.ErrTokenLimitExceeded)
	}
	if text == nil {
		return nil, fmt.Errorf("op=ai.Extract: no text part (finish reason %q): %w", cand.FinishReason, domain.ErrMalformedResponse)
	}

	span, found := FindObject(*text)
	if !found {
		lower := strings.ToLower(*text)
		if strings.Contains(lower, "token") && strings.Contains(lower, "limit") {
			return nil, fmt.Errorf("op=ai.Extract: text mentions token limit: %w", domain.ErrTokenLimitExceeded)
		}
		return nil, fmt.Errorf("op=ai.Extract: no JSON found: %w", domain.ErrMalformedResponse)
	}

	repaired, applied, ok := e.cleaner.Repair(span)
	if !ok {
		lg.Warn("unrepairable JSON in model output",
			slog.Int("span_len", len(span)),
			slog.Any("stages", applied))
		return nil, fmt.Errorf("op=ai.Extract: invalid JSON after repair: %w", domain.ErrMalformedResponse)
	}
	if len(applied) > 0 {
		lg.Debug("repaired model JSON", slog.Any("stages", applied))
	}
	return json.RawMessage(repaired), nil
}

// ExtractInto extracts the payload's JSON object and decodes it into v.
func (e *Extractor) ExtractInto(ctx context.Context, raw json.RawMessage, v any) error {
	obj, err := e.Extract(ctx, raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(obj, v); err != nil {
		return fmt.Errorf("op=ai.ExtractInto: %v: %w", err, domain.ErrMalformedResponse)
	}
	return nil
}

// TextPayload wraps text in the provider payload shape with the given finish reason.
// Executors that do not talk to the provider directly use it to stay compatible with Extract.
func TextPayload(text, finishReason string) json.RawMessage {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Parts []part `json:"parts"`
		Role  string `json:"role"`
	}
	type candidate struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	}
	b, _ := json.Marshal(struct {
		Candidates []candidate `json:"candidates"`
	}{Candidates: []candidate{{Content: content{Parts: []part{{Text: text}}, Role: "model"}, FinishReason: finishReason}}})
	return b
}
