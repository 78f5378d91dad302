// Package gemini calls the Gemini generateContent API directly.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/genai"

	"github.com/fairyhunter13/ai-device-compare/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-device-compare/internal/adapter/observability"
	"github.com/fairyhunter13/ai-device-compare/internal/config"
	"github.com/fairyhunter13/ai-device-compare/internal/domain"
)

// Generation parameters used for every call.
const (
	temperature = 0.7
	topK        = 40
	topP        = 0.95
)

// generator is the subset of *genai.Models the executor needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Executor implements domain.Executor. The raw payload it returns is the provider
// response re-encoded as JSON so the extractor sees the wire shape.
type Executor struct {
	models    generator
	model     string
	maxOutput int32
	tokens    *tokencount.Counter
}

var _ domain.Executor = (*Executor)(nil)

// New builds a Gemini client from cfg.
func New(ctx context.Context, cfg config.Config) (*Executor, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("op=gemini.New: %w: GEMINI_API_KEY missing", domain.ErrInvalidArgument)
	}
	hc := &http.Client{
		Timeout: cfg.UpstreamTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return fmt.Sprintf("Gemini %s %s", r.Method, r.URL.Host)
			}),
		),
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.GeminiAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	})
	if err != nil {
		return nil, fmt.Errorf("op=gemini.New: %w", err)
	}
	return newExecutor(client.Models, cfg.GeminiModel, cfg.GeminiMaxOutputTokens), nil
}

func newExecutor(models generator, model string, maxOutput int) *Executor {
	return &Executor{models: models, model: model, maxOutput: int32(maxOutput), tokens: tokencount.DefaultCounter}
}

// Execute sends payload.Prompt as a single user turn.
func (e *Executor) Execute(ctx context.Context, kind domain.Kind, payload domain.Payload) (json.RawMessage, error) {
	if payload.Prompt == "" {
		return nil, fmt.Errorf("op=gemini.Execute: %w: empty prompt", domain.ErrInvalidArgument)
	}
	lg := observability.LoggerFromContext(ctx)
	ctx, span := observability.StartSpan(ctx, "gemini.GenerateContent")
	defer span.End()

	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](temperature),
		TopK:            genai.Ptr[float32](topK),
		TopP:            genai.Ptr[float32](topP),
		MaxOutputTokens: e.maxOutput,
	}

	start := time.Now()
	resp, err := e.models.GenerateContent(ctx, e.model, genai.Text(payload.Prompt), gc)
	if err != nil {
		span.RecordError(err)
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			lg.Error("gemini api error",
				slog.String("kind", string(kind)),
				slog.Int("code", apiErr.Code),
				slog.String("status", apiErr.Status),
				slog.String("message", apiErr.Message))
		} else {
			lg.Error("gemini call failed", slog.String("kind", string(kind)), slog.Any("error", err))
		}
		return nil, fmt.Errorf("op=gemini.Execute: %w: %v", domain.ErrTransportFailure, err)
	}

	if resp == nil {
		return nil, fmt.Errorf("op=gemini.Execute: empty response: %w", domain.ErrMalformedResponse)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("op=gemini.Execute: encode response: %w", domain.ErrMalformedResponse)
	}

	u := e.tokens.Usage(payload.Prompt, resp.Text(), e.model)
	lg.Info("gemini call completed",
		slog.String("kind", string(kind)),
		slog.String("model", e.model),
		slog.Int("prompt_tokens", u.PromptTokens),
		slog.Int("completion_tokens", u.CompletionTokens),
		slog.Bool("tokens_estimated", u.Estimated),
		slog.Duration("duration", time.Since(start)))
	return raw, nil
}
