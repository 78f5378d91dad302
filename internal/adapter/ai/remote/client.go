// Package remote reaches the generative API through a self-hosted backend that
// exposes /api/queue, /api/usage and /api/increment.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-device-compare/internal/adapter/observability"
	"github.com/fairyhunter13/ai-device-compare/internal/domain"
)

const maxErrorSnippet = 512

// Client implements domain.Executor and domain.QuotaGate against the backend.
type Client struct {
	baseURL string
	hc      *http.Client
}

var (
	_ domain.Executor  = (*Client)(nil)
	_ domain.QuotaGate = (*Client)(nil)
)

// New creates a client for baseURL with traced transport.
func New(baseURL string, timeout time.Duration) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("Remote %s %s", r.Method, r.URL.Path)
		}),
	)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout, Transport: transport},
	}
}

// priorityFor picks the backend queue priority for kind.
func priorityFor(kind domain.Kind) domain.Priority {
	switch kind {
	case domain.KindComparison, domain.KindCompatibility, domain.KindCompleteness:
		return domain.PriorityHigh
	case domain.KindCacheUpdate:
		return domain.PriorityLow
	default:
		return domain.PriorityNormal
	}
}

// Execute submits the payload to the backend queue and returns the provider payload it relays.
func (c *Client) Execute(ctx context.Context, kind domain.Kind, payload domain.Payload) (json.RawMessage, error) {
	body := domain.QueueSubmission{Type: kind, Data: payload, Priority: priorityFor(kind)}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/queue", body, &raw); err != nil {
		return nil, fmt.Errorf("op=remote.Execute: %w", err)
	}
	return raw, nil
}

// Allow reports whether the backend still has daily budget.
func (c *Client) Allow(ctx context.Context) (bool, error) {
	u, err := c.Usage(ctx)
	if err != nil {
		return false, err
	}
	return u.Used < u.Limit, nil
}

// Increment records one successful call on the backend. A refused increment means
// the budget ran out between Allow and the call; it is logged, not returned.
func (c *Client) Increment(ctx context.Context) error {
	var res domain.IncrementResult
	if err := c.do(ctx, http.MethodPost, "/api/increment", nil, &res); err != nil {
		return fmt.Errorf("op=remote.Increment: %w", err)
	}
	if !res.Allowed {
		observability.LoggerFromContext(ctx).Warn("backend refused quota increment",
			slog.Int("used", res.Used), slog.Int("limit", res.Limit))
	}
	return nil
}

// Usage fetches the backend's daily usage.
func (c *Client) Usage(ctx context.Context) (domain.Usage, error) {
	var u domain.Usage
	if err := c.do(ctx, http.MethodGet, "/api/usage", nil, &u); err != nil {
		return domain.Usage{}, fmt.Errorf("op=remote.Usage: %w", err)
	}
	if u.Percentage == 0 && u.Limit > 0 && u.Used > 0 {
		u.Percentage = (u.Used*100 + u.Limit/2) / u.Limit
	}
	return u, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var rd io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", domain.ErrInvalidArgument, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rid := observability.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set("X-Request-Id", rid)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", domain.ErrTransportFailure, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, snippet(body))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s %s: status %d: %s", domain.ErrTransportFailure, method, path, resp.StatusCode, snippet(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrTransportFailure, path, err)
	}
	return nil
}

func snippet(b []byte) string {
	if len(b) > maxErrorSnippet {
		b = b[:maxErrorSnippet]
	}
	return strings.TrimSpace(string(b))
}
