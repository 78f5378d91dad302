// Package tokencount estimates token usage of prompts and generations.
//
// Gemini does not publish a local tokenizer, so counts use the cl100k_base
// encoding from tiktoken-go as an approximation. When the encoding cannot be
// loaded the counter falls back to roughly four characters per token.
package tokencount

import (
	"log/slog"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// Usage is the token estimate for one upstream call.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Estimated        bool   `json:"estimated"`
}

// Counter is safe for concurrent use. The encoding is loaded once.
type Counter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewCounter creates a counter. The encoding is loaded lazily on first use.
func NewCounter() *Counter { return &Counter{} }

// DefaultCounter is shared by callers that do not need their own instance.
var DefaultCounter = NewCounter()

func (c *Counter) encoding() (*tiktoken.Tiktoken, error) {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding(encodingName)
		if c.err != nil {
			slog.Warn("token encoding unavailable; estimating by length", slog.Any("error", c.err))
		}
	})
	return c.enc, c.err
}

// Count returns the number of tokens in text and whether it is a length-based estimate.
func (c *Counter) Count(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	enc, err := c.encoding()
	if err != nil {
		return estimate(text), true
	}
	return len(enc.Encode(text, nil, nil)), false
}

// Usage measures prompt and completion for model.
func (c *Counter) Usage(prompt, completion, model string) Usage {
	p, pe := c.Count(prompt)
	cpl, ce := c.Count(completion)
	return Usage{
		PromptTokens:     p,
		CompletionTokens: cpl,
		TotalTokens:      p + cpl,
		Model:            model,
		Estimated:        pe || ce,
	}
}

func estimate(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
