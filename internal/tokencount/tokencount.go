// Package tokencount estimates prompt token counts ahead of a provider call,
// so the orchestrator can reserve credits before it knows the real usage.
package tokencount

import (
	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens for one model's encoding.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter returns a Counter using the GPT-4 encoding for every model;
// modelName is not consulted. For models with other tokenizers (Anthropic,
// Google) this is an approximation, not an exact count, which is all a
// pre-call credit reservation needs.
func NewCounter(modelName string) *Counter {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return &Counter{}
	}
	return &Counter{codec: codec}
}

// Count returns the estimated token count of text, falling back to a
// character-based approximation (4 chars ≈ 1 token) if no codec loaded
// or the codec errors on this input.
func (c *Counter) Count(text string) int {
	if c.codec == nil {
		return len(text) / 4
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// Estimate is a package-level convenience for a one-off count against
// the default GPT-4 encoding, used where callers don't hold a Counter.
func Estimate(modelName, text string) int {
	return NewCounter(modelName).Count(text)
}
