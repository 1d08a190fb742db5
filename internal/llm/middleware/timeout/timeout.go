// Package timeout provides per-request timeout middleware for provider clients.
package timeout

import (
	"context"
	"time"

	"orchestrator/internal/config"
	"orchestrator/internal/llm"
)

// Middleware wraps a provider client so every request gets its own timeout
// context, preventing a stalled upstream call from blocking a task forever.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Stream(timeoutCtx, req)
			},
			func() config.Model { return next.GetDefaultConfig() },
			func() string { return next.GetModelName() },
		)
	}
}
