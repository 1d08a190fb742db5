package ratelimit

import (
	"context"

	"orchestrator/internal/config"
	"orchestrator/internal/llm"
	"orchestrator/internal/llm/middleware/metrics"
)

// Middleware wraps a provider client with token-bucket rate limiting,
// estimating the token cost of the request and acquiring both a token
// allotment and a concurrency slot before forwarding the call.
func Middleware(limiterMap *ProviderLimiterMap, estimator TokenEstimator, recorder metrics.Recorder) llm.Middleware {
	if estimator == nil {
		estimator = NewDefaultTokenEstimator()
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				modelConfig := next.GetDefaultConfig()

				limiter, err := limiterMap.GetLimiter(modelConfig.Name)
				if err != nil {
					recorder.IncThrottle(modelConfig.Name, "no_limiter")
					return llm.CompletionResponse{}, err
				}

				promptTokens := estimator.EstimatePrompt(req)
				totalTokens := promptTokens + req.MaxTokens

				release, err := limiter.Acquire(ctx, totalTokens, next.GetModelName())
				if err != nil {
					recorder.IncThrottle(modelConfig.Name, "rate_limit")
					return llm.CompletionResponse{}, err //nolint:wrapcheck // middleware passes through errors unchanged
				}
				defer release()

				return next.Complete(ctx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				modelConfig := next.GetDefaultConfig()

				limiter, err := limiterMap.GetLimiter(modelConfig.Name)
				if err != nil {
					recorder.IncThrottle(modelConfig.Name, "no_limiter")
					return nil, err
				}

				promptTokens := estimator.EstimatePrompt(req)
				totalTokens := promptTokens + req.MaxTokens

				release, err := limiter.Acquire(ctx, totalTokens, next.GetModelName())
				if err != nil {
					recorder.IncThrottle(modelConfig.Name, "rate_limit")
					return nil, err //nolint:wrapcheck // middleware passes through errors unchanged
				}
				defer release()

				return next.Stream(ctx, req)
			},
			func() config.Model { return next.GetDefaultConfig() },
			func() string { return next.GetModelName() },
		)
	}
}
