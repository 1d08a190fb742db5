package metrics

import (
	"context"
	"time"

	"orchestrator/internal/agent/llmerrors"
	"orchestrator/internal/config"
	"orchestrator/internal/llm"
)

type taskContextKeyType struct{}

var taskContextKey = taskContextKeyType{}

// taskContext carries the caller and task-family labels used to attribute a
// provider call to a user and task type in the usage ledger.
type taskContext struct {
	userID   string
	taskType string
}

// WithTaskContext attaches usage-ledger attribution labels to ctx for the
// metrics middleware. Nothing in this module calls it, so every request's
// user and task type are recorded as "unknown".
func WithTaskContext(ctx context.Context, userID, taskType string) context.Context {
	return context.WithValue(ctx, taskContextKey, taskContext{userID: userID, taskType: taskType})
}

func taskContextFrom(ctx context.Context) (userID, taskType string) {
	tc, ok := ctx.Value(taskContextKey).(taskContext)
	if !ok {
		return "unknown", "unknown"
	}
	return tc.userID, tc.taskType
}

// Middleware records request count, token usage, credit cost, and latency for
// every provider call, regardless of outcome.
func Middleware(recorder Recorder) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				userID, taskType := taskContextFrom(ctx)
				model := next.GetModelName()

				errorType := ""
				success := err == nil
				if err != nil {
					errorType = llmerrors.TypeOf(err).String()
				}

				credits := 0.0
				if success {
					credits = estimateCredits(model, resp.PromptTokens, resp.CompletionTokens)
				}

				recorder.ObserveRequest(model, userID, taskType, resp.PromptTokens, resp.CompletionTokens, credits, success, errorType, duration)

				return resp, err //nolint:wrapcheck // middleware passes through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				return next.Stream(ctx, req)
			},
			func() config.Model { return next.GetDefaultConfig() },
			func() string { return next.GetModelName() },
		)
	}
}

func estimateCredits(model string, promptTokens, completionTokens int) float64 {
	credit := config.DefaultCreditConfig()
	ratio, ok := credit.CreditsPerThousandTokens[model]
	if !ok {
		return 0
	}
	totalTokens := float64(promptTokens + completionTokens)
	return (totalTokens / 1000) * ratio
}
