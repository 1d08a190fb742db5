// Package validation provides empty-response detection and a single
// auto-retry-with-guidance pass before a provider call is allowed to
// propagate an empty completion up to the task orchestrator or copilot loop.
package validation

import (
	"context"
	"fmt"
	"strings"

	"orchestrator/internal/agent/llmerrors"
	"orchestrator/internal/config"
	"orchestrator/internal/llm"
	"orchestrator/internal/logx"
)

// EmptyResponseValidator checks whether a completion should be considered
// empty for the calling context, and retries once with guidance before
// escalating.
type EmptyResponseValidator struct {
	// RequireToolCall marks contexts (the copilot agent loop) where a
	// response with no tool calls is invalid even if it has text content.
	// Task-orchestrator calls, which want a plain or structured text answer,
	// leave this false.
	RequireToolCall bool
}

// NewEmptyResponseValidator creates a validator for the given calling context.
func NewEmptyResponseValidator(requireToolCall bool) *EmptyResponseValidator {
	return &EmptyResponseValidator{RequireToolCall: requireToolCall}
}

// Middleware validates completions and retries once with guidance on an
// empty response before escalating to ErrorTypeEmptyResponse.
func (v *EmptyResponseValidator) Middleware() llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				const maxEmptyAttempts = 2
				logger := logx.NewLogger("empty-response-validator")

				for attempt := 1; attempt <= maxEmptyAttempts; attempt++ {
					resp, err := next.Complete(ctx, req)

					if err != nil && !llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
						return resp, err //nolint:wrapcheck // middleware passes through errors unchanged
					}

					isEmpty := err != nil || v.isEmptyResponse(resp)
					if !isEmpty {
						return resp, nil
					}

					logger.Warn("empty response detected (attempt %d/%d)", attempt, maxEmptyAttempts)

					if attempt == 1 {
						guidance := v.guidanceMessage(req)
						modified := req
						modified.Messages = append(modified.Messages, llm.CompletionMessage{
							Role:    llm.RoleUser,
							Content: guidance,
						})
						req = modified
						continue
					}

					break
				}

				return llm.CompletionResponse{}, llmerrors.NewError(
					llmerrors.ErrorTypeEmptyResponse,
					"received inadequate response after guidance: no meaningful content or tool usage",
				)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				return next.Stream(ctx, req)
			},
			func() config.Model { return next.GetDefaultConfig() },
			func() string { return next.GetModelName() },
		)
	}
}

func (v *EmptyResponseValidator) isEmptyResponse(resp llm.CompletionResponse) bool {
	if len(resp.ToolCalls) > 0 {
		return false
	}

	contentEmpty := strings.TrimSpace(resp.Content) == ""
	return v.RequireToolCall || contentEmpty
}

func (v *EmptyResponseValidator) guidanceMessage(req llm.CompletionRequest) string {
	if !v.RequireToolCall {
		return "Your response wasn't understood. Please provide a clear response."
	}

	if len(req.Tools) == 0 {
		return "No response received, please try again."
	}

	names := make([]string, len(req.Tools))
	for i := range req.Tools {
		names[i] = req.Tools[i].Name
	}
	return fmt.Sprintf("Responses without tool usage are invalid. Use one of the available tools: %s.", strings.Join(names, ", "))
}
