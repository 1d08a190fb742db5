// Package anthropic wraps the Anthropic Messages API to implement llm.LLMClient.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"orchestrator/internal/agent/llmerrors"
	"orchestrator/internal/config"
	"orchestrator/internal/llm"
)

// Client wraps the Anthropic API client to implement llm.LLMClient.
//
//nolint:govet // simple client struct, logical grouping preferred
type Client struct {
	client anthropicsdk.Client
	model  anthropicsdk.Model
}

// NewClient creates a new Anthropic client for the given model.
func NewClient(apiKey, model string) llm.LLMClient {
	return &Client{
		client: anthropicsdk.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropicsdk.Model(model),
	}
}

// Complete implements llm.LLMClient.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages := make([]anthropicsdk.MessageParam, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		role := anthropicsdk.MessageParamRole(msg.Role)
		block := anthropicsdk.NewTextBlock(msg.Content)
		messages = append(messages, anthropicsdk.MessageParam{
			Role:    role,
			Content: []anthropicsdk.ContentBlockParamUnion{block},
		})
	}

	params := anthropicsdk.MessageNewParams{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: int64(in.MaxTokens),
	}

	if len(in.Tools) > 0 {
		var toolParams []anthropicsdk.ToolUnionParam
		for i := range in.Tools {
			tool := &in.Tools[i]

			var properties any
			if len(tool.InputSchema.Properties) > 0 {
				props := make(map[string]any)
				for name := range tool.InputSchema.Properties {
					prop := tool.InputSchema.Properties[name]
					propMap := map[string]any{"type": prop.Type}
					if prop.Description != "" {
						propMap["description"] = prop.Description
					}
					if len(prop.Enum) > 0 {
						propMap["enum"] = prop.Enum
					}
					props[name] = propMap
				}
				properties = props
			}

			toolParam := anthropicsdk.ToolParam{
				Name: tool.Name,
				InputSchema: anthropicsdk.ToolInputSchemaParam{
					Type:       "object",
					Properties: properties,
					Required:   tool.InputSchema.Required,
				},
			}
			toolParams = append(toolParams, anthropicsdk.ToolUnionParamOfTool(toolParam.InputSchema, toolParam.Name))
		}
		params.Tools = toolParams
		params.ToolChoice = anthropicsdk.ToolChoiceUnionParam{
			OfAuto: &anthropicsdk.ToolChoiceAutoParam{},
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty response from Anthropic API")
	}

	var responseText string
	var toolCalls []llm.ToolCall

	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			responseText += block.AsText().Text
		case "tool_use":
			toolUseBlock := block.AsToolUse()
			var params map[string]any
			if err := json.Unmarshal(toolUseBlock.Input, &params); err != nil {
				return llm.CompletionResponse{}, fmt.Errorf("failed to parse tool input: %w", err)
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:         toolUseBlock.ID,
				Name:       toolUseBlock.Name,
				Parameters: params,
			})
		}
	}

	return llm.CompletionResponse{
		Content:          responseText,
		ToolCalls:        toolCalls,
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// Stream implements llm.LLMClient. Streaming is not exercised by the gateway's
// task orchestrator or copilot loop today (both consume whole completions), so
// this forwards to Complete and emits the result as a single chunk.
func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, in)
		if err != nil {
			ch <- llm.StreamChunk{Error: err}
			return
		}
		ch <- llm.StreamChunk{Content: resp.Content}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetDefaultConfig returns default model configuration for Claude Sonnet 4.
func (c *Client) GetDefaultConfig() config.Model {
	return config.ModelDefaults[config.ModelClaudeSonnet4]
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return string(c.model)
}

func classifyError(err error) *llmerrors.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request canceled")
	}

	errStr := err.Error()
	statusCode := extractStatusCode(errStr)

	switch statusCode {
	case 401:
		return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, statusCode, "authentication failed - check API key")
	case 403:
		return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, statusCode, "permission denied - check API access")
	case 429:
		return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, statusCode, "rate limit exceeded")
	case 400:
		return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, statusCode, "bad request - check prompt format and parameters")
	case 500, 502, 503, 504:
		return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, statusCode, "server error")
	}

	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "connection") ||
		strings.Contains(lower, "network") || strings.Contains(lower, "eof") || strings.Contains(lower, "reset"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(lower, "rate") || strings.Contains(lower, "quota") || strings.Contains(lower, "limit"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(lower, "auth") || strings.Contains(lower, "key") || strings.Contains(lower, "unauthorized"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication error")
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "malformed") || strings.Contains(lower, "token"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "prompt or request error")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
	}
}

func extractStatusCode(errStr string) int {
	patterns := []string{"status code: ", "status: ", "HTTP ", "code "}

	for _, pattern := range patterns {
		idx := strings.Index(strings.ToLower(errStr), pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		if start >= len(errStr) {
			continue
		}
		end := start + 3
		if end > len(errStr) {
			end = len(errStr)
		}
		statusStr := errStr[start:end]

		for _, code := range []int{400, 401, 403, 429, 500, 502, 503, 504} {
			if strings.HasPrefix(statusStr, fmt.Sprintf("%d", code)) {
				return code
			}
		}
	}

	return 0
}
