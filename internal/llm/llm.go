// Package llm provides interfaces and types for provider client implementations.
package llm

import (
	"context"
	"fmt"
	"io"

	"orchestrator/internal/config"
	"orchestrator/internal/copilot/tools"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	RoleSystem    CompletionRole = "system"
	RoleUser      CompletionRole = "user"
	RoleAssistant CompletionRole = "assistant"
)

const (
	// CopilotMaxTokens bounds a single copilot turn's completion.
	CopilotMaxTokens = 8000
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Role        CompletionRole
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall represents a tool call made by the provider.
type ToolCall struct {
	Parameters map[string]any `json:"parameters"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
}

// ToolResult represents the outcome of executing a tool call, fed back to the provider.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	Tools       []tools.ToolDefinition
	Temperature float32
	MaxTokens   int

	// WantsGrounding requests the provider's native retrieval/search tool
	// (only the Google adapter currently honors this). Mutually exclusive
	// with WantsStructuredOutput; enforced by internal/llm/compat.
	WantsGrounding bool
	// WantsStructuredOutput requests a schema-constrained JSON response.
	WantsStructuredOutput bool
	// ResponseSchema is the JSON schema the response must conform to when
	// WantsStructuredOutput is set.
	ResponseSchema map[string]any
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string

	PromptTokens     int
	CompletionTokens int
}

// StreamChunk represents a chunk of streamed completion response.
type StreamChunk struct {
	Error   error
	Content string
	Done    bool
}

// LLMClient defines the interface for provider interactions. Every adapter in
// internal/llm/providers implements this.
type LLMClient interface {
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)
	Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error)
	GetDefaultConfig() config.Model
	GetModelName() string
}

// LLMConfig represents configuration for constructing a provider client.
type LLMConfig struct {
	APIKey           string
	ModelName        string
	MaxTokens        int
	Temperature      float32
	MaxContextTokens int
	MaxOutputTokens  int
	CompactIfOver    int
}

// Validate validates the provider configuration.
func (c *LLMConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   4096,
		Temperature: 0.7,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// Middleware wraps an LLMClient with additional behavior. Middlewares are
// composed with Chain to build the provider call pipeline (validation,
// metrics, circuit breaking, retry, rate limiting, timeout).
type Middleware func(next LLMClient) LLMClient

// clientFunc adapts plain functions to the LLMClient interface, for use by
// middleware implementations that wrap behavior around a next client.
type clientFunc struct {
	complete     func(context.Context, CompletionRequest) (CompletionResponse, error)
	stream       func(context.Context, CompletionRequest) (<-chan StreamChunk, error)
	getDefConfig func() config.Model
	getModelName func() string
}

func (f clientFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, req)
}

func (f clientFunc) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	return f.stream(ctx, req)
}

func (f clientFunc) GetDefaultConfig() config.Model {
	return f.getDefConfig()
}

func (f clientFunc) GetModelName() string {
	return f.getModelName()
}

// WrapClient builds an LLMClient from function implementations. Middleware
// packages use this to wrap a next client with additional behavior while
// delegating the parts they don't care about.
func WrapClient(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	stream func(context.Context, CompletionRequest) (<-chan StreamChunk, error),
	getDefConfig func() config.Model,
	getModelName func() string,
) LLMClient {
	return clientFunc{
		complete:     complete,
		stream:       stream,
		getDefConfig: getDefConfig,
		getModelName: getModelName,
	}
}

// Chain composes middlewares around a base client. Earlier middlewares in
// the argument list are outermost: Chain(base, a, b) builds a -> b -> base.
func Chain(base LLMClient, middlewares ...Middleware) LLMClient {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}

// StreamToReader converts a stream channel to an io.Reader.
func StreamToReader(stream <-chan StreamChunk) io.Reader {
	pr, pw := io.Pipe()

	go func() {
		defer func() {
			_ = pw.Close()
		}()
		for chunk := range stream {
			if chunk.Error != nil {
				pw.CloseWithError(chunk.Error)
				return
			}
			if _, err := pw.Write([]byte(chunk.Content)); err != nil {
				pw.CloseWithError(err)
				return
			}
			if chunk.Done {
				return
			}
		}
	}()

	return pr
}
