package orchestrator

import "orchestrator/internal/llm"

func fakeResponse(content string) llm.CompletionResponse {
	return llm.CompletionResponse{Content: content, PromptTokens: 10, CompletionTokens: 10}
}
