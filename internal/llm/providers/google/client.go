// Package google provides the Google Gemini client implementation of
// llm.LLMClient. It is the only adapter in this gateway that honors
// CompletionRequest.WantsGrounding (native Google Search retrieval) and is
// also used for structured video-manifest generation via
// CompletionRequest.WantsStructuredOutput — the two are mutually exclusive on
// a single Gemini call, enforced by internal/llm/compat before a request
// reaches this client.
package google

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"orchestrator/internal/agent/llmerrors"
	"orchestrator/internal/config"
	"orchestrator/internal/copilot/tools"
	"orchestrator/internal/llm"
)

// Client wraps the Google GenAI client to implement llm.LLMClient.
type Client struct {
	client        *genai.Client
	apiKey        string
	model         string
	responseCache []*genai.Content // cached assistant turns, preserves thought signatures
}

// NewClient creates a new Gemini client for the given model. The underlying
// genai.Client is created lazily on first Complete(), since construction
// requires a context.
func NewClient(apiKey, model string) llm.LLMClient {
	return &Client{
		apiKey: apiKey,
		model:  model,
	}
}

// Complete implements llm.LLMClient.
func (g *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeRateLimit, fmt.Sprintf("failed to create Gemini client: %v", err))
		}
		g.client = client
	}

	contents, systemInstruction, err := convertMessagesToGemini(in.Messages, g.responseCache)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	//nolint:gosec // MaxTokens validated at the orchestrator layer
	maxTokens := int32(in.MaxTokens)
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: maxTokens,
	}

	if systemInstruction != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	switch {
	case in.WantsGrounding:
		// Native Google Search retrieval. Cannot be combined with function
		// tools or a response schema on the same call.
		genConfig.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	case in.WantsStructuredOutput && in.ResponseSchema != nil:
		genConfig.ResponseMIMEType = "application/json"
		genConfig.ResponseSchema = convertJSONSchemaToGemini(in.ResponseSchema)
	case len(in.Tools) > 0:
		genConfig.Tools = []*genai.Tool{{FunctionDeclarations: convertToolsToGemini(in.Tools)}}
		// Force tool use: Gemini can return empty responses when not forced,
		// especially once the available tool set has changed between turns.
		genConfig.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, genConfig)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeUnknown, fmt.Sprintf("Gemini API call failed: %v", err))
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeUnknown, "empty response from Gemini API")
	}

	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		g.responseCache = append(g.responseCache, result.Candidates[0].Content)
	}

	response := llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: getStopReason(result),
	}

	if functionCalls := result.FunctionCalls(); len(functionCalls) > 0 {
		response.ToolCalls = convertFunctionCallsFromGemini(functionCalls)
	}

	return response, nil
}

// Stream implements llm.LLMClient. Not used by the gateway's video or
// company-intel pipelines, which consume whole completions.
func (g *Client) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, llmerrors.NewError(llmerrors.ErrorTypeUnknown, "streaming not implemented for Gemini client")
}

// GetDefaultConfig returns default model configuration for Gemini Flash.
func (g *Client) GetDefaultConfig() config.Model {
	return config.ModelDefaults[config.ModelGeminiFlash]
}

// GetModelName returns the model name for this client.
func (g *Client) GetModelName() string {
	return g.model
}

func convertMessagesToGemini(messages []llm.CompletionMessage, responseCache []*genai.Content) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	var contents []*genai.Content
	assistantMsgIdx := 0

	for i := range messages {
		msg := &messages[i]

		if msg.Role == llm.RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n" + msg.Content
			} else {
				systemInstruction = msg.Content
			}
			continue
		}

		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if msg.Role == llm.RoleAssistant && len(msg.ToolCalls) > 0 && assistantMsgIdx < len(responseCache) {
			contents = append(contents, responseCache[assistantMsgIdx])
			assistantMsgIdx++
			continue
		}

		if msg.Role == llm.RoleAssistant {
			assistantMsgIdx++
		}

		var parts []*genai.Part

		if msg.Content != "" {
			parts = append(parts, &genai.Part{Text: msg.Content})
		}

		if len(msg.ToolCalls) > 0 {
			for j := range msg.ToolCalls {
				tc := &msg.ToolCalls[j]
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						Name: tc.Name,
						Args: tc.Parameters,
						ID:   tc.ID,
					},
				})
			}
		}

		if len(msg.ToolResults) > 0 {
			for j := range msg.ToolResults {
				tr := &msg.ToolResults[j]
				if tr.ToolCallID == "" {
					continue
				}
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						Name: tr.ToolCallID,
						Response: map[string]any{
							"content":  tr.Content,
							"is_error": tr.IsError,
						},
					},
				})
			}
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	return contents, systemInstruction, nil
}

func convertToolsToGemini(toolDefs []tools.ToolDefinition) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, len(toolDefs))

	for i := range toolDefs {
		tool := &toolDefs[i]

		properties := make(map[string]*genai.Schema)
		for propName := range tool.InputSchema.Properties {
			prop := tool.InputSchema.Properties[propName]
			properties[propName] = convertPropertyToGeminiSchema(&prop)
		}

		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   tool.InputSchema.Required,
			},
		}
	}

	return declarations
}

func convertPropertyToGeminiSchema(prop *tools.Property) *genai.Schema {
	schema := &genai.Schema{Description: prop.Description}

	switch prop.Type {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
		if prop.Items != nil {
			schema.Items = convertPropertyToGeminiSchema(prop.Items)
		}
	case "object":
		schema.Type = genai.TypeObject
		if prop.Properties != nil {
			properties := make(map[string]*genai.Schema)
			for name, childProp := range prop.Properties {
				if childProp != nil {
					properties[name] = convertPropertyToGeminiSchema(childProp)
				}
			}
			schema.Properties = properties
		}
	default:
		schema.Type = genai.TypeString
	}

	if len(prop.Enum) > 0 {
		schema.Enum = prop.Enum
	}

	return schema
}

// convertJSONSchemaToGemini converts a plain JSON-schema map (as carried on
// CompletionRequest.ResponseSchema) into genai's typed Schema, for the video
// manifest builder's structured-output calls.
func convertJSONSchemaToGemini(raw map[string]any) *genai.Schema {
	schema := &genai.Schema{}

	if t, ok := raw["type"].(string); ok {
		switch t {
		case "string":
			schema.Type = genai.TypeString
		case "number":
			schema.Type = genai.TypeNumber
		case "integer":
			schema.Type = genai.TypeInteger
		case "boolean":
			schema.Type = genai.TypeBoolean
		case "array":
			schema.Type = genai.TypeArray
		case "object":
			schema.Type = genai.TypeObject
		}
	}

	if desc, ok := raw["description"].(string); ok {
		schema.Description = desc
	}

	if props, ok := raw["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, v := range props {
			if propMap, ok := v.(map[string]any); ok {
				schema.Properties[name] = convertJSONSchemaToGemini(propMap)
			}
		}
	}

	if items, ok := raw["items"].(map[string]any); ok {
		schema.Items = convertJSONSchemaToGemini(items)
	}

	if required, ok := raw["required"].([]string); ok {
		schema.Required = required
	}

	return schema
}

func convertFunctionCallsFromGemini(calls []*genai.FunctionCall) []llm.ToolCall {
	toolCalls := make([]llm.ToolCall, len(calls))

	for i := range calls {
		call := calls[i]
		id := call.ID
		if id == "" {
			id = call.Name
		}
		toolCalls[i] = llm.ToolCall{
			ID:         id,
			Name:       call.Name,
			Parameters: call.Args,
		}
	}

	return toolCalls
}

func getStopReason(result *genai.GenerateContentResponse) string {
	if result == nil {
		return "unknown"
	}
	return "end_turn"
}
