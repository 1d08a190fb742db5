package render

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"orchestrator/internal/config"
	"orchestrator/internal/domain"
)

// VeoProvider implements Provider against Google's Veo video generation
// model via google.golang.org/genai, the same SDK internal/llm/providers/google
// uses for text completions. Submitting an extension segment passes the
// prior segment's recap as the prompt continuation; Veo's own
// synthIdWatermark is always on for generated output.
type VeoProvider struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewVeoProvider returns a Provider backed by model (e.g. "veo-3.0-generate-001").
// The underlying genai.Client is created lazily on first use, mirroring
// internal/llm/providers/google.Client.
func NewVeoProvider(apiKey, model string) *VeoProvider {
	return &VeoProvider{apiKey: apiKey, model: model}
}

func (v *VeoProvider) ensureClient(ctx context.Context) error {
	if v.client != nil {
		return nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  v.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("create genai client: %w", err)
	}
	v.client = client
	return nil
}

// SubmitSegment implements Provider.
func (v *VeoProvider) SubmitSegment(ctx context.Context, req SegmentRequest) (string, error) {
	if err := v.ensureClient(ctx); err != nil {
		return "", err
	}

	prompt := shotsToPrompt(req.Shots)
	if req.Recap != "" {
		prompt = fmt.Sprintf("Continuing from: %s\n\n%s", req.Recap, prompt)
	}

	seconds := int32(req.Seconds)
	op, err := v.client.Models.GenerateVideos(ctx, v.model, prompt, nil, &genai.GenerateVideosConfig{
		NumberOfVideos:  1,
		DurationSeconds: &seconds,
	})
	if err != nil {
		return "", fmt.Errorf("submit veo segment %d: %w", req.Index, err)
	}
	return op.Name, nil
}

// Poll implements Provider.
func (v *VeoProvider) Poll(ctx context.Context, providerJobID string) (SegmentStatus, error) {
	if err := v.ensureClient(ctx); err != nil {
		return SegmentStatus{}, err
	}

	op, err := v.client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: providerJobID}, nil)
	if err != nil {
		return SegmentStatus{}, fmt.Errorf("poll veo operation %s: %w", providerJobID, err)
	}

	if !op.Done {
		return SegmentStatus{Status: predictingOrFetching(op)}, nil
	}
	if op.Error != nil {
		return SegmentStatus{Status: "failed", FailReason: op.Error.Message}, nil
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return SegmentStatus{Status: "failed", FailReason: "veo operation completed with no generated video"}, nil
	}
	return SegmentStatus{Status: "ready", VideoURL: op.Response.GeneratedVideos[0].Video.URI}, nil
}

// Stitch implements Provider. Veo extension calls already produce one
// continuous clip ending at the last segment, so stitching is a no-op that
// returns the final segment's URL.
func (v *VeoProvider) Stitch(ctx context.Context, segmentURLs []string) (string, error) {
	if len(segmentURLs) == 0 {
		return "", fmt.Errorf("no segment urls to stitch")
	}
	return segmentURLs[len(segmentURLs)-1], nil
}

func predictingOrFetching(op *genai.GenerateVideosOperation) string {
	if op.Metadata != nil {
		if state, ok := op.Metadata["state"].(string); ok && strings.Contains(strings.ToLower(state), "fetch") {
			return "fetching"
		}
	}
	return "predicting"
}

func shotsToPrompt(shots []domain.Shot) string {
	var b strings.Builder
	for _, s := range shots {
		fmt.Fprintf(&b, "[%s] %s. On-screen: %q. Voice-over: %q.\n", s.Phase, s.Visual, s.OnScreenText, s.VoiceOver)
	}
	return b.String()
}

// NewVeoProviderFromModel resolves a model name via config's task family
// table rather than a caller-supplied literal.
func NewVeoProviderFromModel(apiKey string) (*VeoProvider, error) {
	model, err := config.GetTaskFamilyModel(config.TaskFamilyVideoScript)
	if err != nil {
		return nil, err
	}
	return NewVeoProvider(apiKey, model), nil
}
