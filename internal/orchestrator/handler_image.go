package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orchestrator/internal/config"
	"orchestrator/internal/domain"
	"orchestrator/internal/llm"
	"orchestrator/internal/store"
)

// ImagePromptGenerationHandler turns a job snapshot into a detailed image
// generation prompt, persisted as a text asset so image_generation can read
// it back.
type ImagePromptGenerationHandler struct {
	Docs *store.Documents
}

func (h *ImagePromptGenerationHandler) TaskFamily() string { return config.TaskFamilyImage }

func (h *ImagePromptGenerationHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
	job, _, company, err := loadAssetContext(h.Docs, tc.JobID, caller.UserID)
	if err != nil {
		return EnrichResult{}, err
	}
	formatID := stringFromRaw(tc.Raw, "formatId")
	if formatID == "" {
		formatID = "hero_image_prompt"
	}
	jobJSON, _ := json.Marshal(job)
	companyJSON, _ := json.Marshal(company)
	return EnrichResult{
		SystemPrompt: "You write a single detailed, photographic image-generation prompt for a recruiting hero image. Respond with JSON: {prompt}.",
		UserPrompt:   fmt.Sprintf("Job: %s\n\nCompany context: %s", string(jobJSON), string(companyJSON)),
	}, nil
}

func (h *ImagePromptGenerationHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	var parsed struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal([]byte(raw.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse image prompt: %w", err)
	}
	return parsed.Prompt, nil
}

func (h *ImagePromptGenerationHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	prompt, ok := payload.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected image prompt payload type %T", payload)
	}
	formatID := stringFromRaw(tc.Raw, "formatId")
	if formatID == "" {
		formatID = "hero_image_prompt"
	}
	record := domain.AssetRecord{
		AssetID:      domain.AssetKey(tc.JobID, formatID, ""),
		JobID:        tc.JobID,
		FormatID:     formatID,
		ArtifactType: domain.ArtifactTypeText,
		Status:       "ready",
		Content:      domain.AssetContent{Text: prompt},
		UpdatedAt:    time.Now().UTC(),
	}
	if err := docs.Save(CollectionJobAssets, record.AssetID, &record); err != nil {
		return nil, fmt.Errorf("save image prompt: %w", err)
	}
	return &record, nil
}

func (h *ImagePromptGenerationHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	formatID := stringFromRaw(tc.Raw, "formatId")
	if formatID == "" {
		formatID = "hero_image_prompt"
	}
	return persistAssetFailure(docs, domain.AssetKey(tc.JobID, formatID, ""), tc.JobID, formatID, "", detail)
}

// ImageGenerationHandler invokes the image provider with a previously
// generated (or caller-supplied) prompt, persisting the resulting image
// URL as an asset.
type ImageGenerationHandler struct {
	Docs *store.Documents
}

func (h *ImageGenerationHandler) TaskFamily() string { return config.TaskFamilyImage }

func (h *ImageGenerationHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
	_, _, _, err := loadAssetContext(h.Docs, tc.JobID, caller.UserID)
	if err != nil {
		return EnrichResult{}, err
	}
	prompt := stringFromRaw(tc.Raw, "prompt")
	if prompt == "" {
		promptFormatID := stringFromRaw(tc.Raw, "promptFormatId")
		if promptFormatID == "" {
			promptFormatID = "hero_image_prompt"
		}
		var promptAsset domain.AssetRecord
		_ = h.Docs.Get(CollectionJobAssets, domain.AssetKey(tc.JobID, promptFormatID, ""), &promptAsset)
		prompt = promptAsset.Content.Text
	}
	if prompt == "" {
		return EnrichResult{}, NewTaskError(KindInvalidContext, "image_generation requires a prompt")
	}
	return EnrichResult{
		SystemPrompt: "You generate an image and return its hosted URL. Respond with JSON: {imageUrl}.",
		UserPrompt:   prompt,
	}, nil
}

func (h *ImageGenerationHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	var parsed struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := json.Unmarshal([]byte(raw.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse image generation result: %w", err)
	}
	return parsed.ImageURL, nil
}

func (h *ImageGenerationHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	imageURL, ok := payload.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected image generation payload type %T", payload)
	}
	formatID := stringFromRaw(tc.Raw, "formatId")
	if formatID == "" {
		formatID = "hero_image"
	}
	record := domain.AssetRecord{
		AssetID:      domain.AssetKey(tc.JobID, formatID, ""),
		JobID:        tc.JobID,
		FormatID:     formatID,
		ArtifactType: domain.ArtifactTypeImage,
		Status:       "ready",
		Content:      domain.AssetContent{ImageURL: imageURL},
		UpdatedAt:    time.Now().UTC(),
	}
	if err := docs.Save(CollectionJobAssets, record.AssetID, &record); err != nil {
		return nil, fmt.Errorf("save generated image: %w", err)
	}
	return &record, nil
}

func (h *ImageGenerationHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	formatID := stringFromRaw(tc.Raw, "formatId")
	if formatID == "" {
		formatID = "hero_image"
	}
	return persistAssetFailure(docs, domain.AssetKey(tc.JobID, formatID, ""), tc.JobID, formatID, "", detail)
}

// ImageCaptionHandler writes alt-text/caption copy for a generated image.
type ImageCaptionHandler struct {
	Docs *store.Documents
}

func (h *ImageCaptionHandler) TaskFamily() string { return config.TaskFamilyImage }

func (h *ImageCaptionHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
	job, _, _, err := loadAssetContext(h.Docs, tc.JobID, caller.UserID)
	if err != nil {
		return EnrichResult{}, err
	}
	imageFormatID := stringFromRaw(tc.Raw, "imageFormatId")
	if imageFormatID == "" {
		imageFormatID = "hero_image"
	}
	var imageAsset domain.AssetRecord
	_ = h.Docs.Get(CollectionJobAssets, domain.AssetKey(tc.JobID, imageFormatID, ""), &imageAsset)
	jobJSON, _ := json.Marshal(job)
	return EnrichResult{
		SystemPrompt: "You write concise alt-text/caption copy for a recruiting hero image. Respond with JSON: {text}.",
		UserPrompt:   fmt.Sprintf("Image URL: %s\n\nJob: %s", imageAsset.Content.ImageURL, string(jobJSON)),
	}, nil
}

func (h *ImageCaptionHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse image caption: %w", err)
	}
	return parsed.Text, nil
}

func (h *ImageCaptionHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	text, ok := payload.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected image caption payload type %T", payload)
	}
	formatID := stringFromRaw(tc.Raw, "formatId")
	if formatID == "" {
		formatID = "image_caption"
	}
	record := domain.AssetRecord{
		AssetID:      domain.AssetKey(tc.JobID, formatID, ""),
		JobID:        tc.JobID,
		FormatID:     formatID,
		ArtifactType: domain.ArtifactTypeText,
		Status:       "ready",
		Content:      domain.AssetContent{Text: text},
		UpdatedAt:    time.Now().UTC(),
	}
	if err := docs.Save(CollectionJobAssets, record.AssetID, &record); err != nil {
		return nil, fmt.Errorf("save image caption: %w", err)
	}
	return &record, nil
}

func (h *ImageCaptionHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	formatID := stringFromRaw(tc.Raw, "formatId")
	if formatID == "" {
		formatID = "image_caption"
	}
	return persistAssetFailure(docs, domain.AssetKey(tc.JobID, formatID, ""), tc.JobID, formatID, "", detail)
}

// HeroImageHandler is the orchestrator-task wrapper over
// image_prompt_generation + image_generation: modeled as one
// structured-output call returning both the prompt and the resulting image
// URL, for the same reason generate_campaign_assets is — the Handler
// contract is one task, one provider round trip.
type HeroImageHandler struct {
	Docs *store.Documents
}

func (h *HeroImageHandler) TaskFamily() string { return config.TaskFamilyImage }

func (h *HeroImageHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
	job, refinement, company, err := loadAssetContext(h.Docs, tc.JobID, caller.UserID)
	if err != nil {
		return EnrichResult{}, err
	}
	jobJSON, _ := json.Marshal(job)
	refinementJSON, _ := json.Marshal(refinement)
	companyJSON, _ := json.Marshal(company)
	return EnrichResult{
		SystemPrompt: "You generate a recruiting hero image end to end: write the image prompt, then generate and return the hosted image. Respond with JSON: {prompt, imageUrl}.",
		UserPrompt: fmt.Sprintf("Job: %s\n\nRefinement: %s\n\nCompany context: %s",
			string(jobJSON), string(refinementJSON), string(companyJSON)),
	}, nil
}

type heroImageResult struct {
	Prompt   string `json:"prompt"`
	ImageURL string `json:"imageUrl"`
}

func (h *HeroImageHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	var parsed heroImageResult
	if err := json.Unmarshal([]byte(raw.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse hero image result: %w", err)
	}
	return parsed, nil
}

func (h *HeroImageHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	result, ok := payload.(heroImageResult)
	if !ok {
		return nil, fmt.Errorf("unexpected hero image payload type %T", payload)
	}
	now := time.Now().UTC()
	promptRecord := domain.AssetRecord{
		AssetID:      domain.AssetKey(tc.JobID, "hero_image_prompt", ""),
		JobID:        tc.JobID,
		FormatID:     "hero_image_prompt",
		ArtifactType: domain.ArtifactTypeText,
		Status:       "ready",
		Content:      domain.AssetContent{Text: result.Prompt},
		UpdatedAt:    now,
	}
	if err := docs.Save(CollectionJobAssets, promptRecord.AssetID, &promptRecord); err != nil {
		return nil, fmt.Errorf("save hero image prompt: %w", err)
	}
	imageRecord := domain.AssetRecord{
		AssetID:      domain.AssetKey(tc.JobID, "hero_image", ""),
		JobID:        tc.JobID,
		FormatID:     "hero_image",
		ArtifactType: domain.ArtifactTypeImage,
		Status:       "ready",
		Content:      domain.AssetContent{ImageURL: result.ImageURL},
		UpdatedAt:    now,
	}
	if err := docs.Save(CollectionJobAssets, imageRecord.AssetID, &imageRecord); err != nil {
		return nil, fmt.Errorf("save hero image: %w", err)
	}
	return &imageRecord, nil
}

func (h *HeroImageHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	return persistAssetFailure(docs, domain.AssetKey(tc.JobID, "hero_image", ""), tc.JobID, "hero_image", "", detail)
}
