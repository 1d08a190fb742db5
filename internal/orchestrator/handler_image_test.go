package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/domain"
)

func TestImagePromptGenerationHandler_PersistSavesTextAsset(t *testing.T) {
	docs := newTestDocs(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save(CollectionJobs, job.JobID, job))

	h := &ImagePromptGenerationHandler{Docs: docs}
	tc := TaskContext{JobID: "job1"}

	enriched, err := h.Enrich(context.Background(), tc, Caller{UserID: "user1"})
	require.NoError(t, err)
	assert.NotEmpty(t, enriched.UserPrompt)

	persisted, err := h.Persist(context.Background(), docs, tc, "A warm photographic office scene.")
	require.NoError(t, err)
	record := persisted.(*domain.AssetRecord)
	assert.Equal(t, domain.ArtifactTypeText, record.ArtifactType)
	assert.Equal(t, domain.AssetKey("job1", "hero_image_prompt", ""), record.AssetID)
}

func TestImageGenerationHandler_EnrichReadsPromptAssetWhenNotSupplied(t *testing.T) {
	docs := newTestDocs(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save(CollectionJobs, job.JobID, job))
	require.NoError(t, docs.Save(CollectionJobAssets, domain.AssetKey("job1", "hero_image_prompt", ""), &domain.AssetRecord{
		AssetID: domain.AssetKey("job1", "hero_image_prompt", ""), JobID: "job1", FormatID: "hero_image_prompt",
		Content: domain.AssetContent{Text: "a prompt from the prior step"},
	}))

	h := &ImageGenerationHandler{Docs: docs}
	enriched, err := h.Enrich(context.Background(), TaskContext{JobID: "job1"}, Caller{UserID: "user1"})
	require.NoError(t, err)
	assert.Equal(t, "a prompt from the prior step", enriched.UserPrompt)
}

func TestImageGenerationHandler_EnrichRejectsMissingPrompt(t *testing.T) {
	docs := newTestDocs(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save(CollectionJobs, job.JobID, job))

	h := &ImageGenerationHandler{Docs: docs}
	_, err := h.Enrich(context.Background(), TaskContext{JobID: "job1"}, Caller{UserID: "user1"})
	require.Error(t, err)
	taskErr, ok := err.(*TaskError)
	require.True(t, ok)
	assert.Equal(t, KindInvalidContext, taskErr.Kind)
}

func TestImageGenerationHandler_PersistSavesImageAsset(t *testing.T) {
	docs := newTestDocs(t)
	h := &ImageGenerationHandler{Docs: docs}
	persisted, err := h.Persist(context.Background(), docs, TaskContext{JobID: "job1"}, "https://images.example/hero.png")
	require.NoError(t, err)
	record := persisted.(*domain.AssetRecord)
	assert.Equal(t, domain.ArtifactTypeImage, record.ArtifactType)
	assert.Equal(t, "https://images.example/hero.png", record.Content.ImageURL)
	assert.Equal(t, domain.AssetKey("job1", "hero_image", ""), record.AssetID)
}

func TestImageCaptionHandler_PersistSavesTextAsset(t *testing.T) {
	docs := newTestDocs(t)
	h := &ImageCaptionHandler{Docs: docs}
	persisted, err := h.Persist(context.Background(), docs, TaskContext{JobID: "job1"}, "A smiling team at work.")
	require.NoError(t, err)
	record := persisted.(*domain.AssetRecord)
	assert.Equal(t, domain.ArtifactTypeText, record.ArtifactType)
	assert.Equal(t, domain.AssetKey("job1", "image_caption", ""), record.AssetID)
}

func TestHeroImageHandler_PersistSavesPromptAndImageAssets(t *testing.T) {
	docs := newTestDocs(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save(CollectionJobs, job.JobID, job))

	h := &HeroImageHandler{Docs: docs}
	tc := TaskContext{JobID: "job1"}

	enriched, err := h.Enrich(context.Background(), tc, Caller{UserID: "user1"})
	require.NoError(t, err)
	assert.NotEmpty(t, enriched.UserPrompt)

	payload := heroImageResult{Prompt: "a hero shot", ImageURL: "https://images.example/hero.png"}
	persisted, err := h.Persist(context.Background(), docs, tc, payload)
	require.NoError(t, err)
	record := persisted.(*domain.AssetRecord)
	assert.Equal(t, domain.ArtifactTypeImage, record.ArtifactType)

	var promptRecord domain.AssetRecord
	require.NoError(t, docs.Get(CollectionJobAssets, domain.AssetKey("job1", "hero_image_prompt", ""), &promptRecord))
	assert.Equal(t, "a hero shot", promptRecord.Content.Text)
}

func TestHeroImageHandler_PersistFailurePreservesPriorImage(t *testing.T) {
	docs := newTestDocs(t)
	assetID := domain.AssetKey("job1", "hero_image", "")
	require.NoError(t, docs.Save(CollectionJobAssets, assetID, &domain.AssetRecord{
		AssetID: assetID, JobID: "job1", FormatID: "hero_image",
		Status: "ready", Content: domain.AssetContent{ImageURL: "https://images.example/prior.png"},
	}))

	h := &HeroImageHandler{Docs: docs}
	require.NoError(t, h.PersistFailure(context.Background(), docs, TaskContext{JobID: "job1"}, FailureDetail{Reason: "provider_error"}))

	var reloaded domain.AssetRecord
	require.NoError(t, docs.Get(CollectionJobAssets, assetID, &reloaded))
	assert.Equal(t, "failed", reloaded.Status)
	assert.Equal(t, "https://images.example/prior.png", reloaded.Content.ImageURL)
}
