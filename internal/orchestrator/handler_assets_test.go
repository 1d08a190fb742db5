package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/domain"
)

func TestAssetMasterHandler_PersistSavesTextAsset(t *testing.T) {
	docs := newTestDocs(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save(CollectionJobs, job.JobID, job))

	h := &AssetMasterHandler{Docs: docs}
	tc := TaskContext{JobID: "job1", Raw: map[string]any{"formatId": "linkedin_post"}}

	enriched, err := h.Enrich(context.Background(), tc, Caller{UserID: "user1"})
	require.NoError(t, err)
	assert.NotEmpty(t, enriched.UserPrompt)

	persisted, err := h.Persist(context.Background(), docs, tc, "Join our team as a backend engineer.")
	require.NoError(t, err)
	record := persisted.(*domain.AssetRecord)
	assert.Equal(t, domain.ArtifactTypeText, record.ArtifactType)
	assert.Equal(t, "Join our team as a backend engineer.", record.Content.Text)

	var reloaded domain.AssetRecord
	require.NoError(t, docs.Get(CollectionJobAssets, domain.AssetKey("job1", "linkedin_post", ""), &reloaded))
	assert.Equal(t, record.Content.Text, reloaded.Content.Text)
}

func TestAssetMasterHandler_EnrichRejectsNonOwner(t *testing.T) {
	docs := newTestDocs(t)
	job := domain.NewJob("job1", "someone-else", time.Now().UTC())
	require.NoError(t, docs.Save(CollectionJobs, job.JobID, job))

	h := &AssetMasterHandler{Docs: docs}
	_, err := h.Enrich(context.Background(), TaskContext{JobID: "job1", Raw: map[string]any{"formatId": "x"}}, Caller{UserID: "user1"})
	require.Error(t, err)
	taskErr, ok := err.(*TaskError)
	require.True(t, ok)
	assert.Equal(t, KindForbidden, taskErr.Kind)
}

func TestAssetChannelBatchHandler_PersistSavesOnePerChannel(t *testing.T) {
	docs := newTestDocs(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save(CollectionJobs, job.JobID, job))

	h := &AssetChannelBatchHandler{Docs: docs}
	tc := TaskContext{JobID: "job1", Raw: map[string]any{
		"formatId":   "linkedin_post",
		"channelIds": []any{"tiktok", "instagram"},
	}}

	payload := []channelAsset{
		{ChannelID: "tiktok", Text: "tiktok copy"},
		{ChannelID: "instagram", Text: "instagram copy"},
	}
	persisted, err := h.Persist(context.Background(), docs, tc, payload)
	require.NoError(t, err)
	records := persisted.([]*domain.AssetRecord)
	require.Len(t, records, 2)

	var tiktok domain.AssetRecord
	require.NoError(t, docs.Get(CollectionJobAssets, domain.AssetKey("job1", "linkedin_post", "tiktok"), &tiktok))
	assert.Equal(t, "tiktok copy", tiktok.Content.Text)
}

func TestGenerateCampaignAssetsHandler_PersistSavesCrossProduct(t *testing.T) {
	docs := newTestDocs(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save(CollectionJobs, job.JobID, job))

	h := &GenerateCampaignAssetsHandler{Docs: docs}
	tc := TaskContext{JobID: "job1", Raw: map[string]any{
		"formatIds":  []any{"linkedin_post"},
		"channelIds": []any{"tiktok"},
	}}

	payload := []campaignAsset{{FormatID: "linkedin_post", ChannelID: "tiktok", Text: "copy"}}
	persisted, err := h.Persist(context.Background(), docs, tc, payload)
	require.NoError(t, err)
	records := persisted.([]*domain.AssetRecord)
	require.Len(t, records, 1)
	assert.Equal(t, "tiktok", records[0].ChannelID)
}

func TestPersistAssetFailure_PreservesPriorContent(t *testing.T) {
	docs := newTestDocs(t)
	assetID := domain.AssetKey("job1", "linkedin_post", "")
	require.NoError(t, docs.Save(CollectionJobAssets, assetID, &domain.AssetRecord{
		AssetID: assetID, JobID: "job1", FormatID: "linkedin_post",
		Status: "ready", Content: domain.AssetContent{Text: "prior copy"},
	}))

	err := persistAssetFailure(docs, assetID, "job1", "linkedin_post", "", FailureDetail{Reason: "provider_error"})
	require.NoError(t, err)

	var reloaded domain.AssetRecord
	require.NoError(t, docs.Get(CollectionJobAssets, assetID, &reloaded))
	assert.Equal(t, "failed", reloaded.Status)
	assert.Equal(t, "prior copy", reloaded.Content.Text)
}
