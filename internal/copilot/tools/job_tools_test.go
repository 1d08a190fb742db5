package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/domain"
	"orchestrator/internal/store"
)

func newTestDocs(t *testing.T) *store.Documents {
	t.Helper()
	require.NoError(t, store.Reset())
	require.NoError(t, store.Initialize(t.TempDir()+"/test.db"))
	t.Cleanup(func() { _ = store.Close() })
	return store.Store()
}

func TestProposeSuggestionTool_AppliesFieldAndReturnsAction(t *testing.T) {
	docs := newTestDocs(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save(jobsCollection, job.JobID, job))

	tool := &ProposeSuggestionTool{}
	execCtx := ExecContext{Docs: docs, UserID: "user1", JobID: "job1", Cache: map[string]any{}}
	result, err := tool.Execute(context.Background(), execCtx, map[string]any{"field": "roleTitle", "value": "Staff Engineer"})
	require.NoError(t, err)
	require.NotNil(t, result.Action)
	assert.Equal(t, "field_update", result.Action.Type)

	var updated domain.Job
	require.NoError(t, docs.Get(jobsCollection, "job1", &updated))
	assert.Equal(t, "Staff Engineer", updated.RoleTitle)
}

func TestRequestRefinementTool_RejectsEmptyFields(t *testing.T) {
	docs := newTestDocs(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save(jobsCollection, job.JobID, job))

	tool := &RequestRefinementTool{}
	execCtx := ExecContext{Docs: docs, UserID: "user1", JobID: "job1", Cache: map[string]any{}}
	_, err := tool.Execute(context.Background(), execCtx, map[string]any{})
	require.Error(t, err)
}

func TestAskUserTool_RequiresQuestion(t *testing.T) {
	tool := &AskUserTool{}
	_, err := tool.Execute(context.Background(), ExecContext{}, map[string]any{})
	require.Error(t, err)

	result, err := tool.Execute(context.Background(), ExecContext{}, map[string]any{"question": "What is the salary range?"})
	require.NoError(t, err)
	assert.Equal(t, "ask", result.Status)
}

func TestSelectChannelTool_MarksChannelSelectedAndReturnsAction(t *testing.T) {
	docs := newTestDocs(t)
	doc := domain.ChannelRecommendations{
		JobID: "job1",
		Recommendations: []domain.ChannelRecommendation{
			{Channel: "indeed", Reason: "high volume", ExpectedCPA: 12.5},
			{Channel: "linkedin", Reason: "senior roles", ExpectedCPA: 30},
		},
	}
	require.NoError(t, docs.Save("jobChannelRecommendations", "job1", &doc))

	tool := &SelectChannelTool{}
	execCtx := ExecContext{Docs: docs, UserID: "user1", JobID: "job1", Cache: map[string]any{}}
	result, err := tool.Execute(context.Background(), execCtx, map[string]any{"channel": "linkedin"})
	require.NoError(t, err)
	require.NotNil(t, result.Action)
	assert.Equal(t, "channel_recommendation_update", result.Action.Type)

	var updated domain.ChannelRecommendations
	require.NoError(t, docs.Get("jobChannelRecommendations", "job1", &updated))
	assert.False(t, updated.Recommendations[0].Selected)
	assert.True(t, updated.Recommendations[1].Selected)
}

func TestSelectChannelTool_RejectsUnknownChannel(t *testing.T) {
	docs := newTestDocs(t)
	doc := domain.ChannelRecommendations{
		JobID:           "job1",
		Recommendations: []domain.ChannelRecommendation{{Channel: "indeed"}},
	}
	require.NoError(t, docs.Save("jobChannelRecommendations", "job1", &doc))

	tool := &SelectChannelTool{}
	execCtx := ExecContext{Docs: docs, UserID: "user1", JobID: "job1", Cache: map[string]any{}}
	_, err := tool.Execute(context.Background(), execCtx, map[string]any{"channel": "ziprecruiter"})
	require.Error(t, err)
}

func TestUpdateAssetTool_AppliesContentEditAndReturnsAction(t *testing.T) {
	docs := newTestDocs(t)
	assetID := domain.AssetKey("job1", "feed_post", "linkedin")
	asset := domain.AssetRecord{
		AssetID:      assetID,
		JobID:        "job1",
		FormatID:     "feed_post",
		ChannelID:    "linkedin",
		ArtifactType: domain.ArtifactTypeText,
		Content:      domain.AssetContent{Text: "original copy"},
	}
	require.NoError(t, docs.Save(assetsCollection, assetID, &asset))

	tool := &UpdateAssetTool{}
	execCtx := ExecContext{Docs: docs, UserID: "user1", JobID: "job1", Cache: map[string]any{}}
	result, err := tool.Execute(context.Background(), execCtx, map[string]any{
		"formatId": "feed_post", "channelId": "linkedin", "text": "revised copy",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Action)
	assert.Equal(t, "asset_update", result.Action.Type)

	var updated domain.AssetRecord
	require.NoError(t, docs.Get(assetsCollection, assetID, &updated))
	assert.Equal(t, "revised copy", updated.Content.Text)
}

func TestUpdateAssetTool_RejectsEmptyEdit(t *testing.T) {
	docs := newTestDocs(t)
	assetID := domain.AssetKey("job1", "feed_post", "linkedin")
	require.NoError(t, docs.Save(assetsCollection, assetID, &domain.AssetRecord{AssetID: assetID}))

	tool := &UpdateAssetTool{}
	execCtx := ExecContext{Docs: docs, UserID: "user1", JobID: "job1", Cache: map[string]any{}}
	_, err := tool.Execute(context.Background(), execCtx, map[string]any{"formatId": "feed_post", "channelId": "linkedin"})
	require.Error(t, err)
}

func TestProvider_RejectsToolOutsideStage(t *testing.T) {
	provider := NewProvider([]string{"get_job"})
	_, err := provider.Get("request_refinement")
	require.Error(t, err)

	_, err = provider.Get("get_job")
	require.NoError(t, err)
}
