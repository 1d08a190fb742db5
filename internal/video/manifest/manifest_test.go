package manifest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/config"
	"orchestrator/internal/domain"
	"orchestrator/internal/ledger"
	"orchestrator/internal/llm"
	"orchestrator/internal/store"
)

const manifestJSON = `{
  "storyboard": [
    {"phase": "hook", "visual": "office", "onScreenText": "Hiring now", "voiceOver": "We're hiring", "durationSeconds": 3},
    {"phase": "body", "visual": "team", "onScreenText": "Join us", "voiceOver": "Great team", "durationSeconds": 5},
    {"phase": "cta", "visual": "logo", "onScreenText": "Apply today", "voiceOver": "Apply now", "durationSeconds": 3}
  ],
  "compliance": {"flags": [], "checklist": ["no protected-class language"]},
  "caption": {"text": "We're hiring!", "hashtags": ["#hiring"]}
}`

type stubClient struct{ content string }

func (s stubClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{Content: s.content, PromptTokens: 10, CompletionTokens: 10}, nil
}
func (s stubClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, nil
}
func (s stubClient) GetDefaultConfig() config.Model { return config.Model{} }
func (s stubClient) GetModelName() string           { return "stub" }

type stubFactory struct{ client llm.LLMClient }

func (f stubFactory) CreateClient(modelName string, requireToolCall bool) (llm.LLMClient, error) {
	return f.client, nil
}

func newTestBuilder(t *testing.T, content string) (*Builder, *store.Documents) {
	t.Helper()
	require.NoError(t, store.Reset())
	require.NoError(t, store.Initialize(t.TempDir()+"/test.db"))
	t.Cleanup(func() { _ = store.Close() })

	docs := store.Store()
	led := ledger.New(docs, config.DefaultCreditConfig())
	require.NoError(t, docs.Save("users", "user1", &struct {
		UserID  string  `json:"userId"`
		Balance float64 `json:"balance"`
	}{UserID: "user1", Balance: 1000}))

	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save("jobs", job.JobID, job))

	return New(docs, led, stubFactory{client: stubClient{content: content}}), docs
}

func TestBuilder_CreateBuildsManifestAndPersists(t *testing.T) {
	builder, docs := newTestBuilder(t, manifestJSON)

	item, err := builder.Create(context.Background(), "vid1", "job1", "tiktok", "user1")
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStatePlanned, item.Status)
	require.Len(t, item.ActiveManifest.Storyboard, 3)
	assert.Equal(t, domain.RenderStrategySingle, item.ActiveManifest.RenderPlan.Strategy)

	var saved domain.VideoItem
	require.NoError(t, docs.Get(videosCollection, "vid1", &saved))
	assert.Equal(t, "We're hiring!", saved.ActiveManifest.Caption.Text)
}

func TestBuilder_RegeneratePreservesLifecycleState(t *testing.T) {
	builder, docs := newTestBuilder(t, manifestJSON)
	item, err := builder.Create(context.Background(), "vid1", "job1", "tiktok", "user1")
	require.NoError(t, err)
	require.NoError(t, item.TransitionTo(domain.VideoStateGenerating, time.Now().UTC(), nil))
	require.NoError(t, docs.Save(videosCollection, item.VideoID, item))

	regenerated, err := builder.Regenerate(context.Background(), "vid1", "user1")
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStateGenerating, regenerated.Status)
}

func TestBuilder_UpdateCaptionDoesNotTouchStoryboard(t *testing.T) {
	builder, _ := newTestBuilder(t, manifestJSON)
	item, err := builder.Create(context.Background(), "vid1", "job1", "tiktok", "user1")
	require.NoError(t, err)

	updated, err := builder.UpdateCaption("vid1", domain.Caption{Text: "New caption", Hashtags: []string{"#jobs"}})
	require.NoError(t, err)
	assert.Equal(t, "New caption", updated.ActiveManifest.Caption.Text)
	assert.Equal(t, item.ActiveManifest.Storyboard, updated.ActiveManifest.Storyboard)
}
