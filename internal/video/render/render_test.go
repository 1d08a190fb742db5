package render

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/config"
	"orchestrator/internal/domain"
	"orchestrator/internal/ledger"
	"orchestrator/internal/store"
)

type stubProvider struct {
	submitted []SegmentRequest
	// statuses[providerJobID] is popped one status per Poll call.
	statuses map[string][]SegmentStatus
	calls    map[string]int
}

func newStubProvider() *stubProvider {
	return &stubProvider{statuses: map[string][]SegmentStatus{}, calls: map[string]int{}}
}

func (p *stubProvider) SubmitSegment(ctx context.Context, req SegmentRequest) (string, error) {
	p.submitted = append(p.submitted, req)
	jobID := "job-" + string(rune('a'+req.Index))
	return jobID, nil
}

func (p *stubProvider) Poll(ctx context.Context, providerJobID string) (SegmentStatus, error) {
	seq := p.statuses[providerJobID]
	i := p.calls[providerJobID]
	if i >= len(seq) {
		i = len(seq) - 1
	}
	p.calls[providerJobID]++
	return seq[i], nil
}

func (p *stubProvider) Stitch(ctx context.Context, segmentURLs []string) (string, error) {
	return segmentURLs[len(segmentURLs)-1] + "-stitched", nil
}

func newTestController(t *testing.T, provider Provider) (*Controller, *store.Documents) {
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

	return New(docs, led, provider), docs
}

func twoSegmentItem() *domain.VideoItem {
	item := domain.NewVideoItem("vid1", "job1", "tiktok", time.Now().UTC())
	item.ActiveManifest = domain.Manifest{
		Storyboard: []domain.Shot{
			{Phase: "hook", Visual: "office", DurationSeconds: 10},
			{Phase: "cta", Visual: "logo", DurationSeconds: 10},
		},
		RenderPlan: domain.RenderPlan{
			Strategy: domain.RenderStrategyMultiExtend,
			Segments: []domain.RenderSegmentPlan{{Seconds: 10}, {Seconds: 10}},
		},
	}
	return item
}

func threeSegmentItem() *domain.VideoItem {
	item := domain.NewVideoItem("vid1", "job1", "tiktok", time.Now().UTC())
	item.ActiveManifest = domain.Manifest{
		Storyboard: []domain.Shot{
			{Phase: "hook", Visual: "office", DurationSeconds: 6},
			{Phase: "middle", Visual: "team", DurationSeconds: 6},
			{Phase: "middle", Visual: "desk", DurationSeconds: 6},
			{Phase: "cta", Visual: "logo", DurationSeconds: 6},
		},
		RenderPlan: domain.RenderPlan{
			Strategy: domain.RenderStrategyMultiExtend,
			Segments: []domain.RenderSegmentPlan{{Seconds: 8}, {Seconds: 8}, {Seconds: 8}},
		},
	}
	return item
}

func TestSegmentPlans_GroupsShotsByPhaseNotDuration(t *testing.T) {
	item := threeSegmentItem()
	plans := segmentPlans(item.ActiveManifest)

	require.Len(t, plans, 3)
	require.Len(t, plans[0].shots, 1)
	assert.Equal(t, "office", plans[0].shots[0].Visual)

	require.Len(t, plans[2].shots, 1)
	assert.Equal(t, "logo", plans[2].shots[0].Visual)

	require.Len(t, plans[1].shots, 2)
	assert.Equal(t, "team", plans[1].shots[0].Visual)
	assert.Equal(t, "desk", plans[1].shots[1].Visual)
}

func TestController_TriggerSubmitsFirstSegment(t *testing.T) {
	provider := newStubProvider()
	ctrl, docs := newTestController(t, provider)
	item := twoSegmentItem()
	require.NoError(t, docs.Save(videosCollection, item.VideoID, item))

	updated, err := ctrl.Trigger(context.Background(), "vid1", "user1")
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStateGenerating, updated.Status)
	require.Len(t, provider.submitted, 1)
	assert.Equal(t, 0, provider.submitted[0].Index)
	assert.Equal(t, domain.SegmentStatusPredicting, updated.RenderTask.Segments[0].Status)
}

func TestController_TriggerIsIdempotentWhileGenerating(t *testing.T) {
	provider := newStubProvider()
	ctrl, docs := newTestController(t, provider)
	item := twoSegmentItem()
	require.NoError(t, docs.Save(videosCollection, item.VideoID, item))

	_, err := ctrl.Trigger(context.Background(), "vid1", "user1")
	require.NoError(t, err)
	_, err = ctrl.Trigger(context.Background(), "vid1", "user1")
	require.NoError(t, err)
	assert.Len(t, provider.submitted, 1)
}

func TestController_PollAdvancesThroughSegmentsToReady(t *testing.T) {
	provider := newStubProvider()
	ctrl, docs := newTestController(t, provider)
	item := twoSegmentItem()
	require.NoError(t, docs.Save(videosCollection, item.VideoID, item))

	_, err := ctrl.Trigger(context.Background(), "vid1", "user1")
	require.NoError(t, err)

	provider.statuses["job-a"] = []SegmentStatus{{Status: domain.SegmentStatusReady, VideoURL: "https://cdn/seg0.mp4"}}
	updated, err := ctrl.Poll(context.Background(), "vid1", "user1")
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStateExtending, updated.Status)
	require.Len(t, provider.submitted, 2)
	assert.Equal(t, 1, provider.submitted[1].Index)
	assert.NotEmpty(t, provider.submitted[1].Recap)

	provider.statuses["job-b"] = []SegmentStatus{{Status: domain.SegmentStatusReady, VideoURL: "https://cdn/seg1.mp4"}}
	final, err := ctrl.Poll(context.Background(), "vid1", "user1")
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStateReady, final.Status)
	require.NotNil(t, final.RenderTask.Result)
	assert.Equal(t, "https://cdn/seg1.mp4-stitched", final.RenderTask.Result.VideoURL)
	assert.Equal(t, 20, final.GenerationMetrics.SecondsGenerated)
}

func TestController_PollFailureMarksVideoFailedAndRetryRestartsSameSegment(t *testing.T) {
	provider := newStubProvider()
	ctrl, docs := newTestController(t, provider)
	item := twoSegmentItem()
	require.NoError(t, docs.Save(videosCollection, item.VideoID, item))

	_, err := ctrl.Trigger(context.Background(), "vid1", "user1")
	require.NoError(t, err)

	provider.statuses["job-a"] = []SegmentStatus{{Status: domain.SegmentStatusFailed, FailReason: "provider timeout"}}
	failed, err := ctrl.Poll(context.Background(), "vid1", "user1")
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStateFailed, failed.Status)
	assert.Equal(t, "provider timeout", failed.RenderTask.Segments[0].FailReason)

	retried, err := ctrl.Trigger(context.Background(), "vid1", "user1")
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStateGenerating, retried.Status)
	assert.Equal(t, domain.SegmentStatusPending, retried.RenderTask.Segments[1].Status)
	require.Len(t, provider.submitted, 2)
	assert.Equal(t, 0, provider.submitted[1].Index)
}

func TestController_ApprovePublish(t *testing.T) {
	provider := newStubProvider()
	ctrl, docs := newTestController(t, provider)
	item := twoSegmentItem()
	item.StateMachine = domain.NewStateMachine(domain.VideoStateReady)
	item.Status = domain.VideoStateReady
	require.NoError(t, docs.Save(videosCollection, item.VideoID, item))

	approved, err := ctrl.Approve("vid1")
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStateApproved, approved.Status)

	published, err := ctrl.Publish("vid1")
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStatePublished, published.Status)
}
