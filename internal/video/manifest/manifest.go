// Package manifest implements the Video Manifest Builder (C9): it turns a
// job and channel into a storyboard, compliance review, caption, and
// render plan via a single structured LLM call.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orchestrator/internal/config"
	"orchestrator/internal/domain"
	"orchestrator/internal/ledger"
	"orchestrator/internal/llm"
	"orchestrator/internal/logx"
	"orchestrator/internal/store"
	"orchestrator/internal/video/segment"
)

const videosCollection = "videos"

// minSegmentSeconds is the single-segment threshold: storyboards of at most
// this many seconds render as one segment; longer ones are split into
// ceil(total/minSegmentSeconds) multi_extend segments, whose lengths follow
// the phase-based shot assignment and may be shorter than this.
const minSegmentSeconds = 20

// ClientFactory builds provider clients for a model name.
type ClientFactory interface {
	CreateClient(modelName string, requireToolCall bool) (llm.LLMClient, error)
}

// Builder owns the manifest create/regenerate operations.
type Builder struct {
	docs    *store.Documents
	ledger  *ledger.Ledger
	factory ClientFactory
	logger  *logx.Logger
}

// New returns a Builder wired to its dependencies.
func New(docs *store.Documents, led *ledger.Ledger, factory ClientFactory) *Builder {
	return &Builder{docs: docs, ledger: led, factory: factory, logger: logx.NewLogger("video-manifest")}
}

// Create builds a brand-new VideoItem in the "planned" state for jobID and
// channelID, with a freshly generated manifest.
func (b *Builder) Create(ctx context.Context, videoID, jobID, channelID, userID string) (*domain.VideoItem, error) {
	item := domain.NewVideoItem(videoID, jobID, channelID, time.Now().UTC())
	manifest, err := b.generate(ctx, jobID, channelID, userID)
	if err != nil {
		return nil, err
	}
	item.ActiveManifest = *manifest
	if err := b.docs.Save(videosCollection, item.VideoID, item); err != nil {
		return nil, fmt.Errorf("save video item: %w", err)
	}
	return item, nil
}

// Regenerate rebuilds videoID's manifest wholesale, without disturbing its
// lifecycle state: create and regenerate both produce a manifest, but
// regenerate never itself advances the state machine.
func (b *Builder) Regenerate(ctx context.Context, videoID, userID string) (*domain.VideoItem, error) {
	var item domain.VideoItem
	if err := b.docs.Get(videosCollection, videoID, &item); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("video %s: %w", videoID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("load video %s: %w", videoID, err)
	}

	manifest, err := b.generate(ctx, item.JobID, item.ChannelID, userID)
	if err != nil {
		return nil, err
	}
	item.ActiveManifest = *manifest
	item.UpdatedAt = time.Now().UTC()
	if err := b.docs.Save(videosCollection, item.VideoID, &item); err != nil {
		return nil, fmt.Errorf("save regenerated video item: %w", err)
	}
	return &item, nil
}

// UpdateCaption edits videoID's caption atomically, without touching the
// rest of the manifest or triggering a re-render.
func (b *Builder) UpdateCaption(videoID string, caption domain.Caption) (*domain.VideoItem, error) {
	var item domain.VideoItem
	if err := b.docs.Get(videosCollection, videoID, &item); err != nil {
		return nil, fmt.Errorf("load video %s: %w", videoID, err)
	}
	item.ActiveManifest.Caption = caption
	item.UpdatedAt = time.Now().UTC()
	if err := b.docs.Save(videosCollection, videoID, &item); err != nil {
		return nil, fmt.Errorf("save caption update: %w", err)
	}
	return &item, nil
}

type manifestPayload struct {
	Storyboard []domain.Shot     `json:"storyboard"`
	Compliance domain.Compliance `json:"compliance"`
	Caption    domain.Caption    `json:"caption"`
}

func (b *Builder) generate(ctx context.Context, jobID, channelID, userID string) (*domain.Manifest, error) {
	var job domain.Job
	if err := b.docs.Get("jobs", jobID, &job); err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}

	var refinement domain.RefinementDocument
	hasRefinement := b.docs.Get("jobRefinements", jobID, &refinement) == nil

	modelName, err := config.GetTaskFamilyModel(config.TaskFamilyVideoScript)
	if err != nil {
		return nil, fmt.Errorf("resolve video script model: %w", err)
	}
	client, err := b.factory.CreateClient(modelName, false)
	if err != nil {
		return nil, fmt.Errorf("create video script client: %w", err)
	}

	jobJSON, _ := json.Marshal(job)
	var refinementJSON []byte
	if hasRefinement {
		refinementJSON, _ = json.Marshal(refinement.RefinedJob)
	}

	systemPrompt := "You write a 3-5 shot short-form video storyboard for a recruiting job ad, with a hook shot, one or more " +
		"middle shots, and a closing CTA shot. Respond with JSON: {storyboard: [{phase, visual, onScreenText, voiceOver, " +
		"durationSeconds}], compliance: {flags: [{severity, message}], checklist: [string]}, caption: {text, hashtags: [string]}}."
	userPrompt := fmt.Sprintf("Channel: %s\n\nJob: %s\n\nRefined copy: %s", channelID, string(jobJSON), string(refinementJSON))

	reservation, err := b.ledger.Reserve(userID, b.ledger.EstimateTextCredits(modelName, 800, 800))
	if err != nil {
		return nil, fmt.Errorf("reserve manifest credits: %w", err)
	}

	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(systemPrompt),
			llm.NewUserMessage(userPrompt),
		},
		WantsStructuredOutput: true,
	})
	if err != nil {
		_ = b.ledger.Refund(reservation)
		return nil, fmt.Errorf("generate manifest: %w", err)
	}
	if commitErr := b.ledger.Commit(reservation, b.ledger.EstimateTextCredits(modelName, resp.PromptTokens, resp.CompletionTokens)); commitErr != nil {
		b.logger.Error("commit manifest credits: %v", commitErr)
	}

	var payload manifestPayload
	if err := json.Unmarshal([]byte(resp.Content), &payload); err != nil {
		return nil, fmt.Errorf("parse manifest response: %w", err)
	}

	return &domain.Manifest{
		Storyboard: payload.Storyboard,
		Compliance: payload.Compliance,
		Caption:    payload.Caption,
		RenderPlan: buildRenderPlan(payload.Storyboard),
	}, nil
}

// buildRenderPlan decides single vs multi_extend and assigns segments from
// the storyboard's total duration.
func buildRenderPlan(shots []domain.Shot) domain.RenderPlan {
	total := 0
	for _, s := range shots {
		total += s.DurationSeconds
	}
	if total <= minSegmentSeconds {
		return domain.RenderPlan{
			Strategy: domain.RenderStrategySingle,
			Segments: []domain.RenderSegmentPlan{{Seconds: total}},
		}
	}

	numSegments := (total + minSegmentSeconds - 1) / minSegmentSeconds
	plans := segment.Assign(shots, numSegments)
	return domain.RenderPlan{
		Strategy: domain.RenderStrategyMultiExtend,
		Segments: segment.Durations(plans),
	}
}
