package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orchestrator/internal/config"
	"orchestrator/internal/domain"
	"orchestrator/internal/llm"
	"orchestrator/internal/store"
)

// loadVideoAndJob loads the Video Item named by the task context's videoId
// and its owning Job, authorizing the caller against the job.
func loadVideoAndJob(docs *store.Documents, videoID, callerUserID string) (domain.VideoItem, domain.Job, error) {
	var video domain.VideoItem
	if err := docs.Get(CollectionVideos, videoID, &video); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return video, domain.Job{}, NewTaskError(KindNotFound, "video %s not found", videoID)
		}
		return video, domain.Job{}, fmt.Errorf("load video: %w", err)
	}
	var job domain.Job
	if err := docs.Get(CollectionJobs, video.JobID, &job); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return video, job, NewTaskError(KindNotFound, "job %s not found", video.JobID)
		}
		return video, job, fmt.Errorf("load job: %w", err)
	}
	if job.UserID != callerUserID {
		return video, job, NewTaskError(KindForbidden, "caller does not own job %s", video.JobID)
	}
	return video, job, nil
}

// VideoStoryboardHandler regenerates just the storyboard shots of a video
// item's active manifest, leaving compliance/caption/renderPlan untouched.
type VideoStoryboardHandler struct {
	Docs *store.Documents
}

func (h *VideoStoryboardHandler) TaskFamily() string { return config.TaskFamilyVideoScript }

func (h *VideoStoryboardHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
	videoID := stringFromRaw(tc.Raw, "videoId")
	if videoID == "" {
		return EnrichResult{}, NewTaskError(KindInvalidContext, "video_storyboard requires videoId")
	}
	video, job, err := loadVideoAndJob(h.Docs, videoID, caller.UserID)
	if err != nil {
		return EnrichResult{}, err
	}
	jobJSON, _ := json.Marshal(job)
	return EnrichResult{
		SystemPrompt: "You write a short-form video storyboard: 3-5 shots, each with phase, visual, onScreenText, voiceOver, durationSeconds. Respond with JSON: {storyboard: [...]}.",
		UserPrompt:   fmt.Sprintf("Channel: %s\n\nJob: %s", video.ChannelID, string(jobJSON)),
	}, nil
}

func (h *VideoStoryboardHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	var parsed struct {
		Storyboard []domain.Shot `json:"storyboard"`
	}
	if err := json.Unmarshal([]byte(raw.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse storyboard: %w", err)
	}
	return parsed.Storyboard, nil
}

func (h *VideoStoryboardHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	shots, ok := payload.([]domain.Shot)
	if !ok {
		return nil, fmt.Errorf("unexpected storyboard payload type %T", payload)
	}
	videoID := stringFromRaw(tc.Raw, "videoId")
	var video domain.VideoItem
	if err := docs.Get(CollectionVideos, videoID, &video); err != nil {
		return nil, fmt.Errorf("reload video for storyboard persist: %w", err)
	}
	video.ActiveManifest.Storyboard = shots
	video.UpdatedAt = time.Now().UTC()
	if err := docs.Save(CollectionVideos, videoID, &video); err != nil {
		return nil, fmt.Errorf("save storyboard: %w", err)
	}
	return &video, nil
}

func (h *VideoStoryboardHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	return nil
}

// VideoCaptionHandler regenerates just the caption of a video item's
// active manifest.
type VideoCaptionHandler struct {
	Docs *store.Documents
}

func (h *VideoCaptionHandler) TaskFamily() string { return config.TaskFamilyVideoScript }

func (h *VideoCaptionHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
	videoID := stringFromRaw(tc.Raw, "videoId")
	if videoID == "" {
		return EnrichResult{}, NewTaskError(KindInvalidContext, "video_caption requires videoId")
	}
	video, _, err := loadVideoAndJob(h.Docs, videoID, caller.UserID)
	if err != nil {
		return EnrichResult{}, err
	}
	storyboardJSON, _ := json.Marshal(video.ActiveManifest.Storyboard)
	return EnrichResult{
		SystemPrompt: "You write a short-form video's on-platform caption and hashtags from its storyboard. Respond with JSON: {text, hashtags}.",
		UserPrompt:   fmt.Sprintf("Channel: %s\nStoryboard: %s", video.ChannelID, string(storyboardJSON)),
	}, nil
}

func (h *VideoCaptionHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	var caption domain.Caption
	if err := json.Unmarshal([]byte(raw.Content), &caption); err != nil {
		return nil, fmt.Errorf("parse caption: %w", err)
	}
	return caption, nil
}

func (h *VideoCaptionHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	caption, ok := payload.(domain.Caption)
	if !ok {
		return nil, fmt.Errorf("unexpected caption payload type %T", payload)
	}
	videoID := stringFromRaw(tc.Raw, "videoId")
	var video domain.VideoItem
	if err := docs.Get(CollectionVideos, videoID, &video); err != nil {
		return nil, fmt.Errorf("reload video for caption persist: %w", err)
	}
	video.ActiveManifest.Caption = caption
	video.UpdatedAt = time.Now().UTC()
	if err := docs.Save(CollectionVideos, videoID, &video); err != nil {
		return nil, fmt.Errorf("save caption: %w", err)
	}
	return &video, nil
}

func (h *VideoCaptionHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	return nil
}

// VideoComplianceHandler regenerates just the compliance review of a video
// item's active manifest.
type VideoComplianceHandler struct {
	Docs *store.Documents
}

func (h *VideoComplianceHandler) TaskFamily() string { return config.TaskFamilyVideoScript }

func (h *VideoComplianceHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
	videoID := stringFromRaw(tc.Raw, "videoId")
	if videoID == "" {
		return EnrichResult{}, NewTaskError(KindInvalidContext, "video_compliance requires videoId")
	}
	video, _, err := loadVideoAndJob(h.Docs, videoID, caller.UserID)
	if err != nil {
		return EnrichResult{}, err
	}
	storyboardJSON, _ := json.Marshal(video.ActiveManifest.Storyboard)
	return EnrichResult{
		SystemPrompt: "You review a recruiting video storyboard for compliance issues (protected-class claims, misleading pay/benefits statements) and produce a QA checklist. Respond with JSON: {flags: [{severity, message}], checklist: [...]}.",
		UserPrompt:   fmt.Sprintf("Storyboard: %s", string(storyboardJSON)),
	}, nil
}

func (h *VideoComplianceHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	var compliance domain.Compliance
	if err := json.Unmarshal([]byte(raw.Content), &compliance); err != nil {
		return nil, fmt.Errorf("parse compliance: %w", err)
	}
	return compliance, nil
}

func (h *VideoComplianceHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	compliance, ok := payload.(domain.Compliance)
	if !ok {
		return nil, fmt.Errorf("unexpected compliance payload type %T", payload)
	}
	videoID := stringFromRaw(tc.Raw, "videoId")
	var video domain.VideoItem
	if err := docs.Get(CollectionVideos, videoID, &video); err != nil {
		return nil, fmt.Errorf("reload video for compliance persist: %w", err)
	}
	video.ActiveManifest.Compliance = compliance
	video.UpdatedAt = time.Now().UTC()
	if err := docs.Save(CollectionVideos, videoID, &video); err != nil {
		return nil, fmt.Errorf("save compliance: %w", err)
	}
	return &video, nil
}

func (h *VideoComplianceHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	return nil
}
