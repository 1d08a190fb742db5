// Package render implements the Render Controller (C11): it submits a
// video item's render-plan segments to a generation provider in order,
// polls them to completion, stitches the results, and drives the Video
// Item's state machine through generating/extending/ready/failed.
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"orchestrator/internal/domain"
	"orchestrator/internal/ledger"
	"orchestrator/internal/logx"
	"orchestrator/internal/store"
	"orchestrator/internal/video/segment"
)

const videosCollection = "videos"

// recapMaxChars bounds the description of the prior segment's final frames
// that opens an extension segment's recap to 150 characters; the shot list
// that follows it is not counted.
const recapMaxChars = 150

// SegmentRequest is what the Controller submits for one render segment.
type SegmentRequest struct {
	Index   int
	Shots   []domain.Shot
	Seconds int
	// Recap is non-empty for every segment after the first: a short
	// description of the prior segment's final frames plus its shot list,
	// so the provider extends from where the previous segment left off.
	Recap string
}

// SegmentStatus is one poll's result for an in-flight segment.
type SegmentStatus struct {
	Status     string // mirrors domain.SegmentStatus*
	VideoURL   string
	FailReason string
}

// Provider is the video generation adapter surface the Controller drives.
// A real provider submits to a text/image-to-video model (e.g. the
// google.golang.org/genai Veo integration); SubmitSegment returns
// immediately with a provider job ID that Poll tracks.
type Provider interface {
	SubmitSegment(ctx context.Context, req SegmentRequest) (providerJobID string, err error)
	Poll(ctx context.Context, providerJobID string) (SegmentStatus, error)
	// Stitch concatenates completed segment video URLs into one final
	// video URL. Providers that render a continuous clip via extension
	// calls may simply return the last segment's URL.
	Stitch(ctx context.Context, segmentURLs []string) (videoURL string, err error)
}

// Controller owns the render lifecycle for video items.
type Controller struct {
	docs     *store.Documents
	ledger   *ledger.Ledger
	provider Provider
	logger   *logx.Logger
}

// New returns a Controller wired to its dependencies.
func New(docs *store.Documents, led *ledger.Ledger, provider Provider) *Controller {
	return &Controller{docs: docs, ledger: led, provider: provider, logger: logx.NewLogger("video-render")}
}

// Trigger submits videoID's render plan for the first time (or retries a
// failed render from its first failed segment), moving the item to
// "generating". It is idempotent: calling it again while already
// generating is a no-op.
func (c *Controller) Trigger(ctx context.Context, videoID, userID string) (*domain.VideoItem, error) {
	var item domain.VideoItem
	if err := c.docs.Get(videosCollection, videoID, &item); err != nil {
		return nil, fmt.Errorf("load video %s: %w", videoID, err)
	}

	switch item.Status {
	case domain.VideoStateGenerating, domain.VideoStateExtending:
		return &item, nil
	case domain.VideoStateFailed:
		if err := c.retryFromFirstFailure(ctx, &item, userID); err != nil {
			return nil, err
		}
	case domain.VideoStatePlanned:
		if err := c.startFresh(ctx, &item, userID); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("cannot trigger render from state %q", item.Status)
	}

	if err := c.docs.Save(videosCollection, item.VideoID, &item); err != nil {
		return nil, fmt.Errorf("save triggered render: %w", err)
	}
	return &item, nil
}

func (c *Controller) startFresh(ctx context.Context, item *domain.VideoItem, userID string) error {
	plan := item.ActiveManifest.RenderPlan
	segments := make([]domain.SegmentTask, len(plan.Segments))
	for i := range plan.Segments {
		segments[i] = domain.SegmentTask{Index: i, Status: domain.SegmentStatusPending}
	}
	item.RenderTask = domain.RenderTask{Segments: segments}

	if err := item.TransitionTo(domain.VideoStateGenerating, time.Now().UTC(), nil); err != nil {
		return fmt.Errorf("transition to generating: %w", err)
	}
	return c.submitSegment(ctx, item, 0, userID)
}

func (c *Controller) retryFromFirstFailure(ctx context.Context, item *domain.VideoItem, userID string) error {
	firstFailed := -1
	for i, seg := range item.RenderTask.Segments {
		if seg.Status == domain.SegmentStatusFailed {
			firstFailed = i
			break
		}
	}
	if firstFailed == -1 {
		firstFailed = 0
	}
	for i := firstFailed; i < len(item.RenderTask.Segments); i++ {
		item.RenderTask.Segments[i] = domain.SegmentTask{Index: i, Status: domain.SegmentStatusPending}
	}

	if err := item.TransitionTo(domain.VideoStateGenerating, time.Now().UTC(), nil); err != nil {
		return fmt.Errorf("transition to generating on retry: %w", err)
	}
	return c.submitSegment(ctx, item, firstFailed, userID)
}

// submitSegment submits segment index to the provider. Segment 0 is the
// initial render call; every later segment is an *extension* carrying a
// recap of the previous segment.
func (c *Controller) submitSegment(ctx context.Context, item *domain.VideoItem, index int, userID string) error {
	plans := segmentPlans(item.ActiveManifest)
	if index >= len(plans) {
		return fmt.Errorf("segment index %d out of range (%d segments)", index, len(plans))
	}

	req := SegmentRequest{
		Index:   index,
		Shots:   plans[index].shots,
		Seconds: plans[index].seconds,
	}
	if index > 0 {
		req.Recap = buildRecap(plans[index-1].shots)
	}

	reservation, err := c.ledger.Reserve(userID, c.ledger.EstimateVideoCredits(float64(req.Seconds)))
	if err != nil {
		return fmt.Errorf("reserve render credits: %w", err)
	}

	providerJobID, err := c.provider.SubmitSegment(ctx, req)
	if err != nil {
		_ = c.ledger.Refund(reservation)
		item.RenderTask.Segments[index] = domain.SegmentTask{Index: index, Status: domain.SegmentStatusFailed, FailReason: err.Error()}
		if transErr := item.TransitionTo(domain.VideoStateFailed, time.Now().UTC(), map[string]any{"segmentIndex": index}); transErr != nil {
			return fmt.Errorf("transition to failed: %w", transErr)
		}
		return nil
	}
	if commitErr := c.ledger.Commit(reservation, c.ledger.EstimateVideoCredits(float64(req.Seconds))); commitErr != nil {
		c.logger.Error("commit render credits: %v", commitErr)
	}

	item.RenderTask.Segments[index] = domain.SegmentTask{Index: index, Status: domain.SegmentStatusPredicting, ProviderJobID: providerJobID}
	return nil
}

// Poll advances videoID by checking its current in-flight segment's
// provider status. The Render Controller is the sole writer to a
// segment's status while the provider reports predicting/fetching. When a
// segment completes, Poll submits the next segment as an extension, or
// stitches and marks the item ready once the last segment completes.
func (c *Controller) Poll(ctx context.Context, videoID, userID string) (*domain.VideoItem, error) {
	var item domain.VideoItem
	if err := c.docs.Get(videosCollection, videoID, &item); err != nil {
		return nil, fmt.Errorf("load video %s: %w", videoID, err)
	}
	if item.Status != domain.VideoStateGenerating && item.Status != domain.VideoStateExtending {
		return &item, nil
	}

	index := inFlightSegment(item.RenderTask.Segments)
	if index == -1 {
		return &item, nil
	}

	seg := item.RenderTask.Segments[index]
	status, err := c.provider.Poll(ctx, seg.ProviderJobID)
	if err != nil {
		return nil, fmt.Errorf("poll segment %d: %w", index, err)
	}

	switch status.Status {
	case domain.SegmentStatusFailed:
		item.RenderTask.Segments[index] = domain.SegmentTask{Index: index, Status: domain.SegmentStatusFailed, FailReason: status.FailReason}
		if err := item.TransitionTo(domain.VideoStateFailed, time.Now().UTC(), map[string]any{"segmentIndex": index, "reason": status.FailReason}); err != nil {
			return nil, fmt.Errorf("transition to failed: %w", err)
		}
	case domain.SegmentStatusReady:
		item.RenderTask.Segments[index] = domain.SegmentTask{Index: index, Status: domain.SegmentStatusReady, ProviderJobID: seg.ProviderJobID, VideoURL: status.VideoURL}
		if index+1 < len(item.RenderTask.Segments) {
			if item.Status != domain.VideoStateExtending {
				if err := item.TransitionTo(domain.VideoStateExtending, time.Now().UTC(), nil); err != nil {
					return nil, fmt.Errorf("transition to extending: %w", err)
				}
			}
			if err := c.submitSegment(ctx, &item, index+1, userID); err != nil {
				return nil, err
			}
		} else {
			if err := c.finish(ctx, &item); err != nil {
				return nil, err
			}
		}
	default:
		item.RenderTask.Segments[index].Status = status.Status
	}

	if err := c.docs.Save(videosCollection, item.VideoID, &item); err != nil {
		return nil, fmt.Errorf("save poll result: %w", err)
	}
	return &item, nil
}

func (c *Controller) finish(ctx context.Context, item *domain.VideoItem) error {
	urls := make([]string, len(item.RenderTask.Segments))
	for i, seg := range item.RenderTask.Segments {
		urls[i] = seg.VideoURL
	}
	stitched, err := c.provider.Stitch(ctx, urls)
	if err != nil {
		return fmt.Errorf("stitch segments: %w", err)
	}

	seconds := 0
	for _, s := range item.ActiveManifest.RenderPlan.Segments {
		seconds += s.Seconds
	}
	cost := c.ledger.EstimateVideoCredits(float64(seconds))

	item.RenderTask.Result = &domain.RenderResult{VideoURL: stitched, SynthIDWatermark: true, CostEstimateUSD: cost}
	item.GenerationMetrics = domain.GenerationMetrics{SecondsGenerated: seconds, CostEstimateUSD: cost}
	return item.TransitionTo(domain.VideoStateReady, time.Now().UTC(), nil)
}

// Approve moves a ready video item to approved.
func (c *Controller) Approve(videoID string) (*domain.VideoItem, error) {
	return c.transition(videoID, domain.VideoStateApproved)
}

// Publish moves an approved video item to published.
func (c *Controller) Publish(videoID string) (*domain.VideoItem, error) {
	return c.transition(videoID, domain.VideoStatePublished)
}

func (c *Controller) transition(videoID, newState string) (*domain.VideoItem, error) {
	var item domain.VideoItem
	if err := c.docs.Get(videosCollection, videoID, &item); err != nil {
		return nil, fmt.Errorf("load video %s: %w", videoID, err)
	}
	if err := item.TransitionTo(newState, time.Now().UTC(), nil); err != nil {
		return nil, err
	}
	if err := c.docs.Save(videosCollection, item.VideoID, &item); err != nil {
		return nil, fmt.Errorf("save transition: %w", err)
	}
	return &item, nil
}

func inFlightSegment(segments []domain.SegmentTask) int {
	for _, seg := range segments {
		if seg.Status == domain.SegmentStatusPredicting || seg.Status == domain.SegmentStatusFetching {
			return seg.Index
		}
	}
	return -1
}

type segmentPlan struct {
	shots   []domain.Shot
	seconds int
}

func segmentPlans(m domain.Manifest) []segmentPlan {
	out := make([]segmentPlan, len(m.RenderPlan.Segments))
	for i, seg := range m.RenderPlan.Segments {
		out[i] = segmentPlan{seconds: seg.Seconds}
	}
	// The render plan only carries durations; re-derive the shot groupings
	// from the storyboard using the same phase-based assignment
	// manifest.buildRenderPlan used to produce the segment count in the
	// first place, so hook/cta shots land in the segments they were
	// planned into.
	assigned := segment.Assign(m.Storyboard, len(out))
	for i := range out {
		if i < len(assigned) {
			out[i].shots = assigned[i].Shots
		}
	}
	return out
}

func buildRecap(priorShots []domain.Shot) string {
	var visuals []string
	for i := len(priorShots) - 1; i >= 0 && len(visuals) < 3; i-- {
		if priorShots[i].Visual != "" {
			visuals = append([]string{priorShots[i].Visual}, visuals...)
		}
	}
	recap := strings.Join(visuals, "; ")

	var shotList strings.Builder
	for i, s := range priorShots {
		fmt.Fprintf(&shotList, "%d. [%s] %s\n", i+1, s.Phase, s.Visual)
	}

	full := recap
	if len(full) > recapMaxChars {
		full = full[:recapMaxChars]
	}
	return full + "\n" + shotList.String()
}
