package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoItem_HappyPathTransitions(t *testing.T) {
	now := time.Now().UTC()
	video := NewVideoItem("vid-1", "job-1", "tiktok", now)

	require.NoError(t, video.TransitionTo(VideoStateGenerating, now, nil))
	require.NoError(t, video.TransitionTo(VideoStateExtending, now, nil))
	require.NoError(t, video.TransitionTo(VideoStateExtending, now, nil))
	require.NoError(t, video.TransitionTo(VideoStateReady, now, nil))
	require.NoError(t, video.TransitionTo(VideoStateApproved, now, nil))
	require.NoError(t, video.TransitionTo(VideoStatePublished, now, nil))

	assert.Equal(t, VideoStatePublished, video.Status)
	assert.Len(t, video.StateMachine.History, 6)
}

func TestVideoItem_RejectsSkippingGenerating(t *testing.T) {
	now := time.Now().UTC()
	video := NewVideoItem("vid-1", "job-1", "tiktok", now)

	err := video.TransitionTo(VideoStateReady, now, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestVideoItem_FailedCanRetryToGenerating(t *testing.T) {
	now := time.Now().UTC()
	video := NewVideoItem("vid-1", "job-1", "tiktok", now)
	require.NoError(t, video.TransitionTo(VideoStateGenerating, now, nil))
	require.NoError(t, video.TransitionTo(VideoStateFailed, now, map[string]any{"segment": 1}))

	require.NoError(t, video.TransitionTo(VideoStateGenerating, now, nil))
	assert.Equal(t, VideoStateGenerating, video.Status)
}

func TestVideoItem_ArchivedIsTerminal(t *testing.T) {
	now := time.Now().UTC()
	video := NewVideoItem("vid-1", "job-1", "tiktok", now)
	require.NoError(t, video.TransitionTo(VideoStateArchived, now, nil))

	err := video.TransitionTo(VideoStateGenerating, now, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNormalizePhase(t *testing.T) {
	cases := map[string]Phase{
		"HOOK":          PhaseHook,
		"Opening":       PhaseHook,
		"PROOF":         PhaseMiddle,
		"body":          PhaseMiddle,
		"details":       PhaseMiddle,
		"Call to Action": PhaseCTA,
		"CLOSE":         PhaseCTA,
		"unknown_label": PhaseMiddle,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizePhase(raw), "raw=%s", raw)
	}
}
