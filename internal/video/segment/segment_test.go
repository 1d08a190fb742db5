package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/domain"
)

func shotSet() []domain.Shot {
	return []domain.Shot{
		{Phase: "HOOK", DurationSeconds: 3},
		{Phase: "body", DurationSeconds: 4},
		{Phase: "details", DurationSeconds: 4},
		{Phase: "PROOF", DurationSeconds: 4},
		{Phase: "OFFER", DurationSeconds: 4},
		{Phase: "CTA", DurationSeconds: 3},
	}
}

func TestAssign_HookAndCTAIsolatedWhenPresent(t *testing.T) {
	plans := Assign(shotSet(), 3)
	require.Len(t, plans, 3)

	assert.Equal(t, "HOOK", plans[0].Shots[0].Phase)
	for _, s := range plans[0].Shots {
		assert.Equal(t, domain.PhaseHook, domain.NormalizePhase(s.Phase))
	}

	last := plans[len(plans)-1]
	for _, s := range last.Shots {
		assert.Equal(t, domain.PhaseCTA, domain.NormalizePhase(s.Phase))
	}

	middleCount := 0
	for _, p := range plans[1 : len(plans)-1] {
		middleCount += len(p.Shots)
	}
	assert.Equal(t, 4, middleCount)
}

func TestAssign_NoHookOrCTABorrowsFromMiddle(t *testing.T) {
	shots := []domain.Shot{
		{Phase: "body", DurationSeconds: 2},
		{Phase: "body", DurationSeconds: 2},
		{Phase: "body", DurationSeconds: 2},
		{Phase: "body", DurationSeconds: 2},
		{Phase: "body", DurationSeconds: 2},
		{Phase: "body", DurationSeconds: 2},
	}
	plans := Assign(shots, 3)
	require.Len(t, plans, 3)
	assert.NotEmpty(t, plans[0].Shots)
	assert.NotEmpty(t, plans[2].Shots)

	total := 0
	for _, p := range plans {
		total += len(p.Shots)
	}
	assert.Equal(t, len(shots), total)
}

func TestAssign_SingleSegmentKeepsOrder(t *testing.T) {
	shots := shotSet()
	plans := Assign(shots, 1)
	require.Len(t, plans, 1)
	assert.Equal(t, shots, plans[0].Shots)
}

func TestAssign_RemainderGoesToEarlierSegments(t *testing.T) {
	middle := []domain.Shot{
		{Phase: "body", DurationSeconds: 1},
		{Phase: "body", DurationSeconds: 1},
		{Phase: "body", DurationSeconds: 1},
		{Phase: "body", DurationSeconds: 1},
		{Phase: "body", DurationSeconds: 1},
	}
	shots := append([]domain.Shot{{Phase: "HOOK", DurationSeconds: 3}}, middle...)
	shots = append(shots, domain.Shot{Phase: "CTA", DurationSeconds: 3})

	plans := Assign(shots, 4)
	require.Len(t, plans, 4)
	assert.Len(t, plans[1].Shots, 3)
	assert.Len(t, plans[2].Shots, 2)
}

func TestDurations_SumsSecondsPerSegment(t *testing.T) {
	plans := Assign(shotSet(), 3)
	durations := Durations(plans)
	require.Len(t, durations, 3)
	total := 0
	for _, d := range durations {
		total += d.Seconds
	}
	assert.Equal(t, 22, total)
}
