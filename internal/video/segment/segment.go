// Package segment implements the Segment Planner (C10): it assigns a
// manifest's storyboard shots to a fixed number of render segments so the
// Render Controller can submit them in order.
package segment

import "orchestrator/internal/domain"

// Plan is one segment's assigned shots, in storyboard order.
type Plan struct {
	Index int
	Shots []domain.Shot
}

// Assign distributes shots across numSegments render segments:
//
//   - segment 0 gets every hook-phase shot, or the first share of the
//     middle shots if the storyboard has no hook shots.
//   - the last segment gets every cta-phase shot, or the last share of the
//     middle shots if the storyboard has no cta shots.
//   - remaining middle segments split the middle shots floor(n/segments)
//     each, with the remainder distributed to the earlier segments.
//
// numSegments must be >= 1; Assign clamps it to at least 1.
func Assign(shots []domain.Shot, numSegments int) []Plan {
	if numSegments < 1 {
		numSegments = 1
	}

	var hook, middle, cta []domain.Shot
	for _, s := range shots {
		switch domain.NormalizePhase(s.Phase) {
		case domain.PhaseHook:
			hook = append(hook, s)
		case domain.PhaseCTA:
			cta = append(cta, s)
		default:
			middle = append(middle, s)
		}
	}

	plans := make([]Plan, numSegments)
	for i := range plans {
		plans[i] = Plan{Index: i}
	}

	if numSegments == 1 {
		plans[0].Shots = append(append(append(plans[0].Shots, hook...), middle...), cta...)
		return plans
	}

	middleSegments := numSegments - 2
	if middleSegments < 0 {
		middleSegments = 0
	}

	rest := middle
	needsFirst := len(hook) == 0
	needsLast := len(cta) == 0

	var firstShare, lastShare []domain.Shot
	if needsFirst {
		share := borrowShare(len(rest), middleSegments, needsLast)
		firstShare, rest = rest[:share], rest[share:]
	}
	if needsLast {
		share := borrowShare(len(rest), middleSegments, false)
		lastShare, rest = rest[len(rest)-share:], rest[:len(rest)-share]
	}

	if len(hook) > 0 {
		plans[0].Shots = hook
	} else {
		plans[0].Shots = firstShare
	}

	lastIdx := numSegments - 1
	if len(cta) > 0 {
		plans[lastIdx].Shots = cta
	} else {
		plans[lastIdx].Shots = lastShare
	}

	if middleSegments == 0 {
		return plans
	}

	base := len(rest) / middleSegments
	remainder := len(rest) % middleSegments
	offset := 0
	for i := 0; i < middleSegments; i++ {
		count := base
		if i < remainder {
			count++
		}
		plans[i+1].Shots = rest[offset : offset+count]
		offset += count
	}

	return plans
}

// borrowShare sizes a hook/cta end's borrow from the remaining middle
// shots. With interior segments to feed, it takes roughly a third, leaving
// the rest for them; with none, it takes everything not already claimed by
// the other end (bisecting when both ends need a share).
func borrowShare(remaining, middleSegments int, otherEndAlsoBorrows bool) int {
	if remaining == 0 {
		return 0
	}
	if middleSegments == 0 {
		if otherEndAlsoBorrows {
			return (remaining + 1) / 2
		}
		return remaining
	}
	share := remaining / 3
	if share == 0 {
		share = 1
	}
	return share
}

// Durations returns the per-segment second totals implied by plans, for
// building a domain.RenderPlan.
func Durations(plans []Plan) []domain.RenderSegmentPlan {
	out := make([]domain.RenderSegmentPlan, len(plans))
	for i, p := range plans {
		total := 0
		for _, s := range p.Shots {
			total += s.DurationSeconds
		}
		out[i] = domain.RenderSegmentPlan{Seconds: total}
	}
	return out
}
