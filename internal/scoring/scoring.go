// Package scoring implements the pure, unit-testable scoring and tug-delta
// functions of spec §4.5. Grounded on the teacher's scoreSubmission (which
// resolved base points with a zero-fallback default) generalized into the
// ruleset-driven speed bonus and streak-multiplied tug magnitude the trivia
// spec requires, and on the "Scoring as pure functions" design note (§9).
package scoring

import (
	"math"

	"ropequiz/internal/domain"
)

// ComputePoints returns the points awarded for a correct answer (spec §4.5):
//
//	base = ruleset.PointsPerCorrect, falling back to the question instance's
//	       recorded base points when the ruleset value is zero.
//	speedBonus = floor(base * 0.5 * max(0, 1 - responseTimeMs/timeLimitMs))
//	             when PointsForSpeed is enabled, else 0.
//	total = base + speedBonus
func ComputePoints(instanceBasePoints int, responseTimeMs, timeLimitMs int64, ruleset domain.Ruleset) int {
	base := ruleset.PointsPerCorrect
	if base == 0 {
		base = instanceBasePoints
	}
	if !ruleset.PointsForSpeed || timeLimitMs <= 0 {
		return base
	}
	frac := 1 - float64(responseTimeMs)/float64(timeLimitMs)
	if frac < 0 {
		frac = 0
	}
	speedBonus := int(math.Floor(float64(base) * 0.5 * frac))
	return base + speedBonus
}

// ComputeDelta returns the signed tug magnitude for a correct answer (spec
// §4.5): direction by side (left negative, right positive), magnitude
// points/10, multiplied by StreakMultiplier once newStreak reaches
// StreakThreshold and StreakBonus is enabled. The multiplier applies to
// magnitude, not to points (spec §9 pinned choice).
func ComputeDelta(side domain.Side, points int, newStreak int, ruleset domain.Ruleset) float64 {
	magnitude := float64(points) / 10
	if ruleset.StreakBonus && ruleset.StreakThreshold > 0 && newStreak >= ruleset.StreakThreshold {
		// Multiply before dividing so 12 points at ×1.5 is exactly 1.8.
		magnitude = float64(points) * ruleset.StreakMultiplier / 10
	}
	if side == domain.SideLeft {
		return -magnitude
	}
	return magnitude
}

// ApplyStreak increments the answering team's streak and resets every other
// team's current streak to 0 while preserving their max (spec §4.5).
func ApplyStreak(streaks map[string]domain.Streak, teamID string) map[string]domain.Streak {
	out := make(map[string]domain.Streak, len(streaks))
	for id, s := range streaks {
		out[id] = s
	}
	for id, s := range out {
		if id == teamID {
			continue
		}
		s.Current = 0
		out[id] = s
	}
	s := out[teamID]
	s.Current++
	if s.Current > s.Max {
		s.Max = s.Current
	}
	out[teamID] = s
	return out
}

// ManualDelta clamps a teacher-issued manual adjustment to [-100,100] and
// reports the effective delta after clamping position (spec §4.5, pinned by
// §8 scenario 6: "report effective delta").
func ManualDelta(currentPosition, requested float64) (effectiveDelta, newPosition float64) {
	if requested > 100 {
		requested = 100
	}
	if requested < -100 {
		requested = -100
	}
	newPosition = domain.ClampPosition(currentPosition + requested)
	effectiveDelta = newPosition - currentPosition
	return effectiveDelta, newPosition
}

// SideForDelta attributes a manual adjustment to the side it favors: left
// for negative, right for positive, per spec §9's pinned resolution of the
// "manual-adjust team attribution" open question. delta == 0 is
// implementation-defined; this implementation attributes it to the right
// side's team, matching the source's teams[delta>0 ? 1 : 0] indexing when
// delta is exactly zero.
func SideForDelta(delta float64) domain.Side {
	if delta < 0 {
		return domain.SideLeft
	}
	return domain.SideRight
}
