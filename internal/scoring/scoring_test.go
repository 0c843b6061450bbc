package scoring_test

import (
	"testing"

	"ropequiz/internal/domain"
	"ropequiz/internal/scoring"
)

func testRuleset() domain.Ruleset {
	return domain.Ruleset{
		PointsPerCorrect: 10,
		PointsForSpeed:   true,
		StreakBonus:      true,
		StreakThreshold:  3,
		StreakMultiplier: 1.5,
		TimeLimitMs:      30000,
	}
}

func TestComputePoints_FastAnswer(t *testing.T) {
	// spec §8 scenario 1: response_time=3000ms -> 10 + floor(10*0.5*(1-3000/30000)) = 14
	points := scoring.ComputePoints(10, 3000, 30000, testRuleset())
	if points != 14 {
		t.Fatalf("expected 14 points, got %d", points)
	}
}

func TestComputePoints_ZeroResponseTime(t *testing.T) {
	// a 0ms response yields the full 0.5*base speed bonus (spec §8 boundary).
	points := scoring.ComputePoints(10, 0, 30000, testRuleset())
	if points != 15 {
		t.Fatalf("expected 15 points, got %d", points)
	}
}

func TestComputePoints_AtOrPastLimit(t *testing.T) {
	r := testRuleset()
	if got := scoring.ComputePoints(10, 30000, 30000, r); got != 10 {
		t.Fatalf("expected base-only 10 at exact limit, got %d", got)
	}
	if got := scoring.ComputePoints(10, 45000, 30000, r); got != 10 {
		t.Fatalf("expected base-only 10 past limit, got %d", got)
	}
}

func TestComputePoints_SpeedDisabled(t *testing.T) {
	r := testRuleset()
	r.PointsForSpeed = false
	if got := scoring.ComputePoints(10, 0, 30000, r); got != 10 {
		t.Fatalf("expected strictly base points with speed disabled, got %d", got)
	}
}

func TestComputePoints_FallsBackToInstanceBase(t *testing.T) {
	r := testRuleset()
	r.PointsPerCorrect = 0
	if got := scoring.ComputePoints(7, 30000, 30000, r); got != 7 {
		t.Fatalf("expected fallback to instance base 7, got %d", got)
	}
}

func TestComputeDelta_BelowThreshold(t *testing.T) {
	d := scoring.ComputeDelta(domain.SideRight, 12, 2, testRuleset())
	if d != 1.2 {
		t.Fatalf("expected magnitude 1.2, got %v", d)
	}
}

func TestComputeDelta_StreakThreshold(t *testing.T) {
	// spec §8 scenario 2: third consecutive correct, streak==3 -> magnitude*1.5
	d := scoring.ComputeDelta(domain.SideRight, 12, 3, testRuleset())
	if d != 1.8 {
		t.Fatalf("expected magnitude 1.8 at streak threshold, got %v", d)
	}
}

func TestComputeDelta_LeftIsNegative(t *testing.T) {
	d := scoring.ComputeDelta(domain.SideLeft, 10, 1, testRuleset())
	if d != -1.0 {
		t.Fatalf("expected -1.0 for left side, got %v", d)
	}
}

func TestApplyStreak_ResetsOthersPreservesMax(t *testing.T) {
	streaks := map[string]domain.Streak{
		"L": {Current: 2, Max: 4},
		"R": {Current: 0, Max: 1},
	}
	out := scoring.ApplyStreak(streaks, "R")
	if out["R"].Current != 1 || out["R"].Max != 1 {
		t.Fatalf("expected R current=1 max=1, got %+v", out["R"])
	}
	if out["L"].Current != 0 || out["L"].Max != 4 {
		t.Fatalf("expected L reset to current=0 with max preserved, got %+v", out["L"])
	}
}

func TestManualDelta_ClampsAtUpperBound(t *testing.T) {
	// spec §8 scenario 6: position=95, delta=+20 -> clamp to 100, effective delta +5
	effective, newPos := scoring.ManualDelta(95, 20)
	if newPos != 100 {
		t.Fatalf("expected clamped position 100, got %v", newPos)
	}
	if effective != 5 {
		t.Fatalf("expected effective delta 5, got %v", effective)
	}
}

func TestManualDelta_ClampsRequestRange(t *testing.T) {
	effective, newPos := scoring.ManualDelta(50, 500)
	if newPos != 100 || effective != 50 {
		t.Fatalf("expected request clamp to 100 before applying, got effective=%v newPos=%v", effective, newPos)
	}
}

func TestSideForDelta(t *testing.T) {
	if scoring.SideForDelta(-1) != domain.SideLeft {
		t.Fatalf("expected left for negative delta")
	}
	if scoring.SideForDelta(1) != domain.SideRight {
		t.Fatalf("expected right for positive delta")
	}
	if scoring.SideForDelta(0) != domain.SideRight {
		t.Fatalf("expected right for zero delta per implementation-defined choice")
	}
}
