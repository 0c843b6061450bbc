package engine

import (
	"context"
	"time"

	"ropequiz/internal/domain"
)

// Rehydrate loads any persisted RuntimeState for this session and recomputes
// the question deadline from it (spec §5 "On process hibernation and
// rehydration, the engine must recompute remaining time from the persisted
// started_at"). Call once, before Run. Returns found=false for a session
// that has never been initialized.
func (e *Engine) Rehydrate(ctx context.Context) (found bool, err error) {
	state, ok, err := e.store.Get(ctx, e.SessionID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	ruleset, err := e.loadRulesetForRehydrate(ctx, state.RulesetID)
	if err != nil {
		return false, err
	}

	e.state = state
	e.ruleset = ruleset
	e.initialized = true
	e.liveAttempts = make(map[string]domain.Attempt)

	switch state.Phase {
	case domain.PhaseActiveQuestion:
		e.rehydrateActiveQuestion(ctx)
	case domain.PhasePaused:
		// Deadline stays frozen until teacher_resume; nothing to schedule.
	}
	return true, nil
}

// loadRulesetForRehydrate mirrors doInit's resolution: a session initialized
// without an explicit ruleset id carries domain.DefaultRuleset().ID and has
// no corresponding row in the rulesets table, so rehydrating it must
// reconstruct the default in-process rather than round-trip to storage.
func (e *Engine) loadRulesetForRehydrate(ctx context.Context, rulesetID string) (domain.Ruleset, error) {
	def := domain.DefaultRuleset()
	if rulesetID == "" || rulesetID == def.ID {
		return def, nil
	}
	return e.storage.LoadRuleset(ctx, rulesetID)
}

func (e *Engine) rehydrateActiveQuestion(ctx context.Context) {
	current := e.state.CurrentQuestion
	if current == nil {
		return
	}
	limit := time.Duration(current.TimeLimitMs) * time.Millisecond
	elapsed := e.clock().Sub(current.StartedAt)
	remaining := limit - elapsed
	if remaining <= 0 {
		e.onDeadline(ctx)
		return
	}
	e.scheduleDeadline(remaining)
}
