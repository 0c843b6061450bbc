package engine

import (
	"context"
	"time"

	"ropequiz/internal/domain"
	"ropequiz/internal/scoring"
)

// doInit implements Control API init() (spec §4.8) and the lobby->ready
// transition (spec §4.3). It is only ever invoked as a job.
func (e *Engine) doInit(ctx context.Context, tenantID string, questionIDs []string, rulesetID string) error {
	if e.initialized {
		return domain.ErrSessionAlreadyExists
	}

	ruleset := domain.DefaultRuleset()
	if rulesetID != "" {
		loaded, err := e.storage.LoadRuleset(ctx, rulesetID)
		if err != nil {
			return err
		}
		ruleset = loaded
	}

	teams, students, err := e.storage.LoadRoster(ctx, e.SessionID)
	if err != nil {
		return err
	}

	state := domain.NewRuntimeState(e.SessionID, tenantID, questionIDs, ruleset.ID)
	state.Teams = teams
	state.Students = students
	for _, t := range teams {
		state.Scores[t.ID] = 0
		state.Streaks[t.ID] = domain.Streak{}
	}
	state.Phase = domain.PhaseReady

	e.state = state
	e.ruleset = ruleset
	e.initialized = true
	e.bumpSnapshot()
	if e.metrics != nil {
		e.metrics.SessionInitialized()
	}
	return e.persist(ctx)
}

// doTeacherNextQuestion implements "Advance or end game" (spec §4.4): from
// ready it starts the first question; from active_question it ends the
// current question (transition to reveal, per §4.3's
// active_question->reveal edge); from reveal it starts the next question
// or, if none remain, ends the game. Any other phase, paused included, is
// rejected with ErrInvalidState.
func (e *Engine) doTeacherNextQuestion(ctx context.Context) error {
	switch e.state.Phase {
	case domain.PhaseReady:
		return e.startQuestion(ctx, 0)
	case domain.PhaseActiveQuestion:
		return e.endCurrentQuestion(ctx, domain.PhaseReveal, true)
	case domain.PhaseReveal:
		next := e.state.CurrentQuestionIndex + 1
		if next >= len(e.state.QuestionIDs) {
			return e.doEndGame(ctx)
		}
		return e.startQuestion(ctx, next)
	default:
		return domain.ErrInvalidState
	}
}

func (e *Engine) startQuestion(ctx context.Context, index int) error {
	if !domain.CanTransition(e.state.Phase, domain.CmdTeacherNextQuestion) {
		return domain.ErrInvalidState
	}
	if index >= len(e.state.QuestionIDs) {
		return domain.ErrNoQuestionsLeft
	}

	q, err := e.storage.LoadQuestion(ctx, e.state.QuestionIDs[index])
	if err != nil {
		return err
	}

	timeLimit := e.ruleset.TimeLimitMs
	if timeLimit == 0 {
		timeLimit = q.TimeLimitMs
	}
	basePoints := e.ruleset.PointsPerCorrect
	if basePoints == 0 {
		basePoints = q.BasePoints
	}

	instance := domain.QuestionInstance{
		ID:            e.newID(),
		QuestionID:    q.ID,
		Index:         index,
		Text:          q.Text,
		Answers:       q.Answers,
		CorrectAnswer: q.CorrectAnswer,
		TimeLimitMs:   timeLimit,
		BasePoints:    basePoints,
		StartedAt:     e.clock(),
	}
	if err := e.storage.InsertQuestionInstance(ctx, e.SessionID, instance); err != nil {
		return err
	}

	e.liveAttempts = make(map[string]domain.Attempt)
	e.state.CurrentQuestion = &instance
	e.state.CurrentQuestionIndex = index
	previous := e.state.Phase
	e.state.Phase = domain.PhaseActiveQuestion
	if e.state.StartedAt == nil {
		startedAt := e.clock()
		e.state.StartedAt = &startedAt
	}
	e.bumpSnapshot()
	if err := e.persist(ctx); err != nil {
		return err
	}

	e.scheduleDeadline(time.Duration(timeLimit) * time.Millisecond)
	e.broadcastQuestion(previous)
	if e.metrics != nil {
		e.metrics.QuestionStarted()
	}
	return nil
}

// doAdmitAnswer implements "Admit answer" (spec §4.4). Idempotent per
// (instance, student): the in-memory liveAttempts map is checked before any
// persistence, satisfying §7's idempotent-retry requirement.
func (e *Engine) doAdmitAnswer(ctx context.Context, studentID, instanceID, choiceID string) error {
	if e.state.Phase != domain.PhaseActiveQuestion || e.state.CurrentQuestion == nil {
		return domain.ErrInvalidState
	}
	current := e.state.CurrentQuestion
	if current.ID != instanceID {
		return domain.ErrUnknownInstance
	}
	if _, answered := e.liveAttempts[studentID]; answered {
		return domain.ErrAlreadyAnswered
	}

	responseTime := e.clock().Sub(current.StartedAt).Milliseconds()
	if responseTime > current.TimeLimitMs {
		return domain.ErrQuestionExpired
	}

	var chosen *domain.Answer
	for i := range current.Answers {
		if current.Answers[i].ID == choiceID {
			chosen = &current.Answers[i]
			break
		}
	}
	if chosen == nil {
		return domain.ErrInvalidAnswer
	}

	student := e.findStudent(studentID)
	correct := choiceID == current.CorrectAnswer

	points := 0
	if correct {
		points = scoring.ComputePoints(current.BasePoints, responseTime, current.TimeLimitMs, e.ruleset)
	}

	attempt := domain.Attempt{
		ID:                 e.newID(),
		QuestionInstanceID: current.ID,
		StudentID:          studentID,
		AnswerID:           choiceID,
		Correct:            correct,
		ResponseTimeMs:     responseTime,
		PointsAwarded:      points,
		Timestamp:          e.clock(),
	}
	if student != nil {
		attempt.TeamID = student.TeamID
	}
	if err := e.storage.InsertAttempt(ctx, e.SessionID, attempt); err != nil {
		return err
	}
	e.liveAttempts[studentID] = attempt

	var delta float64
	newPosition := e.state.Position
	var teamID *string
	if correct && student != nil && student.TeamID != nil {
		teamID = student.TeamID
		team := e.findTeam(*teamID)
		if team != nil {
			e.state.Streaks = scoring.ApplyStreak(e.state.Streaks, *teamID)
			newStreak := e.state.Streaks[*teamID].Current
			delta = scoring.ComputeDelta(team.Side, points, newStreak, e.ruleset)
			newPosition = domain.ClampPosition(e.state.Position + delta)

			evt := domain.StrengthEvent{
				ID:          e.newID(),
				TeamID:      teamID,
				Delta:       delta,
				Reason:      domain.ReasonCorrectAnswer,
				NewPosition: newPosition,
				TriggeredBy: studentID,
				Timestamp:   e.clock(),
			}
			if err := e.storage.InsertStrengthEvent(ctx, e.SessionID, evt); err != nil {
				return err
			}
			e.state.Scores[*teamID] += points
			e.state.Position = newPosition
			e.state.LastEventID = evt.ID
		}
	}

	e.bumpSnapshot()
	if err := e.persist(ctx); err != nil {
		return err
	}

	if teamID != nil {
		e.broadcaster.BroadcastAll(e.event(domain.MsgTugUpdate, domain.TugUpdatePayload{
			Position:    newPosition,
			Delta:       delta,
			Reason:      domain.ReasonCorrectAnswer,
			TeamID:      teamID,
			LastEventID: e.state.LastEventID,
		}))
	}

	if conn, ok := e.Registry.Get(studentID); ok {
		e.broadcaster.Send(conn, e.event(domain.MsgAnswerResult, domain.AnswerResultPayload{
			Correct:         correct,
			CorrectAnswerID: current.CorrectAnswer,
			Delta:           delta,
			NewPosition:     newPosition,
			PointsAwarded:   points,
			ResponseTimeMs:  responseTime,
		}))
	}
	if e.metrics != nil {
		e.metrics.AnswerAdmitted(correct)
	}
	return nil
}

// endCurrentQuestion implements "End question" (spec §4.4). Idempotent: for a
// question with EndedAt already set (or no current question) it only sets
// the phase to toPhase, with no persistence or broadcast. toPhase and
// doBroadcast let teacher_end_game reuse this without surfacing an
// intermediate reveal broadcast (spec §4.4 "end_game ends the active
// question (if any)").
func (e *Engine) endCurrentQuestion(ctx context.Context, toPhase domain.Phase, doBroadcast bool) error {
	current := e.state.CurrentQuestion
	if current == nil || current.EndedAt != nil {
		e.state.Phase = toPhase
		return nil
	}

	ended := e.clock()
	current.EndedAt = &ended
	if err := e.storage.EndQuestionInstance(ctx, current.ID, ended); err != nil {
		return err
	}
	e.cancelDeadline()

	stats := e.computeStats()
	e.state.Phase = toPhase
	e.bumpSnapshot()
	if err := e.persist(ctx); err != nil {
		return err
	}

	if doBroadcast {
		e.broadcaster.BroadcastAll(e.event(domain.MsgQuestionReveal, domain.QuestionRevealPayload{
			QuestionInstanceID: current.ID,
			CorrectAnswerID:    current.CorrectAnswer,
			Stats:              stats,
		}))
		e.broadcaster.BroadcastAll(e.event(domain.MsgPhaseChange, domain.PhaseChangePayload{
			Phase:         toPhase,
			PreviousPhase: domain.PhaseActiveQuestion,
		}))
	}
	if e.metrics != nil {
		e.metrics.QuestionEnded(stats.TotalAttempts, stats.CorrectAttempts)
	}
	return nil
}

func (e *Engine) computeStats() domain.QuestionStats {
	stats := domain.QuestionStats{TeamStats: make(map[string]domain.TeamStats)}
	type acc struct {
		attempts, correct int
		totalMs           int64
	}
	byTeam := make(map[string]*acc)
	for _, a := range e.liveAttempts {
		stats.TotalAttempts++
		if a.Correct {
			stats.CorrectAttempts++
		}
		if a.TeamID == nil {
			continue
		}
		entry, ok := byTeam[*a.TeamID]
		if !ok {
			entry = &acc{}
			byTeam[*a.TeamID] = entry
		}
		entry.attempts++
		entry.totalMs += a.ResponseTimeMs
		if a.Correct {
			entry.correct++
		}
	}
	for teamID, a := range byTeam {
		avg := float64(0)
		if a.attempts > 0 {
			avg = float64(a.totalMs) / float64(a.attempts)
		}
		stats.TeamStats[teamID] = domain.TeamStats{
			Attempts:          a.attempts,
			Correct:           a.correct,
			AverageResponseMs: avg,
		}
	}
	return stats
}

// doTeacherPause freezes the question deadline (spec §4.3, §5 "Timer
// semantics"), preserving remaining time.
func (e *Engine) doTeacherPause(ctx context.Context) error {
	if !domain.CanTransition(e.state.Phase, domain.CmdTeacherPause) {
		return domain.ErrInvalidState
	}
	remaining := time.Until(e.deadlineAt)
	if remaining < 0 {
		remaining = 0
	}
	e.cancelDeadline()
	e.state.PauseRemainingMs = remaining.Milliseconds()
	previous := e.state.Phase
	e.state.Phase = domain.PhasePaused
	e.bumpSnapshot()
	if err := e.persist(ctx); err != nil {
		return err
	}
	e.broadcaster.BroadcastAll(e.event(domain.MsgPhaseChange, domain.PhaseChangePayload{Phase: e.state.Phase, PreviousPhase: previous}))
	return nil
}

// doTeacherResume reschedules the deadline with the preserved remaining
// time (spec §4.3, §8 "pause/resume preserves remaining deadline time").
func (e *Engine) doTeacherResume(ctx context.Context) error {
	if !domain.CanTransition(e.state.Phase, domain.CmdTeacherResume) {
		return domain.ErrInvalidState
	}
	previous := e.state.Phase
	e.state.Phase = domain.PhaseActiveQuestion
	remaining := time.Duration(e.state.PauseRemainingMs) * time.Millisecond
	e.state.PauseRemainingMs = 0
	e.bumpSnapshot()
	if err := e.persist(ctx); err != nil {
		return err
	}
	e.scheduleDeadline(remaining)
	e.broadcaster.BroadcastAll(e.event(domain.MsgPhaseChange, domain.PhaseChangePayload{Phase: e.state.Phase, PreviousPhase: previous}))
	return nil
}

// doEndGame implements end_game (spec §4.4): ends the active question
// silently, persists final session status, transitions to completed, and
// broadcasts GAME_END.
func (e *Engine) doEndGame(ctx context.Context) error {
	if e.state.Phase == domain.PhaseCompleted {
		return domain.ErrSessionEnded
	}
	if e.state.CurrentQuestion != nil && e.state.CurrentQuestion.EndedAt == nil {
		if err := e.endCurrentQuestion(ctx, domain.PhaseCompleted, false); err != nil {
			return err
		}
	}
	ended := e.clock()
	if err := e.storage.UpdateSessionOnEnd(ctx, e.SessionID, e.state.Position, ended); err != nil {
		return err
	}
	e.state.Phase = domain.PhaseCompleted
	e.bumpSnapshot()
	if err := e.persist(ctx); err != nil {
		return err
	}

	duration := int64(0)
	if e.state.StartedAt != nil {
		duration = ended.Sub(*e.state.StartedAt).Milliseconds()
	}
	e.broadcaster.BroadcastAll(e.event(domain.MsgGameEnd, domain.GameEndPayload{
		Winner:        domain.Winner(e.state.Teams, e.state.Position),
		FinalPosition: e.state.Position,
		Summary: domain.GameSummary{
			DurationMs:     duration,
			TotalQuestions: len(e.state.QuestionIDs),
		},
	}))
	if e.metrics != nil {
		e.metrics.SessionCompleted()
	}
	return nil
}

// doManualAdjust implements teacher_manual_adjust (spec §4.5, §8 scenario
// 6): bypasses scoring, clamps the requested delta and the resulting
// position, and reports the effective (post-clamp) delta.
func (e *Engine) doManualAdjust(ctx context.Context, requested float64, reason, triggeredBy string) error {
	if e.state.Phase == domain.PhaseLobby || e.state.Phase == domain.PhaseCompleted {
		return domain.ErrInvalidState
	}
	effective, newPosition := scoring.ManualDelta(e.state.Position, requested)
	side := scoring.SideForDelta(requested)
	team := e.findTeamBySide(side)
	var teamID *string
	if team != nil {
		teamID = &team.ID
	}

	evt := domain.StrengthEvent{
		ID:          e.newID(),
		TeamID:      teamID,
		Delta:       effective,
		Reason:      domain.ReasonManualAdjust,
		NewPosition: newPosition,
		TriggeredBy: triggeredBy,
		Timestamp:   e.clock(),
	}
	if err := e.storage.InsertStrengthEvent(ctx, e.SessionID, evt); err != nil {
		return err
	}

	e.state.Position = newPosition
	e.state.LastEventID = evt.ID
	e.bumpSnapshot()
	if err := e.persist(ctx); err != nil {
		return err
	}

	e.broadcaster.BroadcastAll(e.event(domain.MsgTugUpdate, domain.TugUpdatePayload{
		Position:    newPosition,
		Delta:       effective,
		Reason:      domain.ReasonManualAdjust,
		TeamID:      teamID,
		LastEventID: evt.ID,
	}))
	return nil
}

// doJoinTeam implements join_team (spec §4.6).
func (e *Engine) doJoinTeam(ctx context.Context, studentID, teamID string) error {
	if e.findTeam(teamID) == nil {
		return domain.ErrUnknownTeam
	}
	student := e.findStudent(studentID)
	if student == nil {
		return domain.ErrNotAuthorized
	}
	student.TeamID = &teamID
	if err := e.storage.UpdateStudentTeam(ctx, studentID, &teamID); err != nil {
		return err
	}
	e.bumpSnapshot()
	if err := e.persist(ctx); err != nil {
		return err
	}
	e.broadcaster.BroadcastAll(e.event(domain.MsgRosterUpdate, domain.RosterUpdatePayload{
		Teams:        e.state.Teams,
		Students:     e.state.Students,
		TotalPlayers: e.Registry.Count(),
	}))
	return nil
}

// doKick implements teacher_kick_player (spec §4.6): marks the student
// kicked, clears team membership, and returns the student so the caller can
// close their connection with PLAYER_KICKED (spec §4.6, §7).
func (e *Engine) doKick(ctx context.Context, studentID, reason string) (*domain.Student, error) {
	student := e.findStudent(studentID)
	if student == nil {
		return nil, domain.ErrNotAuthorized
	}
	student.Status = domain.StudentKicked
	student.TeamID = nil
	student.LastSeen = e.clock()
	if err := e.storage.UpdateStudentTeam(ctx, studentID, nil); err != nil {
		return nil, err
	}
	if err := e.storage.UpdateStudentConnection(ctx, studentID, domain.StudentKicked, student.LastSeen); err != nil {
		return nil, err
	}
	e.bumpSnapshot()
	if err := e.persist(ctx); err != nil {
		return nil, err
	}
	e.broadcaster.BroadcastAll(e.event(domain.MsgRosterUpdate, domain.RosterUpdatePayload{
		Teams:        e.state.Teams,
		Students:     e.state.Students,
		TotalPlayers: e.Registry.Count(),
	}))
	copied := *student
	return &copied, nil
}

// onDeadline fires when the question timer elapses (spec §5 "Timer
// semantics"): no later than time_limit_ms after started_at, end-question
// is invoked unless a pause intervened (in which case the timer is already
// canceled and this never fires).
func (e *Engine) onDeadline(ctx context.Context) {
	if e.state.Phase != domain.PhaseActiveQuestion {
		return
	}
	if err := e.endCurrentQuestion(ctx, domain.PhaseReveal, true); err != nil {
		e.log.Error("timer-driven end_question failed", "err", err)
	}
}

func (e *Engine) scheduleDeadline(d time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
	}
	if d < 0 {
		d = 0
	}
	e.deadlineAt = e.clock().Add(d)
	e.timer = time.NewTimer(d)
}

func (e *Engine) cancelDeadline() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) findStudent(id string) *domain.Student {
	for i := range e.state.Students {
		if e.state.Students[i].ID == id {
			return &e.state.Students[i]
		}
	}
	return nil
}

func (e *Engine) findTeam(id string) *domain.Team {
	for i := range e.state.Teams {
		if e.state.Teams[i].ID == id {
			return &e.state.Teams[i]
		}
	}
	return nil
}

func (e *Engine) findTeamBySide(side domain.Side) *domain.Team {
	for i := range e.state.Teams {
		if e.state.Teams[i].Side == side {
			return &e.state.Teams[i]
		}
	}
	return nil
}

func (e *Engine) event(msgType string, payload interface{}) domain.OutboundMessage {
	return domain.OutboundMessage{Type: msgType, Payload: payload, Timestamp: e.clock().UnixMilli()}
}

func (e *Engine) broadcastQuestion(previous domain.Phase) {
	current := e.state.CurrentQuestion
	if current == nil {
		return
	}
	payload := domain.QuestionPayload{
		InstanceID:     current.ID,
		QuestionIndex:  current.Index,
		TotalQuestions: len(e.state.QuestionIDs),
		StartsAt:       current.StartedAt.UnixMilli(),
		TimeLimitMs:    current.TimeLimitMs,
	}
	payload.Question.ID = current.QuestionID
	payload.Question.Text = current.Text
	payload.Question.Answers = current.Answers
	payload.Question.TimeLimitMs = current.TimeLimitMs
	payload.Question.Points = current.BasePoints
	e.broadcaster.BroadcastAll(e.event(domain.MsgQuestion, payload))
	e.broadcaster.BroadcastAll(e.event(domain.MsgPhaseChange, domain.PhaseChangePayload{
		Phase:         domain.PhaseActiveQuestion,
		PreviousPhase: previous,
	}))
}
