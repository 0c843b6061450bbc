package engine

import (
	"context"

	"ropequiz/internal/domain"
)

// Init runs the Control API's init() operation (spec §4.8).
func (e *Engine) Init(ctx context.Context, tenantID string, questionIDs []string, rulesetID string) error {
	return e.Submit(ctx, func(ctx context.Context, e *Engine) error {
		return e.doInit(ctx, tenantID, questionIDs, rulesetID)
	})
}

// TeacherNextQuestion runs teacher_next_question (spec §4.4).
func (e *Engine) TeacherNextQuestion(ctx context.Context) error {
	return e.Submit(ctx, func(ctx context.Context, e *Engine) error {
		return e.doTeacherNextQuestion(ctx)
	})
}

// TeacherPause runs teacher_pause (spec §4.3).
func (e *Engine) TeacherPause(ctx context.Context) error {
	return e.Submit(ctx, func(ctx context.Context, e *Engine) error {
		return e.doTeacherPause(ctx)
	})
}

// TeacherResume runs teacher_resume (spec §4.3).
func (e *Engine) TeacherResume(ctx context.Context) error {
	return e.Submit(ctx, func(ctx context.Context, e *Engine) error {
		return e.doTeacherResume(ctx)
	})
}

// TeacherEndGame runs teacher_end_game / the Control API's end() (spec §4.4, §4.8).
func (e *Engine) TeacherEndGame(ctx context.Context) error {
	return e.Submit(ctx, func(ctx context.Context, e *Engine) error {
		return e.doEndGame(ctx)
	})
}

// TeacherManualAdjust runs teacher_manual_adjust (spec §4.5).
func (e *Engine) TeacherManualAdjust(ctx context.Context, delta float64, reason, triggeredBy string) error {
	return e.Submit(ctx, func(ctx context.Context, e *Engine) error {
		return e.doManualAdjust(ctx, delta, reason, triggeredBy)
	})
}

// JoinTeam runs join_team (spec §4.6).
func (e *Engine) JoinTeam(ctx context.Context, studentID, teamID string) error {
	return e.Submit(ctx, func(ctx context.Context, e *Engine) error {
		return e.doJoinTeam(ctx, studentID, teamID)
	})
}

// SubmitAnswer runs submit_answer (spec §4.4).
func (e *Engine) SubmitAnswer(ctx context.Context, studentID, instanceID, choiceID string) error {
	return e.Submit(ctx, func(ctx context.Context, e *Engine) error {
		return e.doAdmitAnswer(ctx, studentID, instanceID, choiceID)
	})
}

// KickPlayer runs teacher_kick_player (spec §4.6) and returns the kicked
// student so the caller (router/transport) can close their connection.
func (e *Engine) KickPlayer(ctx context.Context, studentID, reason string) (domain.Student, error) {
	return SubmitValue(ctx, e, func(ctx context.Context, e *Engine) (domain.Student, error) {
		student, err := e.doKick(ctx, studentID, reason)
		if err != nil {
			return domain.Student{}, err
		}
		return *student, nil
	})
}

// MarkDisconnected records a student's socket closing without kicking them
// (spec §4.6 "disconnect leaves team membership and score intact"); the
// connection registry drops them immediately, but the roster keeps their
// row so a reconnect resumes their team and score.
func (e *Engine) MarkDisconnected(ctx context.Context, studentID string) error {
	return e.Submit(ctx, func(ctx context.Context, e *Engine) error {
		student := e.findStudent(studentID)
		if student == nil {
			return nil
		}
		student.Status = domain.StudentDisconnected
		student.LastSeen = e.clock()
		if err := e.storage.UpdateStudentConnection(ctx, studentID, domain.StudentDisconnected, student.LastSeen); err != nil {
			return err
		}
		e.bumpSnapshot()
		return e.persist(ctx)
	})
}

// MarkConnected records a student (re)connecting (spec §4.6 "transitions
// back to connected" on reconnect) and broadcasts ROSTER_UPDATE if the set
// of connected students changed, mirroring doJoinTeam/doKick's own
// broadcast-on-roster-change pattern.
func (e *Engine) MarkConnected(ctx context.Context, studentID string) error {
	return e.Submit(ctx, func(ctx context.Context, e *Engine) error {
		student := e.findStudent(studentID)
		if student == nil {
			return nil
		}
		wasConnected := student.Status == domain.StudentConnected
		student.Status = domain.StudentConnected
		student.LastSeen = e.clock()
		if err := e.storage.UpdateStudentConnection(ctx, studentID, domain.StudentConnected, student.LastSeen); err != nil {
			return err
		}
		e.bumpSnapshot()
		if err := e.persist(ctx); err != nil {
			return err
		}
		if !wasConnected {
			e.broadcaster.BroadcastAll(e.event(domain.MsgRosterUpdate, domain.RosterUpdatePayload{
				Teams:        e.state.Teams,
				Students:     e.state.Students,
				TotalPlayers: e.Registry.Count(),
			}))
		}
		return nil
	})
}

// GetState answers the Control API's get_state and a WebSocket STATE_SNAPSHOT
// request, role-projected (spec §4.7, §4.8).
func (e *Engine) GetState(ctx context.Context, role domain.Role) (domain.GameState, error) {
	return SubmitValue(ctx, e, func(ctx context.Context, e *Engine) (domain.GameState, error) {
		if !e.initialized {
			return domain.GameState{}, domain.ErrSessionNotFound
		}
		if role == domain.RoleTeacher {
			return domain.TeacherView(e.state, len(e.liveAttempts)), nil
		}
		return domain.StudentView(e.state, len(e.liveAttempts)), nil
	})
}

// StateSnapshot answers the WebSocket STATE_SNAPSHOT message sent alongside
// WELCOME on HELLO, and on reconnect (spec §6, §7): a role-projected
// GameState tagged with the snapshot version it was read at.
func (e *Engine) StateSnapshot(ctx context.Context, role domain.Role) (domain.StateSnapshotPayload, error) {
	return SubmitValue(ctx, e, func(ctx context.Context, e *Engine) (domain.StateSnapshotPayload, error) {
		if !e.initialized {
			return domain.StateSnapshotPayload{}, domain.ErrSessionNotFound
		}
		var state domain.GameState
		if role == domain.RoleTeacher {
			state = domain.TeacherView(e.state, len(e.liveAttempts))
		} else {
			state = domain.StudentView(e.state, len(e.liveAttempts))
		}
		return domain.StateSnapshotPayload{State: state, SnapshotVersion: e.state.SnapshotVersion}, nil
	})
}

// Welcome answers HELLO (spec §6): the role-projected state plus roster.
func (e *Engine) Welcome(ctx context.Context, userID string, role domain.Role, teamID *string) (domain.WelcomePayload, error) {
	return SubmitValue(ctx, e, func(ctx context.Context, e *Engine) (domain.WelcomePayload, error) {
		if !e.initialized {
			return domain.WelcomePayload{}, domain.ErrSessionNotFound
		}
		return domain.WelcomePayload{
			SessionID:  e.SessionID,
			Phase:      e.state.Phase,
			Position:   &e.state.Position,
			Teams:      e.state.Teams,
			Students:   e.state.Students,
			Role:       role,
			UserID:     userID,
			TeamID:     teamID,
			ServerTime: e.clock().UnixMilli(),
		}, nil
	})
}
