package domain

// Command is an engine-mutating trigger recognized by the phase machine
// (spec §4.3). Read-only messages (hello, ping) are not phase transitions.
type Command string

const (
	CmdInit                Command = "init"
	CmdTeacherNextQuestion Command = "teacher_next_question"
	CmdQuestionTimerExpiry Command = "question_timer_expiry"
	CmdTeacherPause        Command = "teacher_pause"
	CmdTeacherResume       Command = "teacher_resume"
	CmdTeacherEndGame      Command = "teacher_end_game"
)

// transitions enumerates the machine in spec §4.3: fromPhase+command -> toPhase.
// teacher_next_question's actual destination (active_question vs completed)
// depends on remaining questions and is resolved by the lifecycle controller,
// not by this static table; CanTransition below treats it as generically
// legal from {ready, reveal} and lets the caller pick the concrete target.
var transitions = map[Phase]map[Command]Phase{
	PhaseLobby: {
		CmdInit: PhaseReady,
	},
	PhaseReady: {
		CmdTeacherNextQuestion: PhaseActiveQuestion,
	},
	PhaseActiveQuestion: {
		CmdQuestionTimerExpiry: PhaseReveal,
		CmdTeacherNextQuestion: PhaseReveal,
		CmdTeacherPause:        PhasePaused,
		CmdTeacherEndGame:      PhaseCompleted,
	},
	PhasePaused: {
		CmdTeacherResume:  PhaseActiveQuestion,
		CmdTeacherEndGame: PhaseCompleted,
	},
	PhaseReveal: {
		CmdTeacherNextQuestion: PhaseActiveQuestion,
		CmdTeacherEndGame:      PhaseCompleted,
	},
}

// CanTransition reports whether cmd is legal from phase, per spec §4.3.
// Rejected commands must cause no state change (invariant 5).
func CanTransition(phase Phase, cmd Command) bool {
	byCmd, ok := transitions[phase]
	if !ok {
		return false
	}
	_, ok = byCmd[cmd]
	return ok
}

// IsTerminal reports whether phase accepts no further commands.
func IsTerminal(phase Phase) bool {
	return phase == PhaseCompleted
}
