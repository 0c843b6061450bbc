package domain

import "encoding/json"

// Wire message type discriminators (spec §6). One canonical shape per
// message, per the "Wire protocol versioning" design note (spec §9) —
// legacy/alternative shapes are rejected by the router, not supported.
const (
	MsgHello               = "HELLO"
	MsgJoinTeam            = "JOIN_TEAM"
	MsgSubmitAnswer        = "SUBMIT_ANSWER"
	MsgTeacherNextQuestion = "TEACHER_NEXT_QUESTION"
	MsgTeacherPause        = "TEACHER_PAUSE"
	MsgTeacherResume       = "TEACHER_RESUME"
	MsgTeacherEndGame      = "TEACHER_END_GAME"
	MsgTeacherManualAdjust = "TEACHER_MANUAL_ADJUST"
	MsgTeacherKickPlayer   = "TEACHER_KICK_PLAYER"
	MsgPing                = "PING"

	MsgWelcome        = "WELCOME"
	MsgStateSnapshot  = "STATE_SNAPSHOT"
	MsgRosterUpdate   = "ROSTER_UPDATE"
	MsgPlayerJoined   = "PLAYER_JOINED"
	MsgPlayerKicked   = "PLAYER_KICKED"
	MsgQuestion       = "QUESTION"
	MsgPhaseChange    = "PHASE_CHANGE"
	MsgTugUpdate      = "TUG_UPDATE"
	MsgAnswerResult   = "ANSWER_RESULT"
	MsgQuestionReveal = "QUESTION_REVEAL"
	MsgGameEnd        = "GAME_END"
	MsgError          = "ERROR"
	MsgAck            = "ACK"
	MsgPong           = "PONG"
)

// Close codes (spec §6).
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// InboundEnvelope is the shape every client-to-server frame is parsed into
// before type-specific payload decoding.
type InboundEnvelope struct {
	Type        string          `json:"type"`
	ClientMsgID string          `json:"clientMsgId,omitempty"`
	Token       string          `json:"token,omitempty"`
	Reconnect   bool            `json:"reconnect,omitempty"`
	LastEventID string          `json:"lastEventId,omitempty"`
	TeamID      string          `json:"teamId,omitempty"`
	InstanceID  string          `json:"instanceId,omitempty"`
	ChoiceID    string          `json:"choiceId,omitempty"`
	QuestionID  string          `json:"questionId,omitempty"`
	Delta       float64         `json:"delta,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	PlayerID    string          `json:"playerId,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// OutboundMessage is the generic server-to-client envelope. Most event
// payloads carry RequestID/Timestamp per spec §6; the concrete Payload type
// varies by Type.
type OutboundMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// QuestionPayload is the student-safe projection of a started question
// (spec §4.4 "strips correct-answer information").
type QuestionPayload struct {
	InstanceID string `json:"instanceId"`
	Question   struct {
		ID          string   `json:"id"`
		Text        string   `json:"text"`
		Answers     []Answer `json:"answers"`
		Type        string   `json:"type"`
		Difficulty  string   `json:"difficulty"`
		TimeLimitMs int64    `json:"timeLimitMs"`
		Points      int      `json:"points"`
	} `json:"question"`
	QuestionIndex  int   `json:"questionIndex"`
	TotalQuestions int   `json:"totalQuestions"`
	StartsAt       int64 `json:"startsAt"`
	TimeLimitMs    int64 `json:"timeLimitMs"`
}

// TugUpdatePayload carries a rope-position mutation (spec §6).
type TugUpdatePayload struct {
	Position    float64        `json:"position"`
	Delta       float64        `json:"delta"`
	Reason      StrengthReason `json:"reason"`
	TeamID      *string        `json:"teamId,omitempty"`
	LastEventID string         `json:"lastEventId"`
}

// AnswerResultPayload is targeted to the submitter only (spec §4.4).
type AnswerResultPayload struct {
	Correct         bool    `json:"correct"`
	CorrectAnswerID string  `json:"correctAnswerId"`
	Delta           float64 `json:"delta"`
	NewPosition     float64 `json:"newPosition"`
	PointsAwarded   int     `json:"pointsAwarded"`
	ResponseTimeMs  int64   `json:"responseTimeMs"`
}

// TeamStats is per-team aggregate stats in a QUESTION_REVEAL payload.
type TeamStats struct {
	Attempts          int     `json:"attempts"`
	Correct           int     `json:"correct"`
	AverageResponseMs float64 `json:"averageResponseMs"`
}

// QuestionStats summarizes a single question's attempts at end-question.
type QuestionStats struct {
	TotalAttempts   int                  `json:"totalAttempts"`
	CorrectAttempts int                  `json:"correctAttempts"`
	TeamStats       map[string]TeamStats `json:"teamStats"`
}

// QuestionRevealPayload is broadcast at end-question (spec §4.4).
type QuestionRevealPayload struct {
	QuestionInstanceID string        `json:"questionInstanceId"`
	CorrectAnswerID    string        `json:"correctAnswerId"`
	Explanation        string        `json:"explanation,omitempty"`
	Stats              QuestionStats `json:"stats"`
}

// GameSummary is embedded in GAME_END.
type GameSummary struct {
	DurationMs     int64 `json:"duration"`
	TotalQuestions int   `json:"totalQuestions"`
}

// GameEndPayload is broadcast once, at end_game (spec §4.4).
type GameEndPayload struct {
	Winner        *Team       `json:"winner"`
	FinalPosition float64     `json:"finalPosition"`
	Summary       GameSummary `json:"summary"`
}

// ErrorPayload carries the §7 error taxonomy's wire code.
type ErrorPayload struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	ClientMsgID string    `json:"clientMsgId,omitempty"`
}

// WelcomePayload answers HELLO (spec §6).
type WelcomePayload struct {
	SessionID  string    `json:"sessionId"`
	Phase      Phase     `json:"phase"`
	Position   *float64  `json:"position,omitempty"`
	Teams      []Team    `json:"teams,omitempty"`
	Students   []Student `json:"students,omitempty"`
	Role       Role      `json:"role"`
	UserID     string    `json:"userId"`
	TeamID     *string   `json:"teamId,omitempty"`
	ServerTime int64     `json:"serverTime"`
}

// StateSnapshotPayload wraps a role-projected GameState (spec §6).
type StateSnapshotPayload struct {
	State           GameState `json:"state"`
	SnapshotVersion int64     `json:"snapshotVersion"`
}

// RosterUpdatePayload is broadcast when team/student membership changes.
type RosterUpdatePayload struct {
	Teams        []Team    `json:"teams"`
	Students     []Student `json:"students,omitempty"`
	TotalPlayers int       `json:"totalPlayers,omitempty"`
}

// PlayerKickedPayload is sent to the kicked connection before close.
type PlayerKickedPayload struct {
	StudentID string `json:"studentId"`
	Reason    string `json:"reason,omitempty"`
}

// PhaseChangePayload announces a phase machine transition.
type PhaseChangePayload struct {
	Phase         Phase `json:"phase"`
	PreviousPhase Phase `json:"previousPhase"`
}

// GameState is the role-projected view of RuntimeState delivered in
// STATE_SNAPSHOT and Control API get_state (spec §4.8, §9 "role
// projection"). Teacher view includes CorrectAnswerID on the current
// question (if any); student view never does.
type GameState struct {
	SessionID            string            `json:"sessionId"`
	Phase                Phase             `json:"phase"`
	Position             float64           `json:"position"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	TotalQuestions       int               `json:"totalQuestions"`
	CurrentQuestion      *QuestionView     `json:"currentQuestion,omitempty"`
	Teams                []Team            `json:"teams"`
	Students             []Student         `json:"students"`
	Scores               map[string]int    `json:"scores"`
	Streaks              map[string]Streak `json:"streaks"`
	LiveAttempts         int               `json:"liveAttempts,omitempty"`
}

// QuestionView is the role-filtered view of the current question instance.
type QuestionView struct {
	ID              string   `json:"id"`
	Text            string   `json:"text"`
	Answers         []Answer `json:"answers"`
	CorrectAnswerID string   `json:"correctAnswerId,omitempty"`
	TimeLimitMs     int64    `json:"timeLimitMs"`
	StartedAtMs     int64    `json:"startedAtMs"`
}

// TeacherView projects RuntimeState for a teacher connection: full fidelity,
// including the correct answer of an in-flight question.
func TeacherView(s RuntimeState, liveAttempts int) GameState {
	return project(s, true, liveAttempts)
}

// StudentView projects RuntimeState for a student connection: the current
// question's correct answer is withheld until the question has ended
// (spec §4.7 "students never receive the correct-answer projection").
func StudentView(s RuntimeState, liveAttempts int) GameState {
	return project(s, false, liveAttempts)
}

func project(s RuntimeState, teacher bool, liveAttempts int) GameState {
	gs := GameState{
		SessionID:            s.SessionID,
		Phase:                s.Phase,
		Position:             s.Position,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		TotalQuestions:       len(s.QuestionIDs),
		Teams:                s.Teams,
		Students:             s.Students,
		Scores:               s.Scores,
		Streaks:              s.Streaks,
	}
	if s.Phase == PhaseActiveQuestion || s.Phase == PhasePaused {
		gs.LiveAttempts = liveAttempts
	}
	if s.CurrentQuestion != nil {
		qv := &QuestionView{
			ID:          s.CurrentQuestion.ID,
			Text:        s.CurrentQuestion.Text,
			Answers:     s.CurrentQuestion.Answers,
			TimeLimitMs: s.CurrentQuestion.TimeLimitMs,
			StartedAtMs: s.CurrentQuestion.StartedAt.UnixMilli(),
		}
		ended := s.CurrentQuestion.EndedAt != nil
		if teacher || ended {
			qv.CorrectAnswerID = s.CurrentQuestion.CorrectAnswer
		}
		gs.CurrentQuestion = qv
	}
	return gs
}
