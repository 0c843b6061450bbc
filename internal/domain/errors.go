package domain

import "errors"

// Sentinel errors surfaced by the engine and translated into wire ERROR
// codes by the router and Control API. See ErrorCode for the mapping.
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already initialized")
	ErrSessionEnded         = errors.New("session already completed")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrNotAuthorized        = errors.New("not authorized for this action")
	ErrStudentKicked        = errors.New("student has been kicked from this session")
	ErrInvalidState         = errors.New("command not valid in current phase")
	ErrAlreadyAnswered      = errors.New("student already answered this question")
	ErrQuestionExpired      = errors.New("question deadline has passed")
	ErrUnknownInstance      = errors.New("question instance does not match current question")
	ErrInvalidAnswer        = errors.New("answer option is not part of the question")
	ErrUnknownTeam          = errors.New("team does not exist in this session")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrInvalidMessage       = errors.New("malformed or unknown message")
	ErrNoQuestionsLeft      = errors.New("no remaining questions")
	ErrQuestionNotFound     = errors.New("question not found")
	ErrRulesetNotFound      = errors.New("ruleset not found")
)

// ErrorCode is the stable wire enumerant carried on ERROR messages (§6/§7).
type ErrorCode string

const (
	CodeInvalidToken    ErrorCode = "INVALID_TOKEN"
	CodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionEnded    ErrorCode = "SESSION_ENDED"
	CodeNotAuthorized   ErrorCode = "NOT_AUTHORIZED"
	CodeAlreadyAnswered ErrorCode = "ALREADY_ANSWERED"
	CodeQuestionExpired ErrorCode = "QUESTION_EXPIRED"
	CodeInvalidAnswer   ErrorCode = "INVALID_ANSWER"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
	CodeInvalidMessage  ErrorCode = "INVALID_MESSAGE"
	CodeKicked          ErrorCode = "KICKED"
	CodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

// CodeForError maps a sentinel/wrapped domain error to its wire code.
// Unrecognized errors map to CodeInternalError, matching §7's propagation
// policy that only cataloged errors are user-visible in detail.
func CodeForError(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrInvalidToken):
		return CodeInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, ErrSessionEnded):
		return CodeSessionEnded
	case errors.Is(err, ErrNotAuthorized):
		return CodeNotAuthorized
	case errors.Is(err, ErrAlreadyAnswered):
		return CodeAlreadyAnswered
	case errors.Is(err, ErrQuestionExpired):
		return CodeQuestionExpired
	case errors.Is(err, ErrInvalidAnswer), errors.Is(err, ErrUnknownInstance), errors.Is(err, ErrUnknownTeam):
		return CodeInvalidAnswer
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrInvalidMessage):
		return CodeInvalidMessage
	case errors.Is(err, ErrStudentKicked):
		return CodeKicked
	default:
		return CodeInternalError
	}
}
