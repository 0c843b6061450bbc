package engine

import (
	"context"
	"time"

	"ropequiz/internal/domain"
)

// StorageAdapter is the single choke-point for relational I/O (spec §4.1).
// The engine never issues a long-held transaction against it; every call is
// an independent statement or batch (spec §5 "Shared-resource policy").
type StorageAdapter interface {
	LoadQuestion(ctx context.Context, questionID string) (domain.Question, error)
	LoadRuleset(ctx context.Context, rulesetID string) (domain.Ruleset, error)
	InsertQuestionInstance(ctx context.Context, sessionID string, qi domain.QuestionInstance) error
	EndQuestionInstance(ctx context.Context, instanceID string, endedAt time.Time) error
	InsertAttempt(ctx context.Context, sessionID string, a domain.Attempt) error
	InsertStrengthEvent(ctx context.Context, sessionID string, e domain.StrengthEvent) error
	UpdateSessionOnEnd(ctx context.Context, sessionID string, finalPosition float64, endedAt time.Time) error
	UpdateStudentConnection(ctx context.Context, studentID string, status domain.ConnectionStatus, lastSeenAt time.Time) error
	UpdateStudentTeam(ctx context.Context, studentID string, teamID *string) error
	LoadRoster(ctx context.Context, sessionID string) ([]domain.Team, []domain.Student, error)
}

// StateStore durably persists a single opaque RuntimeState blob per session,
// colocated with the actor, surviving hibernation (spec §4.2).
type StateStore interface {
	Get(ctx context.Context, sessionID string) (domain.RuntimeState, bool, error)
	Put(ctx context.Context, sessionID string, state domain.RuntimeState) error
}
