// Package memory implements in-memory engine.StorageAdapter and
// engine.StateStore, used by tests and as the no-external-dependency
// fallback the teacher's infra/memory package plays for its
// QuizRepository/SessionStore pair.
package memory

import (
	"context"
	"sync"
	"time"

	"ropequiz/internal/domain"
)

// Storage is a fixture-backed engine.StorageAdapter: question bank and
// ruleset content are seeded up front, writes accumulate in memory for
// assertions in tests.
type Storage struct {
	mu sync.Mutex

	questions map[string]domain.Question
	rulesets  map[string]domain.Ruleset
	teams     map[string][]domain.Team
	students  map[string]map[string]domain.Student

	QuestionInstances []domain.QuestionInstance
	Attempts          []domain.Attempt
	StrengthEvents    []domain.StrengthEvent
	EndedSessions     map[string]time.Time
}

func NewStorage() *Storage {
	return &Storage{
		questions:     make(map[string]domain.Question),
		rulesets:      make(map[string]domain.Ruleset),
		teams:         make(map[string][]domain.Team),
		students:      make(map[string]map[string]domain.Student),
		EndedSessions: make(map[string]time.Time),
	}
}

func (s *Storage) SeedQuestion(q domain.Question) { s.questions[q.ID] = q }
func (s *Storage) SeedRuleset(r domain.Ruleset)   { s.rulesets[r.ID] = r }

// SeedRoster installs a session's teams and students before Init loads them.
func (s *Storage) SeedRoster(sessionID string, teams []domain.Team, students []domain.Student) {
	s.teams[sessionID] = teams
	byID := make(map[string]domain.Student, len(students))
	for _, st := range students {
		byID[st.ID] = st
	}
	s.students[sessionID] = byID
}

func (s *Storage) LoadQuestion(_ context.Context, questionID string) (domain.Question, error) {
	q, ok := s.questions[questionID]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (s *Storage) LoadRuleset(_ context.Context, rulesetID string) (domain.Ruleset, error) {
	r, ok := s.rulesets[rulesetID]
	if !ok {
		return domain.Ruleset{}, domain.ErrRulesetNotFound
	}
	return r, nil
}

func (s *Storage) LoadRoster(_ context.Context, sessionID string) ([]domain.Team, []domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	teams := append([]domain.Team(nil), s.teams[sessionID]...)
	var students []domain.Student
	for _, st := range s.students[sessionID] {
		students = append(students, st)
	}
	return teams, students, nil
}

func (s *Storage) InsertQuestionInstance(_ context.Context, _ string, qi domain.QuestionInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QuestionInstances = append(s.QuestionInstances, qi)
	return nil
}

func (s *Storage) EndQuestionInstance(_ context.Context, instanceID string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.QuestionInstances {
		if s.QuestionInstances[i].ID == instanceID {
			s.QuestionInstances[i].EndedAt = &endedAt
		}
	}
	return nil
}

func (s *Storage) InsertAttempt(_ context.Context, _ string, a domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attempts = append(s.Attempts, a)
	return nil
}

func (s *Storage) InsertStrengthEvent(_ context.Context, _ string, e domain.StrengthEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StrengthEvents = append(s.StrengthEvents, e)
	return nil
}

func (s *Storage) UpdateSessionOnEnd(_ context.Context, sessionID string, _ float64, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndedSessions[sessionID] = endedAt
	return nil
}

func (s *Storage) UpdateStudentConnection(_ context.Context, studentID string, status domain.ConnectionStatus, lastSeenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sessionID, byID := range s.students {
		if st, ok := byID[studentID]; ok {
			st.Status = status
			st.LastSeen = lastSeenAt
			s.students[sessionID][studentID] = st
		}
	}
	return nil
}

func (s *Storage) UpdateStudentTeam(_ context.Context, studentID string, teamID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sessionID, byID := range s.students {
		if st, ok := byID[studentID]; ok {
			st.TeamID = teamID
			s.students[sessionID][studentID] = st
		}
	}
	return nil
}
