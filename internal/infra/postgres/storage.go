// Package postgres implements the engine.StorageAdapter against Postgres:
// reads go through jackc/pgx/v4's pgxpool (teacher's quiz_loader.go pattern),
// writes go through uptrace/bun (teacher's migrate.go pattern, generalized
// from migration-only use to the full write path spec §4.1 requires).
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/uptrace/bun"

	"ropequiz/internal/domain"
)

// Storage is the relational Storage Adapter (spec §4.1). It never holds a
// transaction open across engine job boundaries; every method is one
// independent statement or, for instance insertion, one pipeline-free
// round trip.
type Storage struct {
	pool *pgxpool.Pool
	db   *bun.DB
}

func New(pool *pgxpool.Pool, db *bun.DB) *Storage {
	return &Storage{pool: pool, db: db}
}

func (s *Storage) LoadQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	var q domain.Question
	var answersRaw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, text, answers, correct_answer, type, difficulty, time_limit_ms, base_points
		FROM questions WHERE id = $1`, questionID,
	).Scan(&q.ID, &q.Text, &answersRaw, &q.CorrectAnswer, &q.Type, &q.Difficulty, &q.TimeLimitMs, &q.BasePoints)
	if err != nil {
		return domain.Question{}, fmt.Errorf("%w: %v", domain.ErrQuestionNotFound, err)
	}
	if err := json.Unmarshal(answersRaw, &q.Answers); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	return q, nil
}

func (s *Storage) LoadRuleset(ctx context.Context, rulesetID string) (domain.Ruleset, error) {
	var r domain.Ruleset
	err := s.pool.QueryRow(ctx, `
		SELECT id, points_per_correct, points_for_speed, streak_bonus, streak_threshold, streak_multiplier, time_limit_ms
		FROM rulesets WHERE id = $1`, rulesetID,
	).Scan(&r.ID, &r.PointsPerCorrect, &r.PointsForSpeed, &r.StreakBonus, &r.StreakThreshold, &r.StreakMultiplier, &r.TimeLimitMs)
	if err != nil {
		return domain.Ruleset{}, fmt.Errorf("%w: %v", domain.ErrRulesetNotFound, err)
	}
	return r, nil
}

func (s *Storage) LoadRoster(ctx context.Context, sessionID string) ([]domain.Team, []domain.Student, error) {
	teamRows, err := s.pool.Query(ctx, `SELECT id, name, color, side FROM teams WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load teams: %w", err)
	}
	defer teamRows.Close()

	var teams []domain.Team
	for teamRows.Next() {
		var t domain.Team
		if err := teamRows.Scan(&t.ID, &t.Name, &t.Color, &t.Side); err != nil {
			return nil, nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}

	studentRows, err := s.pool.Query(ctx, `SELECT id, nickname, team_id, status, last_seen FROM students WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load students: %w", err)
	}
	defer studentRows.Close()

	var students []domain.Student
	for studentRows.Next() {
		var st domain.Student
		if err := studentRows.Scan(&st.ID, &st.Nickname, &st.TeamID, &st.Status, &st.LastSeen); err != nil {
			return nil, nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, st)
	}
	return teams, students, nil
}

func (s *Storage) InsertQuestionInstance(ctx context.Context, sessionID string, qi domain.QuestionInstance) error {
	answers, err := json.Marshal(qi.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model((*questionInstanceRow)(nil)).
		ModelTableExpr("question_instances").
		Value("id", "?", qi.ID).
		Value("session_id", "?", sessionID).
		Value("question_id", "?", qi.QuestionID).
		Value("index", "?", qi.Index).
		Value("text", "?", qi.Text).
		Value("answers", "?", answers).
		Value("correct_answer", "?", qi.CorrectAnswer).
		Value("time_limit_ms", "?", qi.TimeLimitMs).
		Value("base_points", "?", qi.BasePoints).
		Value("started_at", "?", qi.StartedAt).
		Exec(ctx)
	return err
}

func (s *Storage) EndQuestionInstance(ctx context.Context, instanceID string, endedAt time.Time) error {
	_, err := s.db.NewUpdate().
		ModelTableExpr("question_instances").
		Set("ended_at = ?", endedAt).
		Where("id = ?", instanceID).
		Exec(ctx)
	return err
}

func (s *Storage) InsertAttempt(ctx context.Context, sessionID string, a domain.Attempt) error {
	_, err := s.db.NewInsert().Model((*attemptRow)(nil)).
		ModelTableExpr("attempts").
		Value("id", "?", a.ID).
		Value("question_instance_id", "?", a.QuestionInstanceID).
		Value("student_id", "?", a.StudentID).
		Value("team_id", "?", a.TeamID).
		Value("answer_id", "?", a.AnswerID).
		Value("correct", "?", a.Correct).
		Value("response_time_ms", "?", a.ResponseTimeMs).
		Value("points_awarded", "?", a.PointsAwarded).
		Value("created_at", "?", a.Timestamp).
		Exec(ctx)
	return err
}

func (s *Storage) InsertStrengthEvent(ctx context.Context, sessionID string, e domain.StrengthEvent) error {
	_, err := s.db.NewInsert().Model((*strengthEventRow)(nil)).
		ModelTableExpr("strength_events").
		Value("id", "?", e.ID).
		Value("session_id", "?", sessionID).
		Value("team_id", "?", e.TeamID).
		Value("delta", "?", int64(math.Round(e.Delta*10))).
		Value("reason", "?", e.Reason).
		Value("new_position", "?", e.NewPosition).
		Value("triggered_by", "?", e.TriggeredBy).
		Value("created_at", "?", e.Timestamp).
		Exec(ctx)
	return err
}

func (s *Storage) UpdateSessionOnEnd(ctx context.Context, sessionID string, finalPosition float64, endedAt time.Time) error {
	_, err := s.db.NewUpdate().
		ModelTableExpr("sessions").
		Set("ended_at = ?", endedAt).
		Set("final_position = ?", finalPosition).
		Where("id = ?", sessionID).
		Exec(ctx)
	return err
}

func (s *Storage) UpdateStudentConnection(ctx context.Context, studentID string, status domain.ConnectionStatus, lastSeenAt time.Time) error {
	_, err := s.db.NewUpdate().
		ModelTableExpr("students").
		Set("status = ?", status).
		Set("last_seen = ?", lastSeenAt).
		Where("id = ?", studentID).
		Exec(ctx)
	return err
}

func (s *Storage) UpdateStudentTeam(ctx context.Context, studentID string, teamID *string) error {
	_, err := s.db.NewUpdate().
		ModelTableExpr("students").
		Set("team_id = ?", teamID).
		Where("id = ?", studentID).
		Exec(ctx)
	return err
}

// questionInstanceRow, attemptRow, and strengthEventRow exist only to give
// bun's query builder a model type to anchor its insert on; every column
// is supplied explicitly via Value, so none of these need struct tags.
type questionInstanceRow struct{ bun.BaseModel }
type attemptRow struct{ bun.BaseModel }
type strengthEventRow struct{ bun.BaseModel }
