package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"ropequiz/internal/domain"
)

// QuestionLoader is the read half of engine.StorageAdapter that QuestionCache
// fronts with Redis: question bank content and rulesets are read-mostly and
// shared across many concurrent session engines loading the same question.
type QuestionLoader interface {
	LoadQuestion(ctx context.Context, questionID string) (domain.Question, error)
	LoadRuleset(ctx context.Context, rulesetID string) (domain.Ruleset, error)
}

// QuestionCache caches question and ruleset content in Redis, collapsing
// concurrent cache misses for the same key with singleflight so a burst of
// session engines starting the same question at once issues one relational
// read, not N. Grounded on the teacher's QuizRepository
// (internal/infra/redis/quiz_repository.go).
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) LoadQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	key := "ropequiz:question:" + questionID
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var q domain.Question
		if json.Unmarshal(raw, &q) == nil {
			return q, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var q domain.Question
			if json.Unmarshal(raw, &q) == nil {
				return q, nil
			}
		}
		q, err := c.loader.LoadQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}
		if raw, err := json.Marshal(q); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *QuestionCache) LoadRuleset(ctx context.Context, rulesetID string) (domain.Ruleset, error) {
	key := "ropequiz:ruleset:" + rulesetID
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var r domain.Ruleset
		if json.Unmarshal(raw, &r) == nil {
			return r, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var r domain.Ruleset
			if json.Unmarshal(raw, &r) == nil {
				return r, nil
			}
		}
		r, err := c.loader.LoadRuleset(ctx, rulesetID)
		if err != nil {
			return domain.Ruleset{}, err
		}
		if raw, err := json.Marshal(r); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return r, nil
	})
	if err != nil {
		return domain.Ruleset{}, err
	}
	return result.(domain.Ruleset), nil
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// CachedStorage composes a QuestionCache's fronted reads with the rest of
// an underlying engine.StorageAdapter, so the engine sees one adapter.
type CachedStorage struct {
	*QuestionCache
	underlying storageRest
}

// storageRest is every engine.StorageAdapter method QuestionCache does not
// front. Declared narrowly so CachedStorage's embedding stays unambiguous.
type storageRest interface {
	InsertQuestionInstance(ctx context.Context, sessionID string, qi domain.QuestionInstance) error
	EndQuestionInstance(ctx context.Context, instanceID string, endedAt time.Time) error
	InsertAttempt(ctx context.Context, sessionID string, a domain.Attempt) error
	InsertStrengthEvent(ctx context.Context, sessionID string, e domain.StrengthEvent) error
	UpdateSessionOnEnd(ctx context.Context, sessionID string, finalPosition float64, endedAt time.Time) error
	UpdateStudentConnection(ctx context.Context, studentID string, status domain.ConnectionStatus, lastSeenAt time.Time) error
	UpdateStudentTeam(ctx context.Context, studentID string, teamID *string) error
	LoadRoster(ctx context.Context, sessionID string) ([]domain.Team, []domain.Student, error)
}

func NewCachedStorage(cache *QuestionCache, underlying storageRest) *CachedStorage {
	return &CachedStorage{QuestionCache: cache, underlying: underlying}
}

func (c *CachedStorage) InsertQuestionInstance(ctx context.Context, sessionID string, qi domain.QuestionInstance) error {
	return c.underlying.InsertQuestionInstance(ctx, sessionID, qi)
}
func (c *CachedStorage) EndQuestionInstance(ctx context.Context, instanceID string, endedAt time.Time) error {
	return c.underlying.EndQuestionInstance(ctx, instanceID, endedAt)
}
func (c *CachedStorage) InsertAttempt(ctx context.Context, sessionID string, a domain.Attempt) error {
	return c.underlying.InsertAttempt(ctx, sessionID, a)
}
func (c *CachedStorage) InsertStrengthEvent(ctx context.Context, sessionID string, e domain.StrengthEvent) error {
	return c.underlying.InsertStrengthEvent(ctx, sessionID, e)
}
func (c *CachedStorage) UpdateSessionOnEnd(ctx context.Context, sessionID string, finalPosition float64, endedAt time.Time) error {
	return c.underlying.UpdateSessionOnEnd(ctx, sessionID, finalPosition, endedAt)
}
func (c *CachedStorage) UpdateStudentConnection(ctx context.Context, studentID string, status domain.ConnectionStatus, lastSeenAt time.Time) error {
	return c.underlying.UpdateStudentConnection(ctx, studentID, status, lastSeenAt)
}
func (c *CachedStorage) UpdateStudentTeam(ctx context.Context, studentID string, teamID *string) error {
	return c.underlying.UpdateStudentTeam(ctx, studentID, teamID)
}
func (c *CachedStorage) LoadRoster(ctx context.Context, sessionID string) ([]domain.Team, []domain.Student, error) {
	return c.underlying.LoadRoster(ctx, sessionID)
}
