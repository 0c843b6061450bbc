// Package redis implements the engine.StateStore (the durable per-session
// runtime-state blob, spec §4.2) and a singleflight-collapsed cache in
// front of the relational question/ruleset reads. Grounded on the
// teacher's internal/infra/redis/session_store.go (liveness-keyed
// redis.Client wrapping) and quiz_repository.go (HGetAll-or-load-and-cache
// with golang.org/x/sync/singleflight).
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ropequiz/internal/domain"
)

// StateStore persists one RuntimeState JSON blob per session with a TTL,
// so a hibernated session can be rehydrated (spec §4.2, §5 "rehydration").
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

func (s *StateStore) Get(ctx context.Context, sessionID string) (domain.RuntimeState, bool, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return domain.RuntimeState{}, false, nil
	}
	if err != nil {
		return domain.RuntimeState{}, false, fmt.Errorf("state store get: %w", err)
	}
	var state domain.RuntimeState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.RuntimeState{}, false, fmt.Errorf("state store decode: %w", err)
	}
	return state, true, nil
}

func (s *StateStore) Put(ctx context.Context, sessionID string, state domain.RuntimeState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("state store encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("state store put: %w", err)
	}
	return nil
}

func (s *StateStore) key(sessionID string) string {
	return "ropequiz:state:" + sessionID
}
