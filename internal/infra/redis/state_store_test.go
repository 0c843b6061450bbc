package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alicebob/miniredis/v2"

	"ropequiz/internal/domain"
	redisinfra "ropequiz/internal/infra/redis"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
}

func TestStateStoreGetOnMissingSessionReturnsFalse(t *testing.T) {
	client := newTestClient(t)
	store := redisinfra.NewStateStore(client, time.Minute)

	_, found, err := store.Get(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatalf("expected no state to be found")
	}
}

func TestStateStorePutThenGetRoundTrips(t *testing.T) {
	client := newTestClient(t)
	store := redisinfra.NewStateStore(client, time.Minute)
	ctx := context.Background()

	state := domain.NewRuntimeState("session-1", "tenant-1", []string{"q1", "q2"}, "default")
	state.Position = 64
	if err := store.Put(ctx, "session-1", state); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, found, err := store.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatalf("expected the persisted state to be found")
	}
	if got.SessionID != state.SessionID || got.Position != state.Position {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, state)
	}
}

func TestStateStoreIsolatesSessionsByKey(t *testing.T) {
	client := newTestClient(t)
	store := redisinfra.NewStateStore(client, time.Minute)
	ctx := context.Background()

	if err := store.Put(ctx, "session-a", domain.NewRuntimeState("session-a", "tenant-1", nil, "")); err != nil {
		t.Fatalf("put a: %v", err)
	}

	_, found, err := store.Get(ctx, "session-b")
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if found {
		t.Fatalf("expected session-b to be absent despite session-a being stored")
	}
}
