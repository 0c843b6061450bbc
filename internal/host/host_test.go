package host_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"ropequiz/internal/host"
	"ropequiz/internal/infra/memory"
	"ropequiz/internal/metrics"
)

func newTestHost(idleTimeout time.Duration) *host.Host {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return host.New(memory.NewStorage(), memory.NewStateStore(), metrics.New(), log, nil, 0, idleTimeout)
}

func TestGetReturnsSameEngineOnRepeatedCalls(t *testing.T) {
	h := newTestHost(time.Hour)
	ctx := context.Background()

	eng1, _, _, err := h.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	eng2, _, _, err := h.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if eng1 != eng2 {
		t.Fatalf("expected the same engine instance for repeated Get calls on one session")
	}
}

func TestGetIsolatesDifferentSessions(t *testing.T) {
	h := newTestHost(time.Hour)
	ctx := context.Background()

	eng1, _, _, err := h.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	eng2, _, _, err := h.Get(ctx, "session-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if eng1 == eng2 {
		t.Fatalf("expected distinct engines for distinct sessions")
	}
}

func TestSweepOnceHibernatesOnlyIdleSessions(t *testing.T) {
	h := newTestHost(50 * time.Millisecond)
	ctx := context.Background()

	idleBefore, _, _, err := h.Get(ctx, "idle-session")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	freshBefore, _, _, err := h.Get(ctx, "fresh-session")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	h.SweepOnce(ctx)

	idleAfter, _, _, err := h.Get(ctx, "idle-session")
	if err != nil {
		t.Fatalf("get idle-session after sweep: %v", err)
	}
	if idleAfter == idleBefore {
		t.Fatalf("expected the idle session's engine to be replaced after sweep hibernated it")
	}

	freshAfter, _, _, err := h.Get(ctx, "fresh-session")
	if err != nil {
		t.Fatalf("get fresh-session after sweep: %v", err)
	}
	if freshAfter != freshBefore {
		t.Fatalf("expected the recently active session's engine to survive the sweep")
	}
}

func TestStopRemovesSessionSoNextGetRecreatesIt(t *testing.T) {
	h := newTestHost(time.Hour)
	ctx := context.Background()

	eng1, _, _, err := h.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	h.Stop(ctx, "session-1")

	eng2, _, _, err := h.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("get after stop: %v", err)
	}
	if eng1 == eng2 {
		t.Fatalf("expected a fresh engine after Stop")
	}
}
