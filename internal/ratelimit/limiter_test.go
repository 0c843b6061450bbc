package ratelimit_test

import (
	"testing"
	"time"

	"ropequiz/internal/ratelimit"
)

func TestAllowWithinBurst(t *testing.T) {
	l := ratelimit.New(5)
	for i := 0; i < 5; i++ {
		if !l.Allow("c1") {
			t.Fatalf("expected message %d to be allowed within burst", i)
		}
	}
}

func TestRejectsOverLimit(t *testing.T) {
	l := ratelimit.New(2)
	l.Allow("c1")
	l.Allow("c1")
	if l.Allow("c1") {
		t.Fatalf("expected third rapid message to be rate limited")
	}
}

func TestPerConnectionIsolation(t *testing.T) {
	l := ratelimit.New(1)
	l.Allow("c1")
	if !l.Allow("c2") {
		t.Fatalf("expected a different connection to have its own budget")
	}
}

func TestCleanupRemovesIdleEntries(t *testing.T) {
	l := ratelimit.New(1)
	l.Allow("c1")
	l.Cleanup(0)
	// after cleanup, a full burst should be available again for the same id
	if !l.Allow("c1") {
		t.Fatalf("expected cleanup to reset stale connection state")
	}
	_ = time.Millisecond
}
