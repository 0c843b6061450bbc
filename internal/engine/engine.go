// Package engine implements the Session Engine: the single-owner actor that
// is the sole writer of one session's truth (spec §1, §2, §5). It combines
// the Phase Machine, Question Lifecycle Controller, and Scoring & Tug Model
// behind a job queue that serializes every command, timer firing, and
// broadcast, matching the teacher's Session actor in
// internal/app/quiz_service.go (sync.RWMutex-guarded mutation plus
// subscriber fan-out) generalized into an explicit single-goroutine actor
// so the question deadline timer can be selected on in the same loop that
// handles commands — the concurrency-correctness requirement of spec §5
// ("no state mutation may be interleaved with another handler's mutation").
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ropequiz/internal/broadcast"
	"ropequiz/internal/domain"
	"ropequiz/internal/metrics"
	"ropequiz/internal/registry"
)

// job is a unit of work given exclusive access to the engine's state. All
// mutation happens inside a job, executed one at a time by Run.
type job func(ctx context.Context, e *Engine)

// Engine is the per-session actor. One instance is live per session id at
// any time (invariant 7); the host package enforces that across a fleet.
type Engine struct {
	SessionID string

	storage     StorageAdapter
	store       StateStore
	Registry    *registry.Registry
	broadcaster *broadcast.Broadcaster
	metrics     *metrics.Collector
	log         *slog.Logger

	clock func() time.Time
	newID func() string

	jobs chan job
	stop chan struct{}

	timer      *time.Timer
	deadlineAt time.Time

	state   domain.RuntimeState
	ruleset domain.Ruleset

	// liveAttempts tracks admissions for the in-flight question instance:
	// studentID -> Attempt. Cleared at the start of each question (spec
	// §4.4 "Clear the answers this question map").
	liveAttempts map[string]domain.Attempt

	lastActivity time.Time
	initialized  bool
}

// Option configures an Engine at construction, mainly for deterministic
// tests (teacher pattern: NewSessionWithClock).
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithIDGenerator overrides ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// New constructs an Engine for sessionID. Call Rehydrate before Run to load
// any persisted state, then Run to start the actor loop.
func New(sessionID string, storage StorageAdapter, store StateStore, reg *registry.Registry, bc *broadcast.Broadcaster, mx *metrics.Collector, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		SessionID:    sessionID,
		storage:      storage,
		store:        store,
		Registry:     reg,
		broadcaster:  bc,
		metrics:      mx,
		log:          log.With("session_id", sessionID),
		clock:        time.Now,
		newID:        func() string { return uuid.NewString() },
		jobs:         make(chan job, 256),
		stop:         make(chan struct{}),
		liveAttempts: make(map[string]domain.Attempt),
	}
	e.lastActivity = e.clock()
	return e
}

// Run is the actor loop (spec §5 "single logical thread of execution").
// It must be invoked exactly once, in its own goroutine.
func (e *Engine) Run(ctx context.Context) {
	for {
		var timerC <-chan time.Time
		if e.timer != nil {
			timerC = e.timer.C
		}
		select {
		case fn := <-e.jobs:
			e.lastActivity = e.clock()
			fn(ctx, e)
		case <-timerC:
			e.timer = nil
			e.lastActivity = e.clock()
			e.onDeadline(ctx)
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the actor loop. Safe to call once; the host calls it when
// hibernating or tearing down a completed session.
func (e *Engine) Stop() {
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

// Submit enqueues fn for exclusive execution and returns once it has run.
// This is the synchronous request/response primitive the Message Router
// and Control API use so every externally observable effect happens after
// its state mutation has committed (spec §4.2).
func (e *Engine) Submit(ctx context.Context, fn func(ctx context.Context, e *Engine) error) error {
	done := make(chan error, 1)
	select {
	case e.jobs <- func(ctx context.Context, e *Engine) { done <- fn(ctx, e) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitValue is Submit's variant for handlers that also return a value
// (e.g. get_state's GameState, end()'s final position).
func SubmitValue[T any](ctx context.Context, e *Engine, fn func(ctx context.Context, e *Engine) (T, error)) (T, error) {
	var result T
	err := e.Submit(ctx, func(ctx context.Context, e *Engine) error {
		v, err := fn(ctx, e)
		result = v
		return err
	})
	return result, err
}

// LastActivity reports when a job last ran, for the host's idle sweep.
func (e *Engine) LastActivity() time.Time {
	return e.lastActivity
}

// Phase returns the current phase without going through the job queue, so
// the read is not synchronized with a job the actor is running.
func (e *Engine) Phase() domain.Phase {
	return e.state.Phase
}

func (e *Engine) bumpSnapshot() {
	e.state.SnapshotVersion++
}

func (e *Engine) persist(ctx context.Context) error {
	if err := e.store.Put(ctx, e.SessionID, e.state); err != nil {
		e.log.Error("state store write failed", "err", err)
		return err
	}
	return nil
}
