// Package host manages the fleet of live Session Engines in this process:
// lazy get-or-create, a Redis lease that enforces "one live engine per
// session id" across a horizontally scaled deployment (invariant 7), and a
// gocron-driven sweep that hibernates idle sessions (spec §4.2, §5). The
// scheduler wiring is grounded on
// Musterbox-LLC-game-publish-system/services/scheduler.go
// (gocron.NewScheduler + DurationJob); the lease pattern generalizes the
// teacher's liveness-marker SET in
// internal/infra/redis/session_store.go from a best-effort marker into an
// enforced NX lock.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ropequiz/internal/broadcast"
	"ropequiz/internal/engine"
	"ropequiz/internal/metrics"
	"ropequiz/internal/registry"
)

type sessionEntry struct {
	engine      *engine.Engine
	registry    *registry.Registry
	broadcaster *broadcast.Broadcaster
	cancel      context.CancelFunc
	leaseToken  string
}

// Host owns every Session Engine live in this process.
type Host struct {
	storage engine.StorageAdapter
	store   engine.StateStore
	metrics *metrics.Collector
	log     *slog.Logger

	redis    *redis.Client
	leaseTTL time.Duration

	idleTimeout time.Duration
	scheduler   gocron.Scheduler

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func New(storage engine.StorageAdapter, store engine.StateStore, mx *metrics.Collector, log *slog.Logger, redisClient *redis.Client, leaseTTL, idleTimeout time.Duration) *Host {
	return &Host{
		storage:     storage,
		store:       store,
		metrics:     mx,
		log:         log,
		redis:       redisClient,
		leaseTTL:    leaseTTL,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*sessionEntry),
	}
}

// Get returns the live engine for sessionID, creating and rehydrating one
// (with a Redis lease acquired) if it is not already running in this
// process.
func (h *Host) Get(ctx context.Context, sessionID string) (*engine.Engine, *registry.Registry, *broadcast.Broadcaster, error) {
	h.mu.Lock()
	if entry, ok := h.sessions[sessionID]; ok {
		h.mu.Unlock()
		return entry.engine, entry.registry, entry.broadcaster, nil
	}
	h.mu.Unlock()

	token := uuid.NewString()
	if h.redis != nil {
		acquired, err := h.redis.SetNX(ctx, h.leaseKey(sessionID), token, h.leaseTTL).Result()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("acquire session lease: %w", err)
		}
		if !acquired {
			return nil, nil, nil, fmt.Errorf("session %s is owned by another process", sessionID)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.sessions[sessionID]; ok {
		return entry.engine, entry.registry, entry.broadcaster, nil
	}

	reg := registry.New()
	bc := broadcast.New(reg, h.log)
	eng := engine.New(sessionID, h.storage, h.store, reg, bc, h.metrics, h.log)
	if _, err := eng.Rehydrate(ctx); err != nil {
		if h.redis != nil {
			_ = h.redis.Del(ctx, h.leaseKey(sessionID)).Err()
		}
		return nil, nil, nil, fmt.Errorf("rehydrate session %s: %w", sessionID, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	go eng.Run(runCtx)

	if h.metrics != nil {
		h.metrics.SessionStarted()
	}

	h.sessions[sessionID] = &sessionEntry{engine: eng, registry: reg, broadcaster: bc, cancel: cancel, leaseToken: token}
	return eng, reg, bc, nil
}

// Stop shuts down sessionID's engine and releases its lease, if live.
func (h *Host) Stop(ctx context.Context, sessionID string) {
	h.mu.Lock()
	entry, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	entry.engine.Stop()
	entry.cancel()
	if h.redis != nil {
		h.releaseLease(ctx, sessionID, entry.leaseToken)
	}
	if h.metrics != nil {
		h.metrics.SessionStopped()
	}
}

// StartSweep schedules the idle-session hibernation sweep. Call once at
// startup; the returned error only reflects scheduler construction, not
// individual sweep runs.
func (h *Host) StartSweep(ctx context.Context, interval time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { h.sweep(ctx) }),
	); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	h.scheduler = sched
	sched.Start()
	return nil
}

// StopSweep halts the scheduler; safe to call even if StartSweep was never
// called.
func (h *Host) StopSweep() {
	if h.scheduler != nil {
		_ = h.scheduler.Shutdown()
	}
}

// SweepOnce runs a single hibernation pass immediately, independent of
// StartSweep's schedule; tests use this to assert sweep behavior without
// waiting on a timer.
func (h *Host) SweepOnce(ctx context.Context) {
	h.sweep(ctx)
}

func (h *Host) sweep(ctx context.Context) {
	h.mu.Lock()
	var idle []string
	now := time.Now()
	for sessionID, entry := range h.sessions {
		if now.Sub(entry.engine.LastActivity()) >= h.idleTimeout {
			idle = append(idle, sessionID)
		}
	}
	h.mu.Unlock()

	for _, sessionID := range idle {
		h.log.Info("hibernating idle session", "session_id", sessionID)
		h.Stop(ctx, sessionID)
		if h.metrics != nil {
			h.metrics.SessionHibernated()
		}
	}
}

func (h *Host) releaseLease(ctx context.Context, sessionID, token string) {
	// Only release if we still hold it: a stale Del from a session this
	// process no longer owns would evict another process's live lease.
	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`
	if err := h.redis.Eval(ctx, script, []string{h.leaseKey(sessionID)}, token).Err(); err != nil {
		h.log.Warn("release session lease failed", "session_id", sessionID, "err", err)
	}
}

func (h *Host) leaseKey(sessionID string) string {
	return "ropequiz:lease:" + sessionID
}
