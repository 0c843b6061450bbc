// Package integration exercises the Session Engine against real Postgres
// and Redis, grounded directly on the teacher's
// internal/integration/integration_test.go (testcontainers-go spinning up
// postgres:15-alpine and redis:7-alpine, a requireDocker skip guard,
// startPostgres/startRedis helpers returning a DSN and a cleanup func).
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"ropequiz/internal/broadcast"
	"ropequiz/internal/domain"
	"ropequiz/internal/engine"
	pgstorage "ropequiz/internal/infra/postgres"
	pgmigrations "ropequiz/internal/infra/postgres/migrations"
	redisinfra "ropequiz/internal/infra/redis"
	"ropequiz/internal/metrics"
	"ropequiz/internal/registry"

	"io"
	"log/slog"
)

func TestSubmitAnswerEndToEndAgainstRealInfra(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)
	seedFixture(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(pgURL)))
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	relational := pgstorage.New(pool, bunDB)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	cache := redisinfra.NewQuestionCache(redisClient, relational, time.Minute)
	storage := redisinfra.NewCachedStorage(cache, relational)
	stateStore := redisinfra.NewStateStore(redisClient, time.Hour)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New()
	bc := broadcast.New(reg, log)
	eng := engine.New("session-1", storage, stateStore, reg, bc, metrics.New(), log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go eng.Run(runCtx)

	if err := eng.Init(ctx, "tenant-1", []string{"q1"}, "default"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := eng.TeacherNextQuestion(ctx); err != nil {
		t.Fatalf("teacher_next_question: %v", err)
	}

	state, err := eng.GetState(ctx, domain.RoleTeacher)
	if err != nil {
		t.Fatalf("get_state: %v", err)
	}
	if state.CurrentQuestion == nil {
		t.Fatalf("expected an active question instance")
	}

	if err := eng.SubmitAnswer(ctx, "student-right", state.CurrentQuestion.ID, "a2"); err != nil {
		t.Fatalf("submit answer: %v", err)
	}

	state, err = eng.GetState(ctx, domain.RoleTeacher)
	if err != nil {
		t.Fatalf("get_state after submit: %v", err)
	}
	if state.Position <= 50 {
		t.Fatalf("expected the rope to move right of center after a correct answer, got %f", state.Position)
	}

	// A fresh state store read (not the live engine) proves the attempt
	// persisted through Redis durably, not just in the actor's memory.
	persisted, found, err := stateStore.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("state store get: %v", err)
	}
	if !found {
		t.Fatalf("expected the running session's state to be persisted in redis")
	}
	if persisted.Position != state.Position {
		t.Fatalf("persisted position %f does not match live position %f", persisted.Position, state.Position)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "ropequiz", "POSTGRES_PASSWORD": "ropequiz", "POSTGRES_DB": "ropequiz"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://ropequiz:ropequiz@%s:%s/ropequiz?sslmode=disable", host, port.Port())
	return dsn, func() { _ = container.Terminate(ctx) }
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() { _ = container.Terminate(ctx) }
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func seedFixture(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	exec := func(query string, args ...interface{}) {
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	exec(`INSERT INTO rulesets (id) VALUES ('default') ON CONFLICT DO NOTHING`)
	exec(`INSERT INTO questions (id, text, answers, correct_answer, time_limit_ms, base_points)
		VALUES ('q1', '2 + 2?', '[{"id":"a1","text":"3"},{"id":"a2","text":"4"}]'::jsonb, 'a2', 30000, 10)
		ON CONFLICT DO NOTHING`)
	exec(`INSERT INTO sessions (id, tenant_id, ruleset_id) VALUES ('session-1', 'tenant-1', 'default') ON CONFLICT DO NOTHING`)
	exec(`INSERT INTO teams (id, session_id, name, color, side) VALUES ('team-left', 'session-1', 'Left', '#0000ff', 'left') ON CONFLICT DO NOTHING`)
	exec(`INSERT INTO teams (id, session_id, name, color, side) VALUES ('team-right', 'session-1', 'Right', '#ff0000', 'right') ON CONFLICT DO NOTHING`)
	exec(`INSERT INTO students (id, session_id, nickname, team_id, status) VALUES ('student-right', 'session-1', 'Righty', 'team-right', 'connected') ON CONFLICT DO NOTHING`)
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
