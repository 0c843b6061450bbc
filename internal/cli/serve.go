package cli

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ropequiz/internal/auth"
	"ropequiz/internal/config"
	"ropequiz/internal/host"
	"ropequiz/internal/infra/postgres"
	redisinfra "ropequiz/internal/infra/redis"
	"ropequiz/internal/logging"
	"ropequiz/internal/metrics"
	"ropequiz/internal/ratelimit"
	controlhttp "ropequiz/internal/transport/http"
	"ropequiz/internal/transport/ws"
)

// NewServeCmd starts the WebSocket + Control API server.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ropequiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg := config.Load()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	mx := metrics.New()

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	relational := postgres.New(pool, bunDB)
	cache := redisinfra.NewQuestionCache(redisClient, relational, cfg.Redis.StateTTL)
	storage := redisinfra.NewCachedStorage(cache, relational)
	stateStore := redisinfra.NewStateStore(redisClient, cfg.Redis.StateTTL)

	h := host.New(storage, stateStore, mx, logger, redisClient, cfg.Redis.LeaseTTL, cfg.Hibernate.IdleTimeout)
	if err := h.StartSweep(ctx, cfg.Hibernate.SweepInterval); err != nil {
		return err
	}
	defer h.StopSweep()

	verifier := auth.NewHMACVerifier(cfg.Auth.Secret)
	limiter := ratelimit.New(cfg.RateLimit.PerSecond)

	wsHandler := ws.NewHandler(h, verifier, limiter, mx, logger)
	control := controlhttp.NewControl(h, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(mx.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", wsHandler.ServeHTTP)
	mux.HandleFunc("POST /sessions/init", control.Init)
	mux.HandleFunc("POST /sessions/{id}/end", func(w http.ResponseWriter, r *http.Request) {
		control.End(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /sessions/{id}/state", func(w http.ResponseWriter, r *http.Request) {
		control.GetState(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /sessions/{id}/kick", func(w http.ResponseWriter, r *http.Request) {
		control.Kick(w, r, r.PathValue("id"))
	})

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting ropequiz server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
