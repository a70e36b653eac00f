package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/PetoAdam/homenavi/readings-service/internal/auth"
	"github.com/PetoAdam/homenavi/readings-service/internal/config"
	"github.com/PetoAdam/homenavi/readings-service/internal/httpapi"
	"github.com/PetoAdam/homenavi/readings-service/internal/jobs"
	"github.com/PetoAdam/homenavi/readings-service/internal/logging"
	"github.com/PetoAdam/homenavi/readings-service/internal/observability"
	"github.com/PetoAdam/homenavi/readings-service/internal/ratelimit"
	"github.com/PetoAdam/homenavi/readings-service/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDB(cfg)
	if err != nil {
		slog.Error("db connect failed", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	tel, err := observability.Setup(ctx, cfg.OTel.Endpoint)
	if err != nil {
		slog.Error("observability setup failed", "error", err)
		os.Exit(1)
	}

	toucher := auth.NewToucher(repo, cfg.Auth.TouchQueueSize)
	gate := auth.NewGate(repo, toucher, cfg.Auth.Header)

	opts := httpapi.Options{
		RouteRoles:                cfg.Routes,
		AllowBatchAccounts:        cfg.Accounts.AllowBatchCreate,
		PrecipitationWindowMonths: cfg.Reports.PrecipitationWindowMonths,
		AllowedOrigins:            cfg.CORS.AllowedOrigins,
		Telemetry:                 tel,
	}
	var redisClient *redis.Client
	limit := ratelimit.Config{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst}
	if cfg.RateLimit.Enabled && limit.Enabled() {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, rate limiter will fail open", "addr", cfg.Redis.Addr, "error", err)
		}
		opts.Limiter = ratelimit.NewRedisBucket(redisClient, "readings-service:rl", limit)
	}

	var cleanup *jobs.Cleanup
	if cfg.Accounts.CleanupSchedule != "" {
		cleanup, err = jobs.NewCleanup(repo, cfg.Accounts.CleanupSchedule, cfg.Accounts.InactiveDays)
		if err != nil {
			slog.Error("invalid cleanup schedule", "error", err)
			os.Exit(1)
		}
		cleanup.Start()
		slog.Info("inactive account cleanup scheduled", "schedule", cfg.Accounts.CleanupSchedule, "days", cfg.Accounts.InactiveDays)
	}

	srv, err := httpapi.New(repo, gate, opts)
	if err != nil {
		slog.Error("invalid route configuration", "error", err)
		os.Exit(1)
	}
	httpSrv := &http.Server{Addr: ":" + cfg.HTTP.Port, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("readings-service listening", "addr", httpSrv.Addr, "driver", cfg.Database.Driver)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		slog.Info("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	if cleanup != nil {
		cleanup.Stop()
	}
	toucher.Close()
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown failed", "error", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Database.Driver == "sqlite" {
		return store.OpenSQLite(cfg.Database.SQLitePath)
	}
	return store.OpenPostgres(store.PostgresConfig{
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DB,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		SSLMode:  cfg.Postgres.SSLMode,
	})
}
