package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/eatthat/eatthat/internal/app"
	"github.com/eatthat/eatthat/internal/auth"
	jobmetrics "github.com/eatthat/eatthat/internal/jobs"
	"github.com/eatthat/eatthat/internal/platform/cache"
	"github.com/eatthat/eatthat/internal/platform/db"
	"github.com/eatthat/eatthat/internal/rbac"
	"github.com/eatthat/eatthat/internal/users"
	"github.com/eatthat/eatthat/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobMetrics := jobmetrics.NewMetrics(nil)

	rbacRepo := rbac.NewRepository(pool)
	registry := rbac.NewRegistry(redisClient, rbacRepo, cfg.PermissionCacheTTL)
	registry.InstrumentWith(rbac.NewCacheMetrics(nil))

	usersRepo := users.NewRepository(pool)
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(usersRepo, authRepo)

	warmupJob := jobs.NewPermissionCacheWarmupJob(registry, logger, jobMetrics)
	sweepJob := jobs.NewSessionSweepJob(authService, logger, jobMetrics)

	sweepTask, err := jobs.NewSessionSweepTask(jobs.SessionSweepPayload{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionCacheWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskSessionSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: jobs.NewPermissionCacheWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
