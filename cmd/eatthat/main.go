package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/eatthat/eatthat/internal/app"
	"github.com/eatthat/eatthat/internal/auth"
	"github.com/eatthat/eatthat/internal/observability"
	"github.com/eatthat/eatthat/internal/platform/cache"
	"github.com/eatthat/eatthat/internal/platform/db"
	"github.com/eatthat/eatthat/internal/rbac"
	"github.com/eatthat/eatthat/internal/restaurants"
	"github.com/eatthat/eatthat/internal/shared"
	"github.com/eatthat/eatthat/internal/users"
	"github.com/eatthat/eatthat/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "eatthat_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	rbacRepo := rbac.NewRepository(dbpool)
	registry := rbac.NewRegistry(redisClient, rbacRepo, cfg.PermissionCacheTTL)
	registry.InstrumentWith(rbac.NewCacheMetrics(metrics.Registerer()))
	rbacService := rbac.NewService(rbacRepo, registry, auditLogger, logger)

	restaurantsRepo := restaurants.NewRepository(dbpool)
	restaurantsService := restaurants.NewService(restaurantsRepo, logger)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, rbacService, logger)

	evaluator := rbac.NewEvaluator(rbacService, restaurantsRepo, logger)
	rbacMiddleware := rbac.Middleware{Evaluator: evaluator, Members: usersService, Scopes: restaurantsRepo, Logger: logger}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(usersRepo, authRepo)

	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)
	restaurantsHandler := restaurants.NewHandler(logger, restaurantsService, rbacMiddleware)
	rbacHandler := rbac.NewHandler(logger, rbacService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Metrics:            metrics,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		RestaurantsHandler: restaurantsHandler,
		RBACHandler:        rbacHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
