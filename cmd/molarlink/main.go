package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/molarlink/molarlink/internal/analytics"
	analytichttp "github.com/molarlink/molarlink/internal/analytics/http"
	"github.com/molarlink/molarlink/internal/app"
	"github.com/molarlink/molarlink/internal/auth"
	"github.com/molarlink/molarlink/internal/authz"
	"github.com/molarlink/molarlink/internal/billing"
	"github.com/molarlink/molarlink/internal/network"
	"github.com/molarlink/molarlink/internal/observability"
	"github.com/molarlink/molarlink/internal/platform/cache"
	"github.com/molarlink/molarlink/internal/platform/db"
	"github.com/molarlink/molarlink/internal/referrals"
	"github.com/molarlink/molarlink/internal/shared"
	"github.com/molarlink/molarlink/internal/users"
	"github.com/molarlink/molarlink/jobs"
)

const analyticsCacheTTL = 10 * time.Minute

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

	sessionManager := shared.NewSessionManager(redisClient, "molarlink_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	authzStore := authz.NewPGStore(dbpool)
	catalog := authz.NewCatalog(authzStore)
	if err := catalog.LoadPersisted(ctx); err != nil {
		logger.Warn("load persisted roles", slog.Any("error", err))
	}
	binder := authz.NewBinder(authz.BinderConfig{
		Catalog:  catalog,
		Store:    authzStore,
		Cache:    redisClient,
		CacheTTL: cfg.AuthzCacheTTL,
		Root:     authz.RootIdentity{Email: cfg.AuthzRootEmail, UserID: cfg.AuthzRootUserID},
		Logger:   logger,
	})
	guard := authz.Guard{
		Evaluator: binder.Evaluator(),
		Logger:    logger,
		Observer: func(d authz.Decision) {
			switch d {
			case authz.DecisionAllow:
				metrics.ObserveAuthzDecision("allow")
			case authz.DecisionDeny:
				metrics.ObserveAuthzDecision("deny")
			default:
				metrics.ObserveAuthzDecision("resolving")
			}
		},
	}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, binder, sessionManager, csrfManager)
	principalResolver := &auth.PrincipalResolver{Binder: binder, Logger: logger}

	authzHandler := authz.NewHandler(logger, catalog, binder, guard, auditLogger)

	referralRepo := referrals.NewRepository(dbpool)
	referralService := referrals.NewService(referralRepo, binder.Evaluator(), logger)
	referralHandler := referrals.NewHandler(logger, referralService, guard)

	networkRepo := network.NewRepository(dbpool)
	networkService := network.NewService(networkRepo, logger)
	networkHandler := network.NewHandler(logger, networkService, guard)

	analyticsRepo := analytics.NewRepository(dbpool)
	analyticsCache := analytics.NewCache(redisClient, analyticsCacheTTL)
	analyticsService := analytics.NewService(analyticsRepo, analyticsCache)
	analyticsHandler := analytichttp.NewHandler(logger, analyticsService, guard)
	go func() {
		if err := analyticsCache.ListenForInvalidation(ctx, ""); err != nil && ctx.Err() == nil {
			logger.Warn("analytics invalidation listener", slog.Any("error", err))
		}
	}()

	billingRepo := billing.NewRepository(dbpool)
	billingService := billing.NewService(billingRepo, binder, logger)
	billingHandler := billing.NewHandler(logger, billingService, guard)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, binder, logger)
	usersHandler := users.NewHandler(logger, usersService, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		Metrics:           metrics,
		PrincipalResolver: principalResolver,
		AuthHandler:       authHandler,
		AuthzHandler:      authzHandler,
		ReferralsHandler:  referralHandler,
		NetworkHandler:    networkHandler,
		AnalyticsHandler:  analyticsHandler,
		BillingHandler:    billingHandler,
		UsersHandler:      usersHandler,
		JobHandler:        jobHandler,
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
