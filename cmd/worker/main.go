package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/molarlink/molarlink/internal/analytics"
	"github.com/molarlink/molarlink/internal/app"
	"github.com/molarlink/molarlink/internal/platform/cache"
	"github.com/molarlink/molarlink/internal/platform/db"
	"github.com/molarlink/molarlink/jobs"
)

const analyticsCacheTTL = 10 * time.Minute

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

	mailer, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailer.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	analyticsRepo := analytics.NewRepository(pool)
	analyticsCache := analytics.NewCache(redisClient, analyticsCacheTTL)
	analyticsService := analytics.NewService(analyticsRepo, analyticsCache)

	reminderJob := jobs.NewReferralReminderJob(pool, mailer, logger, nil)
	warmupJob := jobs.NewAnalyticsWarmupJob(analyticsService, logger, nil)
	sweepJob := jobs.NewBindingSweepJob(pool, redisClient, logger, nil)

	reminderTask, err := jobs.NewReferralReminderTask(0)
	if err != nil {
		logger.Error("build reminder task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewAnalyticsWarmupTask()
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask, err := jobs.NewBindingSweepTask(0)
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReferralReminder, Handler: reminderJob.Handle},
			{Type: jobs.TaskAnalyticsWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskBindingSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 8 * * *", Task: reminderTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/30 * * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 2 * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
