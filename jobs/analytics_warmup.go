package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/molarlink/molarlink/internal/analytics"
	jobmetrics "github.com/molarlink/molarlink/internal/jobs"
)

const warmupTimeout = 30 * time.Second

// AnalyticsWarmupJob precomputes the dashboard aggregates so the first view
// after a cache invalidation stays fast.
type AnalyticsWarmupJob struct {
	Analytics *analytics.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewAnalyticsWarmupJob wires dependencies for the warmup handler.
func NewAnalyticsWarmupJob(svc *analytics.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnalyticsWarmupJob {
	return &AnalyticsWarmupJob{Analytics: svc, Logger: logger, Metrics: metrics}
}

// Handle processes analytics warmup tasks.
func (j *AnalyticsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Analytics == nil {
		return errors.New("analytics warmup: handler not configured")
	}

	tracker := j.metrics().Track(TaskAnalyticsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting analytics warmup")

	warmCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()

	start := time.Now()
	if err := j.Analytics.Warm(warmCtx); err != nil {
		resultErr = err
		logger.Error("analytics warmup", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed analytics warmup", slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *AnalyticsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAnalyticsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskAnalyticsWarmup))
}

func (j *AnalyticsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
