package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/molarlink/molarlink/internal/jobs"
)

const (
	bindingCachePrefix = "authz:binding:"
	defaultSweepBatch  = 100
)

// BindingSweepJob removes cached role bindings whose backing row no longer
// exists, so deleted users cannot resolve from a stale cache entry.
type BindingSweepJob struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBindingSweepJob wires dependencies for the sweep handler.
func NewBindingSweepJob(pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *BindingSweepJob {
	return &BindingSweepJob{Pool: pool, Redis: rdb, Logger: logger, Metrics: metrics}
}

// Handle processes binding sweep tasks.
func (j *BindingSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil || j.Redis == nil {
		return errors.New("binding sweep: handler not configured")
	}
	var payload BindingSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.BatchSize <= 0 {
		payload.BatchSize = defaultSweepBatch
	}

	tracker := j.metrics().Track(TaskBindingSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting binding cache sweep")

	scanned, dropped := 0, 0
	iter := j.Redis.Scan(ctx, 0, bindingCachePrefix+"*", int64(payload.BatchSize)).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		userID := strings.TrimPrefix(key, bindingCachePrefix)
		if userID == "" {
			continue
		}
		scanned++

		var exists bool
		err := j.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM user_bindings WHERE user_id = $1)`, userID).Scan(&exists)
		if err != nil {
			resultErr = err
			logger.Error("check binding row", slog.String("user_id", userID), slog.Any("error", err))
			return resultErr
		}
		if exists {
			continue
		}
		if err := j.Redis.Del(ctx, key).Err(); err != nil {
			resultErr = err
			logger.Error("drop orphaned binding", slog.String("user_id", userID), slog.Any("error", err))
			return resultErr
		}
		dropped++
	}
	if err := iter.Err(); err != nil {
		resultErr = err
		logger.Error("scan binding cache", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed binding cache sweep",
		slog.Int("scanned", scanned),
		slog.Int("dropped", dropped))
	return resultErr
}

func (j *BindingSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBindingSweep))
	}
	return slog.Default().With(slog.String("job", TaskBindingSweep))
}

func (j *BindingSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
