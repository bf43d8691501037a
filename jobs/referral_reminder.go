package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/molarlink/molarlink/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const defaultStaleAfterDays = 3

// ReferralReminderJob finds referrals that have sat in "sent" without a
// provider response and queues reminder emails for the receiving provider.
type ReferralReminderJob struct {
	Pool    *pgxpool.Pool
	Mailer  *Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReferralReminderJob wires dependencies for the reminder handler.
func NewReferralReminderJob(pool *pgxpool.Pool, mailer *Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReferralReminderJob {
	return &ReferralReminderJob{
		Pool:    pool,
		Mailer:  mailer,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type staleReferral struct {
	ID            string
	PatientName   string
	ProviderEmail string
	SentFor       time.Duration
}

// Handle processes referral reminder tasks.
func (j *ReferralReminderJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("referral reminder: handler not configured")
	}
	var payload ReferralReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.StaleAfterDays <= 0 {
		payload.StaleAfterDays = defaultStaleAfterDays
	}

	tracker := j.metrics().Track(TaskReferralReminder)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("stale_after_days", payload.StaleAfterDays))
	logger.Info("starting referral reminder scan")

	stale, err := j.fetchStale(ctx, payload.StaleAfterDays)
	if err != nil {
		resultErr = err
		logger.Error("load stale referrals", slog.Any("error", err))
		return resultErr
	}
	if len(stale) == 0 {
		logger.Info("no stale referrals found")
		return resultErr
	}

	reminded := 0
	for _, ref := range stale {
		if ref.ProviderEmail == "" {
			continue
		}
		if j.Mailer != nil {
			_, err := j.Mailer.EnqueueSendEmail(ctx, SendEmailPayload{
				To:      ref.ProviderEmail,
				Subject: "Referral awaiting your response",
				Body:    "A referral for " + ref.PatientName + " has been waiting " + ref.SentFor.Round(time.Hour).String() + ".",
			})
			if err != nil {
				resultErr = err
				logger.Error("enqueue reminder", slog.String("referral_id", ref.ID), slog.Any("error", err))
				return resultErr
			}
		}
		reminded++
	}

	logger.Info("completed referral reminder scan",
		slog.Int("stale", len(stale)),
		slog.Int("reminded", reminded))
	return resultErr
}

func (j *ReferralReminderJob) fetchStale(ctx context.Context, staleAfterDays int) ([]staleReferral, error) {
	if j.Pool == nil {
		return nil, errors.New("referral reminder: pool not configured")
	}
	cutoff := j.now().AddDate(0, 0, -staleAfterDays)
	rows, err := j.Pool.Query(ctx, `
		SELECT r.id, r.patient_name, COALESCE(p.email, ''), r.updated_at
		FROM referrals r
		LEFT JOIN providers p ON p.id = r.provider_id
		WHERE r.status = 'sent' AND r.updated_at < $1
		ORDER BY r.updated_at`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := j.now()
	var out []staleReferral
	for rows.Next() {
		var ref staleReferral
		var updatedAt time.Time
		if err := rows.Scan(&ref.ID, &ref.PatientName, &ref.ProviderEmail, &updatedAt); err != nil {
			return nil, err
		}
		ref.SentFor = now.Sub(updatedAt)
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (j *ReferralReminderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReferralReminder))
	}
	return slog.Default().With(slog.String("job", TaskReferralReminder))
}

func (j *ReferralReminderJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReferralReminderJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
