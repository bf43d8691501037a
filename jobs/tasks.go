package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskReferralReminder nudges providers about referrals sitting in "sent".
	TaskReferralReminder = "referrals:reminder"
	// TaskAnalyticsWarmup precomputes the dashboard aggregates.
	TaskAnalyticsWarmup = "analytics:warmup"
	// TaskBindingSweep drops orphaned role-binding cache entries.
	TaskBindingSweep = "authz:binding_sweep"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: integrate with SMTP once the notification service lands.
	fmt.Printf("[jobs] send email to %s subject=%s\n", payload.To, payload.Subject)
	return nil
}

// ReferralReminderPayload scopes a reminder scan.
type ReferralReminderPayload struct {
	StaleAfterDays int `json:"stale_after_days"`
}

// NewReferralReminderTask constructs a reminder scan task.
func NewReferralReminderTask(staleAfterDays int) (*asynq.Task, error) {
	data, err := json.Marshal(ReferralReminderPayload{StaleAfterDays: staleAfterDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReferralReminder, data), nil
}

// AnalyticsWarmupPayload is currently empty; the warmup always covers the
// platform-wide scope.
type AnalyticsWarmupPayload struct{}

// NewAnalyticsWarmupTask constructs a cache warmup task.
func NewAnalyticsWarmupTask() (*asynq.Task, error) {
	data, err := json.Marshal(AnalyticsWarmupPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsWarmup, data), nil
}

// BindingSweepPayload scopes a binding cache sweep.
type BindingSweepPayload struct {
	BatchSize int `json:"batch_size"`
}

// NewBindingSweepTask constructs a binding sweep task.
func NewBindingSweepTask(batchSize int) (*asynq.Task, error) {
	data, err := json.Marshal(BindingSweepPayload{BatchSize: batchSize})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBindingSweep, data), nil
}
