package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-accounts/internal/jobs"
)

// MailJob handles TaskTypeSendEmail. Delivery is logged only; no SMTP relay is wired.
type MailJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMailJob constructs the mail handler.
func NewMailJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *MailJob {
	return &MailJob{Logger: logger, Metrics: metrics}
}

// Handle processes one mail task.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("mail: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		j.logger().Warn("dropping mail without recipient", slog.String("subject", payload.Subject))
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskTypeSendEmail)
	j.logger().Info("mail delivered",
		slog.String("kind", payload.Kind),
		slog.String("from", payload.From),
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject),
		slog.Int("body_bytes", len(payload.Body)),
	)
	j.Metrics.MailHandled(payload.Kind)
	return tracker.End(nil)
}

func (j *MailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeSendEmail))
	}
	return slog.Default().With(slog.String("job", TaskTypeSendEmail))
}
