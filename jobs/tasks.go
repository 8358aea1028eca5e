package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskSessionsPurge removes expired session records.
	TaskSessionsPurge = "sessions:purge"
)

// Mail kinds carried in SendEmailPayload.Kind.
const (
	MailKindPasswordReset = "password_reset"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	Kind    string `json:"kind,omitempty"`
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if payload.To == "" {
		return nil, fmt.Errorf("jobs: send email: recipient required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// SessionsPurgePayload carries options for the purge job.
type SessionsPurgePayload struct {
	DryRun bool `json:"dry_run,omitempty"`
}

// NewSessionsPurgeTask builds a purge task.
func NewSessionsPurgeTask() (*asynq.Task, error) {
	body, err := json.Marshal(SessionsPurgePayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionsPurge, body, asynq.Queue(QueueDefault)), nil
}
