package jobs

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hibiken/asynq"
)

// Enqueuer submits mail tasks.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// ResetMailer queues password reset instructions.
type ResetMailer struct {
	enqueuer Enqueuer
	baseURL  string
	from     string
}

// NewResetMailer builds a ResetMailer linking to baseURL.
func NewResetMailer(enqueuer Enqueuer, baseURL, from string) *ResetMailer {
	return &ResetMailer{enqueuer: enqueuer, baseURL: strings.TrimRight(baseURL, "/"), from: from}
}

// SendResetInstructions enqueues the reset mail for email carrying token.
func (m *ResetMailer) SendResetInstructions(ctx context.Context, email, token string) error {
	if m == nil || m.enqueuer == nil {
		return fmt.Errorf("jobs: reset mailer not configured")
	}
	link := m.ResetLink(token)
	body := fmt.Sprintf("Hello %s!\n\nSomeone has requested a link to change your password. You can do this through the link below.\n\n%s\n\nIf you didn't request this, please ignore this email.\nYour password won't change until you access the link above and create a new one.\n", email, link)
	_, err := m.enqueuer.EnqueueSendEmail(ctx, SendEmailPayload{
		Kind:    MailKindPasswordReset,
		From:    m.from,
		To:      email,
		Subject: "Reset password instructions",
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("jobs: enqueue reset mail: %w", err)
	}
	return nil
}

// ResetLink returns the edit page URL carrying token.
func (m *ResetMailer) ResetLink(token string) string {
	q := url.Values{}
	q.Set("reset_password_token", token)
	return m.baseURL + "/password/edit?" + q.Encode()
}
