package passwords

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
	"github.com/odyssey-erp/odyssey-accounts/internal/users"
)

// Accounts is the slice of the users service the password flows need.
type Accounts interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	UpdateWithPassword(ctx context.Context, user *users.User, in users.ChangePasswordInput) (*users.User, error)
	ResetPassword(ctx context.Context, id int64, password, confirmation string) (*users.User, error)
}

// Notifier delivers reset instructions to the account owner.
type Notifier interface {
	SendResetInstructions(ctx context.Context, email, token string) error
}

// Service implements password change and token based reset.
type Service struct {
	accounts Accounts
	tokens   *TokenStore
	notifier Notifier
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(accounts Accounts, tokens *TokenStore, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{accounts: accounts, tokens: tokens, notifier: notifier, logger: logger}
}

// RequestReset issues a token for the account registered with email and sends
// it out. Unknown addresses succeed silently.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return shared.FieldErrors{"email": "can't be blank"}
	}
	user, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return err
	}
	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := s.notifier.SendResetInstructions(ctx, user.Email, token); err != nil {
		s.revoke(ctx, user.ID)
		return fmt.Errorf("passwords: send instructions: %w", err)
	}
	return nil
}

// Change updates the password of an already authenticated user. The current
// password must be supplied; no reset token is involved.
func (s *Service) Change(ctx context.Context, user *users.User, in users.ChangePasswordInput) (*users.User, error) {
	updated, err := s.accounts.UpdateWithPassword(ctx, user, in)
	if err != nil {
		return nil, err
	}
	s.revoke(ctx, updated.ID)
	return updated, nil
}

// ResetWithToken updates the password of the user token was issued for. The
// token is claimed before the update, so concurrent resets with the same token
// cannot both succeed. A failed update puts the token back.
func (s *Service) ResetWithToken(ctx context.Context, token, password, confirmation string) (*users.User, error) {
	userID, ttl, err := s.tokens.Claim(ctx, token)
	if err != nil {
		return nil, err
	}
	updated, err := s.accounts.ResetPassword(ctx, userID, password, confirmation)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.revoke(ctx, userID)
			return nil, shared.ErrInvalidToken
		}
		if rerr := s.tokens.Restore(ctx, token, userID, ttl); rerr != nil {
			s.logger.Warn("restore reset token", slog.Int64("user_id", userID), slog.Any("error", rerr))
		}
		return nil, err
	}
	s.revoke(ctx, updated.ID)
	return updated, nil
}

func (s *Service) revoke(ctx context.Context, userID int64) {
	if err := s.tokens.RevokeUser(ctx, userID); err != nil {
		s.logger.Warn("revoke reset token", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}
