package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
	"github.com/odyssey-erp/odyssey-accounts/internal/users"
)

// UserFinder looks up accounts for credential checks and session resolution.
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*users.User, error)
	FindByEmail(ctx context.Context, email string) (*users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	users    UserFinder
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
	now      func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, finder UserFinder, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Service {
	return &Service{repo: repo, users: finder, sessions: sessions, csrf: csrf, now: time.Now}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, shared.ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !users.VerifyPassword(user.PasswordHash, password) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// SignIn binds sess to user under a fresh session id and records it.
func (s *Service) SignIn(ctx context.Context, r *http.Request, sess *shared.Session, user *users.User) error {
	if sess == nil || user == nil {
		return errors.New("auth: sign in without session or user")
	}
	s.sessions.Renew(sess)
	s.csrf.Rotate(sess)
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	sess.Set(stampSessionKey, user.AuthStamp())

	now := s.now()
	return s.repo.CreateSession(ctx, SessionRecord{
		ID:        sess.ID,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessions.TTL()),
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
}

// BypassSignIn keeps sess signed in as user after user's credentials changed,
// without renewing the session or asking for the password again.
func (s *Service) BypassSignIn(sess *shared.Session, user *users.User) {
	if sess == nil || user == nil {
		return
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	sess.Set(stampSessionKey, user.AuthStamp())
}

// SignOut forgets the session record and destroys the session.
func (s *Service) SignOut(ctx context.Context, sess *shared.Session) error {
	if sess == nil {
		return nil
	}
	var err error
	if sess.User() != "" {
		err = s.repo.DeleteSession(ctx, sess.ID)
	}
	s.sessions.Destroy(sess)
	return err
}

// CurrentUser resolves the user bound to sess. Sessions pointing at a deleted
// account or signed in under an older password are signed out and yield nil.
func (s *Service) CurrentUser(ctx context.Context, sess *shared.Session) (*users.User, error) {
	if sess == nil || sess.User() == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		s.forget(sess)
		return nil, nil
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.forget(sess)
			return nil, nil
		}
		return nil, err
	}
	if sess.Get(stampSessionKey) != user.AuthStamp() {
		s.forget(sess)
		return nil, nil
	}
	return user, nil
}

// Sessions lists the recorded sign-ins of a user.
func (s *Service) Sessions(ctx context.Context, userID int64) ([]SessionRecord, error) {
	return s.repo.ListSessions(ctx, userID)
}

func (s *Service) forget(sess *shared.Session) {
	sess.SetUser("")
	sess.Delete(stampSessionKey)
}
