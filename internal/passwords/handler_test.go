package passwords

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-accounts/internal/auth"
	"github.com/odyssey-erp/odyssey-accounts/internal/platform/db"
	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
	"github.com/odyssey-erp/odyssey-accounts/internal/users"
	"github.com/odyssey-erp/odyssey-accounts/internal/view"
	_ "github.com/odyssey-erp/odyssey-accounts/testing"
)

type captureNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
	err    error
}

func (n *captureNotifier) SendResetInstructions(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	if n.tokens == nil {
		n.tokens = map[string]string{}
	}
	n.tokens[email] = token
	return nil
}

func (n *captureNotifier) token(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[email]
}

type fixture struct {
	users    *users.Service
	auth     *auth.Service
	service  *Service
	tokens   *TokenStore
	notifier *captureNotifier
	handler  *Handler
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := db.NewSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.MigrateSQLite(ctx, conn.DB, nil))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	csrf := shared.NewCSRFManager("csrf")
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	userService := users.NewService(users.NewSQLiteRepository(conn), users.PasswordPolicy{}).WithHashCost(bcrypt.MinCost)
	authService := auth.NewService(auth.NewSQLiteRepository(conn), userService, sessions, csrf)
	tokens := NewTokenStore(client, time.Hour)
	notifier := &captureNotifier{}
	service := NewService(userService, tokens, notifier, logger)

	engine, err := view.NewEngine()
	require.NoError(t, err)
	responder := view.Responder{Templates: engine, CSRF: csrf, Logger: logger}

	return fixture{
		users:    userService,
		auth:     authService,
		service:  service,
		tokens:   tokens,
		notifier: notifier,
		handler:  NewHandler(logger, service, authService, responder, nil),
		redis:    mr,
	}
}

func (f fixture) register(t *testing.T) *users.User {
	t.Helper()
	user, err := f.users.Register(context.Background(), users.RegisterInput{Name: "Em", Email: "em@i.l", Password: "passwd"})
	require.NoError(t, err)
	return user
}

func (f fixture) signIn(t *testing.T, user *users.User) *shared.Session {
	t.Helper()
	sess := &shared.Session{ID: "sid"}
	require.NoError(t, f.auth.SignIn(context.Background(), httptest.NewRequest(http.MethodPost, "/", nil), sess, user))
	return sess
}

func (f fixture) serve(t *testing.T, sess *shared.Session, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	r.Use(auth.LoadUser(f.auth, logger))
	r.Route("/password", f.handler.MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func (f fixture) storedHash(t *testing.T, id int64) string {
	t.Helper()
	user, err := f.users.FindByID(context.Background(), id)
	require.NoError(t, err)
	return user.PasswordHash
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAnonymousUpdateWithoutTokenIsRejected(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)

	for _, token := range []string{"", "bogus"} {
		rec := f.serve(t, &shared.Session{ID: "anon"}, formRequest(http.MethodPut, "/password", url.Values{
			"reset_password_token":  {token},
			"password":              {"changed_pw"},
			"password_confirmation": {"changed_pw"},
		}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "is invalid")
		assert.Equal(t, user.PasswordHash, f.storedHash(t, user.ID))
	}
}

func TestAnonymousResetWithToken(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)

	rec := f.serve(t, &shared.Session{ID: "anon"}, formRequest(http.MethodPost, "/password", url.Values{"email": {"em@i.l"}}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.LoginPath, rec.Header().Get("Location"))
	token := f.notifier.token("em@i.l")
	require.NotEmpty(t, token)

	rec = f.serve(t, &shared.Session{ID: "anon"}, httptest.NewRequest(http.MethodGet, "/password/edit?reset_password_token="+url.QueryEscape(token), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="reset_password_token"`)

	mismatch := f.serve(t, &shared.Session{ID: "anon"}, formRequest(http.MethodPatch, "/password", url.Values{
		"reset_password_token":  {token},
		"password":              {"changed_pw"},
		"password_confirmation": {"other_pw"},
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, mismatch.Code)
	assert.Equal(t, user.PasswordHash, f.storedHash(t, user.ID))

	sess := &shared.Session{ID: "anon"}
	rec = f.serve(t, sess, formRequest(http.MethodPut, "/password", url.Values{
		"reset_password_token":  {token},
		"password":              {"changed_pw"},
		"password_confirmation": {"changed_pw"},
	}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.LoginPath, rec.Header().Get("Location"))
	assert.Empty(t, sess.User())
	assert.True(t, users.VerifyPassword(f.storedHash(t, user.ID), "changed_pw"))

	reuse := f.serve(t, &shared.Session{ID: "anon"}, formRequest(http.MethodPut, "/password", url.Values{
		"reset_password_token":  {token},
		"password":              {"another_pw"},
		"password_confirmation": {"another_pw"},
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, reuse.Code)
}

func TestAnonymousEditWithoutTokenRedirects(t *testing.T) {
	f := newFixture(t)
	sess := &shared.Session{ID: "anon"}

	rec := f.serve(t, sess, httptest.NewRequest(http.MethodGet, "/password/edit", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.LoginPath, rec.Header().Get("Location"))
	require.NotNil(t, sess.PopFlash())
}

func TestResetRequestIsParanoid(t *testing.T) {
	f := newFixture(t)

	rec := f.serve(t, &shared.Session{ID: "anon"}, formRequest(http.MethodPost, "/password", url.Values{"email": {"ghost@i.l"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.LoginPath, rec.Header().Get("Location"))
	assert.Empty(t, f.notifier.token("ghost@i.l"))

	rec = f.serve(t, &shared.Session{ID: "anon"}, formRequest(http.MethodPost, "/password", url.Values{"email": {"  "}}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "can&#39;t be blank")
}

func TestResetRequestNotifierFailure(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	f.notifier.err = errors.New("queue down")

	err := f.service.RequestReset(context.Background(), "em@i.l")
	assert.Error(t, err)
	for _, key := range f.redis.Keys() {
		assert.False(t, strings.HasPrefix(key, "password_reset"), "token left behind: %s", key)
	}
}

// reenteringAccounts runs a second reset with the same token while the first
// one is still updating the password.
type reenteringAccounts struct {
	Accounts
	service *Service
	token   string
	inner   error
}

func (a *reenteringAccounts) ResetPassword(ctx context.Context, id int64, password, confirmation string) (*users.User, error) {
	if a.token != "" {
		token := a.token
		a.token = ""
		_, a.inner = a.service.ResetWithToken(ctx, token, "other_pw", "other_pw")
	}
	return a.Accounts.ResetPassword(ctx, id, password, confirmation)
}

func TestOverlappingResetsShareOneToken(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)
	token, err := f.tokens.Issue(context.Background(), user.ID)
	require.NoError(t, err)

	accounts := &reenteringAccounts{Accounts: f.users, token: token}
	accounts.service = NewService(accounts, f.tokens, f.notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err = accounts.service.ResetWithToken(context.Background(), token, "changed_pw", "changed_pw")
	require.NoError(t, err)
	assert.ErrorIs(t, accounts.inner, shared.ErrInvalidToken)
	assert.True(t, users.VerifyPassword(f.storedHash(t, user.ID), "changed_pw"))
}

func TestMultibytePasswordChangeIsValidationError(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)
	sess := f.signIn(t, user)
	long := strings.Repeat("é", 40)

	rec := f.serve(t, sess, formRequest(http.MethodPut, "/password", url.Values{
		"current_password":      {"passwd"},
		"password":              {long},
		"password_confirmation": {long},
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "is too long (maximum is 72 bytes)")
	assert.Equal(t, user.PasswordHash, f.storedHash(t, user.ID))

	token, err := f.tokens.Issue(context.Background(), user.ID)
	require.NoError(t, err)
	rec = f.serve(t, &shared.Session{ID: "anon"}, formRequest(http.MethodPut, "/password", url.Values{
		"reset_password_token":  {token},
		"password":              {long},
		"password_confirmation": {long},
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	_, err = f.tokens.Lookup(context.Background(), token)
	assert.NoError(t, err, "rejected reset keeps the token usable")
}

func TestAuthenticatedEditNeedsNoToken(t *testing.T) {
	f := newFixture(t)
	sess := f.signIn(t, f.register(t))

	rec := f.serve(t, sess, httptest.NewRequest(http.MethodGet, "/password/edit", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="current_password"`)
	assert.NotContains(t, rec.Body.String(), `name="reset_password_token"`)
}

func TestAuthenticatedChangeKeepsSession(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)
	sess := f.signIn(t, user)
	sessionID := sess.ID

	rec := f.serve(t, sess, formRequest(http.MethodPut, "/password", url.Values{
		"current_password":      {"passwd"},
		"password":              {"changed_pw"},
		"password_confirmation": {"changed_pw"},
	}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.RootPath, rec.Header().Get("Location"))
	assert.Equal(t, sessionID, sess.ID)

	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Password changed!", flash.Message)

	current, err := f.auth.CurrentUser(context.Background(), sess)
	require.NoError(t, err)
	require.NotNil(t, current)

	_, err = f.auth.Authenticate(context.Background(), "em@i.l", "passwd")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = f.auth.Authenticate(context.Background(), "em@i.l", "changed_pw")
	assert.NoError(t, err)
}

func TestAuthenticatedChangeFailures(t *testing.T) {
	cases := map[string]url.Values{
		"wrong current":   {"current_password": {"nope"}, "password": {"changed_pw"}, "password_confirmation": {"changed_pw"}},
		"missing current": {"password": {"changed_pw"}, "password_confirmation": {"changed_pw"}},
		"mismatch":        {"current_password": {"passwd"}, "password": {"changed_pw"}, "password_confirmation": {"other_pw"}},
	}
	for name, form := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			user := f.register(t)
			sess := f.signIn(t, user)

			rec := f.serve(t, sess, formRequest(http.MethodPatch, "/password", form))
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Contains(t, rec.Body.String(), "Failed to change password")
			assert.Equal(t, user.PasswordHash, f.storedHash(t, user.ID))

			current, err := f.auth.CurrentUser(context.Background(), sess)
			require.NoError(t, err)
			assert.NotNil(t, current)
		})
	}
}

func TestAuthenticatedChangeRevokesResetToken(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)
	require.NoError(t, f.service.RequestReset(context.Background(), "em@i.l"))
	token := f.notifier.token("em@i.l")

	_, err := f.service.Change(context.Background(), user, users.ChangePasswordInput{
		CurrentPassword: "passwd", Password: "changed_pw", PasswordConfirmation: "changed_pw",
	})
	require.NoError(t, err)

	_, err = f.tokens.Lookup(context.Background(), token)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestResetForDeletedAccount(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)
	token, err := f.tokens.Issue(context.Background(), user.ID)
	require.NoError(t, err)
	require.NoError(t, f.users.Delete(context.Background(), user.ID))

	_, err = f.service.ResetWithToken(context.Background(), token, "changed_pw", "changed_pw")
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestSignedInNewFormRedirects(t *testing.T) {
	f := newFixture(t)
	sess := f.signIn(t, f.register(t))

	rec := f.serve(t, sess, httptest.NewRequest(http.MethodGet, "/password/new", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.RootPath, rec.Header().Get("Location"))
}
