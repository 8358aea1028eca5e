package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "test_session", "secret", time.Hour, false), srv
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	sm, srv := newTestManager(t)

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.Set("k", "v")
	sess.SetUser("42")
	sess.AddFlash(FlashMessage{Kind: FlashSuccess, Message: "hi"})

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	cookie := sessionCookie(t, rec, "test_session")
	require.NotNil(t, cookie)
	assert.Equal(t, sess.ID, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.True(t, srv.Exists("session:"+sess.ID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "v", loaded.Get("k"))
	assert.Equal(t, "42", loaded.User())

	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "hi", flash.Message)
	assert.Nil(t, loaded.PopFlash())
}

func TestFlashSurvivesRedirect(t *testing.T) {
	ctx := context.Background()
	sm, _ := newTestManager(t)

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodPost, "/", nil))
	require.NoError(t, err)
	sess.AddFlash(FlashMessage{Kind: FlashSuccess, Message: "Password changed!"})
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, httptest.NewRequest(http.MethodPost, "/", nil), sess))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sessionCookie(t, rec, "test_session"))
	next, err := sm.Load(ctx, req)
	require.NoError(t, err)
	msg := next.PopFlash()
	require.NotNil(t, msg)
	assert.Equal(t, "Password changed!", msg.Message)
}

func TestLoadIgnoresUnknownCookie(t *testing.T) {
	sm, _ := newTestManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "test_session", Value: "attacker-chosen"})
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "attacker-chosen", sess.ID)
	assert.Empty(t, sess.User())
}

func TestRenewMovesSessionToNewID(t *testing.T) {
	ctx := context.Background()
	sm, srv := newTestManager(t)

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.Set("k", "v")
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sessionCookie(t, rec, "test_session"))
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	oldID := loaded.ID

	sm.Renew(loaded)
	assert.NotEqual(t, oldID, loaded.ID)
	rec = httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, loaded))

	assert.False(t, srv.Exists("session:"+oldID))
	assert.True(t, srv.Exists("session:"+loaded.ID))
	assert.Equal(t, loaded.ID, sessionCookie(t, rec, "test_session").Value)
}

func TestDestroyExpiresCookie(t *testing.T) {
	ctx := context.Background()
	sm, srv := newTestManager(t)

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess))
	require.True(t, srv.Exists("session:"+sess.ID))

	sm.Destroy(sess)
	assert.True(t, sess.Destroyed())
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))

	assert.False(t, srv.Exists("session:"+sess.ID))
	cookie := sessionCookie(t, rec, "test_session")
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestSessionContext(t *testing.T) {
	assert.Nil(t, SessionFromContext(context.Background()))
	sess := &Session{ID: "abc"}
	assert.Same(t, sess, SessionFromContext(ContextWithSession(context.Background(), sess)))
}
