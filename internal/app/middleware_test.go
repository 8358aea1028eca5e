package app

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMethodOverride(t *testing.T) {
	cases := map[string]string{
		"put":    http.MethodPut,
		"PATCH":  http.MethodPatch,
		"delete": http.MethodDelete,
		"get":    http.MethodPost,
		"":       http.MethodPost,
	}
	for field, want := range cases {
		var got string
		handler := MethodOverride(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Method
		}))
		body := url.Values{MethodOverrideField: {field}}.Encode()
		req := httptest.NewRequest(http.MethodPost, "/registration", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, want, got, "field %q", field)
	}
}

func TestMethodOverrideIgnoresGet(t *testing.T) {
	var got string
	handler := MethodOverride(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Method
	}))
	req := httptest.NewRequest(http.MethodGet, "/registration?_method=delete", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, http.MethodGet, got)
}

func TestSecureHeaders(t *testing.T) {
	app := newTestApp(t)
	resp, err := http.Get(app.server.URL + "/healthz")
	if !assert.NoError(t, err) {
		return
	}
	defer resp.Body.Close()
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))
}

func TestMissingCSRFTokenForbidden(t *testing.T) {
	app := newTestApp(t)
	resp, err := http.PostForm(app.server.URL+"/session", url.Values{"email": {"em@i.l"}})
	if !assert.NoError(t, err) {
		return
	}
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
