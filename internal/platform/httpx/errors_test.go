package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
)

func TestRespondErrorStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("users: get: %w", shared.ErrNotFound), http.StatusNotFound},
		{"duplicate", shared.ErrDuplicate, http.StatusConflict},
		{"credentials", shared.ErrInvalidCredentials, http.StatusUnprocessableEntity},
		{"token", shared.ErrInvalidToken, http.StatusUnprocessableEntity},
		{"csrf", shared.ErrCSRFTokenMismatch, http.StatusForbidden},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)
			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestRespondErrorFieldErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.FieldErrors{"email": "has already been taken"})

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var body ValidationProblem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "has already been taken", body.Errors["email"])
	assert.Equal(t, http.StatusUnprocessableEntity, body.Status)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("pq: password authentication failed"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Empty(t, body.Detail)
}
