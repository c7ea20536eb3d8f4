package core

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyguard/internal/types"
)

func TestAuthMiddleware_Failures(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		err        error
		wantCode   types.ErrorCode
		wantReason string
	}{
		{"missing token", "", nil, types.ErrCodeAuthRequired, ""},
		{"expired", "tok", types.NewAppError(types.ErrCodeAuthTokenExpired, "expired", nil), types.ErrCodeAuthTokenExpired, "token_expired"},
		{"invalid", "tok", types.NewAppError(types.ErrCodeAuthTokenInvalid, "bad", nil), types.ErrCodeAuthTokenInvalid, "token_invalid"},
		{"backend error", "tok", errors.New("db down"), types.ErrCodeAuthTokenInvalid, "resolution_error"},
		{"nil actor", "tok", nil, types.ErrCodeAuthTokenInvalid, "resolution_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authn := &MockAuthenticator{Err: tt.err}
			s, _, _ := newTestServer(t, authn)

			rec := do(s, http.MethodGet, "/v1/whoami", tt.token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, string(tt.wantCode), decodeError(t, rec).Code)
			if tt.wantReason == "" {
				assert.Empty(t, authn.Failures)
			} else {
				assert.Equal(t, []string{tt.wantReason}, authn.Failures)
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", extractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", extractBearerToken("bearer  abc "))
	assert.Empty(t, extractBearerToken("Basic abc"))
	assert.Empty(t, extractBearerToken("Bearer"))
}

func TestRequireRole_DeniesEmployeeAndAudits(t *testing.T) {
	s, _, auditor := newTestServer(t, &MockAuthenticator{Actor: employeeActor()})

	rec := do(s, http.MethodGet, "/v1/admin", "tok")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(types.ErrCodePermissionRole), decodeError(t, rec).Code)
	assert.Equal(t, []string{"emp-1 GET /v1/admin"}, auditor.Denied)
}

func TestRequireRole_AdminAllowed(t *testing.T) {
	s, _, auditor := newTestServer(t, &MockAuthenticator{Actor: adminActor()})

	rec := do(s, http.MethodGet, "/v1/admin", "tok")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, auditor.Denied)
}

func TestRequireRole_SystemActor(t *testing.T) {
	system := types.SystemActor()
	s, _, auditor := newTestServer(t, &MockAuthenticator{Actor: &system})

	rec := do(s, http.MethodGet, "/v1/admin", "machine")
	assert.Equal(t, http.StatusForbidden, rec.Code, "machine token is not an admin session")

	rec = do(s, http.MethodPost, "/v1/jobs/weather", "machine")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, auditor.Denied, 1)
}

func TestRequireUser(t *testing.T) {
	s, _, _ := newTestServer(t, &MockAuthenticator{ResolveTokenFunc: func(_ context.Context, token string) (*types.Actor, error) {
		if token == "machine" {
			a := types.SystemActor()
			return &a, nil
		}
		return employeeActor(), nil
	}})
	s.Router().With(s.RequireUser).Get("/mine", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/mine", "tok").Code)
	assert.Equal(t, http.StatusForbidden, do(s, http.MethodGet, "/mine", "machine").Code)
}

func TestRequireRole_NoActor(t *testing.T) {
	s, err := NewServer(testConfig(), testLogger())
	require.NoError(t, err)
	s.Router().With(s.RequireRole(types.RoleAdmin)).Get("/x", func(http.ResponseWriter, *http.Request) {})

	rec := do(s, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
