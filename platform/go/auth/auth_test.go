package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCredentialExtractorRoles(t *testing.T) {
	testCases := []struct {
		name    string
		claims  map[string]interface{}
		manager bool
	}{
		{
			name:    "roles array",
			claims:  map[string]interface{}{"uid": "u-1", "roles": []interface{}{"tenant", "manager"}},
			manager: true,
		},
		{
			name:    "single role claim",
			claims:  map[string]interface{}{"sub": "u-2", "role": "manager"},
			manager: true,
		},
		{
			name:    "isManager flag",
			claims:  map[string]interface{}{"user_id": "u-3", "isManager": true},
			manager: true,
		},
		{
			name:    "applicant",
			claims:  map[string]interface{}{"uid": "u-4", "email": "ana@example.com"},
			manager: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			creds, err := DefaultCredentialExtractor(tc.claims)
			require.NoError(t, err)
			require.Equal(t, tc.manager, creds.HasRole(RoleManager))
		})
	}
}

func TestDefaultCredentialExtractorNeedsSubject(t *testing.T) {
	_, err := DefaultCredentialExtractor(map[string]interface{}{"email": "ana@example.com"})
	require.Error(t, err)
}

func unsignedToken(payload string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`)) + "." +
		base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func TestJWTMiddleware(t *testing.T) {
	var seen *UserCredentials
	handler := JWT(UnsignedTokenVerifier(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+unsignedToken(`{"sub":"manager-1","roles":["manager"]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, "manager-1", seen.Id)
	require.True(t, seen.HasRole(RoleManager))

	seen = nil
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Nil(t, seen)
}

func TestJWTMiddlewareRejectsBadToken(t *testing.T) {
	verify := func(context.Context, string) (Claims, error) {
		return nil, errors.New("expired")
	}
	handler := JWT(verify, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := RequireRole(RoleManager)(ok)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &UserCredentials{Id: "tenant-1"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "requires the manager role")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &UserCredentials{Id: "m-1", Roles: []string{RoleManager}}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireUser(t *testing.T) {
	handler := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &UserCredentials{Id: "u-1"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
