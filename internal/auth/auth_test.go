package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "studytrack-test"}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "user-1",
		"iss":   testConfig.Issuer,
		"name":  "Ada",
		"scope": "study:read study:write",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func TestParseExtractsUserAndScopes(t *testing.T) {
	claims, err := Parse(signToken(t, testConfig.Secret, validClaims()), testConfig)
	require.NoError(t, err)

	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "Ada", claims.Name)
	require.True(t, claims.HasScope(ScopeStudyRead))
	require.True(t, claims.HasScope(ScopeStudyWrite))
	require.False(t, claims.HasScope("admin"))
}

func TestParseAcceptsScopeList(t *testing.T) {
	raw := validClaims()
	delete(raw, "scope")
	raw["scopes"] = []string{ScopeStudyRead}

	claims, err := Parse(signToken(t, testConfig.Secret, raw), testConfig)
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopeStudyRead))
	require.False(t, claims.HasScope(ScopeStudyWrite))
}

func TestParseRejectsBadTokens(t *testing.T) {
	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "someone-else"

	noSubject := validClaims()
	delete(noSubject, "sub")

	noExpiry := validClaims()
	delete(noExpiry, "exp")

	cases := map[string]string{
		"wrong secret": signToken(t, "other", validClaims()),
		"expired":      signToken(t, testConfig.Secret, expired),
		"wrong issuer": signToken(t, testConfig.Secret, wrongIssuer),
		"no subject":   signToken(t, testConfig.Secret, noSubject),
		"no expiry":    signToken(t, testConfig.Secret, noExpiry),
		"garbage":      "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(token, testConfig)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err := Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestMiddlewareAttachesClaims(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig, SkipPaths("/healthz")).Wrap(next)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testConfig.Secret, validClaims()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, "user-1", seen.Subject)
}

func TestMiddlewareRejectsAndSkips(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := NewMiddleware(testConfig, SkipPaths("/healthz")).Wrap(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "unauthorized", body["type"])
	require.Equal(t, ErrMissingToken.Error(), body["detail"])

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLocalIdentityUsesCurrentProfile(t *testing.T) {
	current := ""
	var seen *Claims
	handler := LocalIdentity{Current: func() string { return current }}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	current = "local-user"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "local-user", seen.Subject)
	require.True(t, seen.HasScope(ScopeStudyWrite))
}
