package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveAdmin(t *testing.T, secret string, req *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	rec := httptest.NewRecorder()
	called := false
	AdminJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := AdminClaimsFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "admin-user", claims.Subject)
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec, called
}

func TestAdminJWTMissingSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/appointments", nil)
	rec, called := serveAdmin(t, "", req)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminJWTMissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/appointments", nil)
	rec, _ := serveAdmin(t, "secret", req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminJWTInvalidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "wrong", AdminRole, time.Minute))
	rec, _ := serveAdmin(t, "secret", req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminJWTExpiredOrUnboundedToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "secret", AdminRole, -time.Minute))
	rec, _ := serveAdmin(t, "secret", req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "secret", AdminRole, 0))
	rec, _ = serveAdmin(t, "secret", req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminJWTWrongRole(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "secret", "patient", time.Minute))
	rec, called := serveAdmin(t, "secret", req)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminJWTValidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "secret", AdminRole, time.Minute))
	rec, called := serveAdmin(t, "secret", req)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminJWTQueryTokenOnlyForWebsocket(t *testing.T) {
	token := signedAdminToken(t, "secret", "", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/admin/appointments/stream?access_token="+token, nil)
	rec, called := serveAdmin(t, "secret", req)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/appointments/stream?access_token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	rec, called = serveAdmin(t, "secret", req)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func signedAdminToken(t *testing.T, secret, role string, ttl time.Duration) string {
	t.Helper()
	claims := AdminClaims{
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "admin-user"},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}
