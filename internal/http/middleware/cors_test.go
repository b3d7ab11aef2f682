package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(method, origin string, preflight bool) *http.Request {
	req := httptest.NewRequest(method, "/appointments", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	return req
}

func serveCORS(origins []string, req *http.Request) (*httptest.ResponseRecorder, bool) {
	called := false
	rec := httptest.NewRecorder()
	CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec, called
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	rec, called := serveCORS([]string{"https://carepulse.example.com/"}, corsRequest(http.MethodGet, "https://carepulse.example.com", false))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://carepulse.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Equal(t, "X-Request-Id", rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	rec, called := serveCORS([]string{"https://carepulse.example.com"}, corsRequest(http.MethodGet, "https://evil.example.com", false))
	assert.True(t, called, "simple requests still reach the handler")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	rec, called := serveCORS([]string{"*"}, corsRequest(http.MethodOptions, "https://any.example.com", true))
	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://any.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, called = serveCORS([]string{"https://carepulse.example.com"}, corsRequest(http.MethodOptions, "https://evil.example.com", true))
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSIgnoresRequestsWithoutOrigin(t *testing.T) {
	rec, called := serveCORS([]string{"*"}, corsRequest(http.MethodGet, "", false))
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
