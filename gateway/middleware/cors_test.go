package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCORSAppliesDefaultsWhenUnconfigured(t *testing.T) {
	handler := CORS(CORSConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/visibilities/alice", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "*", res.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", res.Header().Get("Access-Control-Allow-Methods"))
	require.Equal(t, "Content-Type, Authorization, X-Api-Key, X-Timestamp, X-Nonce, X-Signature", res.Header().Get("Access-Control-Allow-Headers"))
	require.Equal(t, "false", res.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSAppliesConfiguredValues(t *testing.T) {
	handler := CORS(CORSConfig{
		AllowedOrigins:   []string{"https://example.test"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/visibilities/alice", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	require.Equal(t, "https://example.test", res.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET, POST", res.Header().Get("Access-Control-Allow-Methods"))
	require.Equal(t, "Authorization", res.Header().Get("Access-Control-Allow-Headers"))
	require.Equal(t, "true", res.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSShortCircuitsPreflightRequests(t *testing.T) {
	called := false
	handler := CORS(CORSConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/visibilities/alice", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	require.Equal(t, http.StatusNoContent, res.Code)
	require.False(t, called, "preflight requests must not reach the wrapped handler")
}
