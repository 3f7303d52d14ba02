package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoint(t *testing.T) {
	// Health touches no collaborators, so a bare handler is enough
	h := NewHandler(nil, nil, nil, 3)
	router := NewRouter(h, RouterConfig{})

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealthSkipsAuth(t *testing.T) {
	h := NewHandler(nil, nil, nil, 3)
	router := NewRouter(h, RouterConfig{BackendAPIKey: "secret"})

	// No API key on the request: /health must still answer
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuthAcceptsBothHeaders(t *testing.T) {
	var called bool
	protected := APIKeyAuth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	require.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	called = false
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	require.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestV1RequiresAPIKey(t *testing.T) {
	h := NewHandler(nil, nil, nil, 3)
	router := NewRouter(h, RouterConfig{BackendAPIKey: "secret"})

	req := httptest.NewRequest("GET", "/v1/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest("GET", "/v1/chats", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
