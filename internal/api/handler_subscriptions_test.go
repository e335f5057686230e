package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-ledger-backend/internal/mw"
)

func TestPutSubscription(t *testing.T) {
	env := newTestEnv(t)
	token := env.connect(t, userAccount)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", nil)
	req.Header.Set(mw.TokenHeader, token)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestSubscriptionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	owner := env.connect(t, userAccount)
	other := env.connect(t, adminAccount)

	endpoint := "https://push.example.com/send/abc"
	query := "/api/subscriptions?endpoint=" + url.QueryEscape(endpoint)

	w := env.do(http.MethodPut, "/api/subscriptions", owner, gin.H{"endpoint": endpoint, "p256dh": "key", "auth": "secret"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(http.MethodGet, query, owner, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Subscriptions of other accounts are invisible.
	w = env.do(http.MethodGet, query, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(http.MethodDelete, "/api/subscriptions", other, gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/api/subscriptions", owner, gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, query, owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/subscriptions", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
