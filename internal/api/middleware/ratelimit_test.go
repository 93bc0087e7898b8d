package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rotabus/rotabus/internal/api/middleware"
)

func hit(h http.Handler, remoteAddr, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/routes", http.NoBody)
	req.RemoteAddr = remoteAddr
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: 30 * time.Second}
	handler := middleware.RequestID(middleware.RateLimitByIP(cfg)(okHandler))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.1:1234", "").Code, "request %d", i+1)
	}

	rec := hit(handler, "10.0.0.1:1234", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "too-many-requests")
	assert.Contains(t, rec.Body.String(), "/v1/routes")

	assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.2:1234", "").Code, "other IPs keep their own budget")
}

func TestRateLimitByUser_SharesBudgetAcrossIPs(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute}
	resolver := &fakeResolver{users: map[string]string{"tok-ana": "user-1", "tok-bia": "user-2"}}
	handler := middleware.Auth(resolver)(middleware.RateLimitByUser(cfg)(okHandler))

	assert.Equal(t, http.StatusOK, hit(handler, "192.168.1.1:1", "tok-ana").Code)
	assert.Equal(t, http.StatusOK, hit(handler, "192.168.1.2:1", "tok-ana").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "192.168.1.3:1", "tok-ana").Code)

	assert.Equal(t, http.StatusOK, hit(handler, "192.168.1.3:1", "tok-bia").Code)
}

func TestRateLimitByUser_FallsBackToIP(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute}
	handler := middleware.RateLimitByUser(cfg)(okHandler)

	assert.Equal(t, http.StatusOK, hit(handler, "172.16.0.1:1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "172.16.0.1:1", "").Code)
	assert.Equal(t, http.StatusOK, hit(handler, "172.16.0.2:1", "").Code)
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 10, middleware.AuthRateLimit.RequestLimit)
	assert.Equal(t, 30, middleware.ExpensiveRateLimit.RequestLimit)
	assert.Equal(t, 100, middleware.StandardRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.StandardRateLimit.WindowLength)
}
