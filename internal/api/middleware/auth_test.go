package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotabus/rotabus/internal/api/middleware"
	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/session"
)

// fakeResolver maps tokens to users; unknown tokens are invalid.
type fakeResolver struct {
	users map[string]string
	err   error
}

func (f *fakeResolver) Resolve(_ context.Context, token string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if id, ok := f.users[token]; ok {
		return id, nil
	}
	return "", session.ErrInvalidToken
}

func protected(resolver middleware.TokenResolver) http.Handler {
	return middleware.Auth(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"userId": middleware.GetUserID(r.Context()),
			"token":  middleware.GetToken(r.Context()),
		})
	}))
}

func TestAuth_ValidToken(t *testing.T) {
	handler := protected(&fakeResolver{users: map[string]string{"tok-ana": "user-1"}})

	req := httptest.NewRequest(http.MethodGet, "/v1/me", http.NoBody)
	req.Header.Set("Authorization", "Bearer tok-ana")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"user-1","token":"tok-ana"}`, rec.Body.String())
}

func TestAuth_BearerPrefixIsCaseInsensitive(t *testing.T) {
	handler := protected(&fakeResolver{users: map[string]string{"tok-ana": "user-1"}})

	req := httptest.NewRequest(http.MethodGet, "/v1/me", http.NoBody)
	req.Header.Set("Authorization", "bearer tok-ana")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_Rejections(t *testing.T) {
	resolver := &fakeResolver{users: map[string]string{"tok-ana": "user-1"}}

	tests := []struct {
		name       string
		header     string
		wantDetail string
	}{
		{"missing header", "", "missing authorization header"},
		{"no bearer prefix", "tok-ana", "invalid authorization header format"},
		{"basic auth", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"just bearer", "Bearer", "invalid authorization header format"},
		{"empty bearer", "Bearer    ", "missing bearer token"},
		{"unknown token", "Bearer someone-else", "invalid access token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/me", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			protected(resolver).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

			var p models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, tt.wantDetail, p.Detail)
			assert.Equal(t, "/v1/me", p.Instance)
		})
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	handler := protected(&fakeResolver{err: session.ErrTokenExpired})

	req := httptest.NewRequest(http.MethodGet, "/v1/me", http.NoBody)
	req.Header.Set("Authorization", "Bearer old")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "access token has expired")
}

func TestAuth_ResolverUnavailable(t *testing.T) {
	handler := protected(&fakeResolver{err: errors.New("backend down")})

	req := httptest.NewRequest(http.MethodGet, "/v1/me", http.NoBody)
	req.Header.Set("Authorization", "Bearer opaque")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "backend down")
}

func TestGetUserID_Unauthenticated(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, middleware.GetUserID(ctx))
	assert.Empty(t, middleware.GetToken(ctx))
}
