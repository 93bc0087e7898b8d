package handler

import (
	"context"

	"github.com/rotabus/rotabus/internal/api/middleware"
)

// GetUserID retrieves the authenticated user ID from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// GetToken retrieves the caller's backend token from the context.
func GetToken(ctx context.Context) string {
	return middleware.GetToken(ctx)
}

// caller returns the token and user id the auth middleware attached.
func caller(ctx context.Context) (token, userID string) {
	return GetToken(ctx), GetUserID(ctx)
}
