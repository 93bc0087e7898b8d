// Package session handles sign-in against the transit backend and remembers who
// owns each bearer token, so the gateway can resolve a user without calling the
// backend on every request.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/backend"
)

// Sentinel errors for session operations.
var (
	ErrNoToken      = errors.New("backend did not issue a token")
	ErrInvalidToken = errors.New("invalid access token")
	ErrTokenExpired = errors.New("access token has expired")
)

// DefaultSessionTTL bounds how long a token-to-user mapping is remembered when the
// token carries no expiry of its own.
const DefaultSessionTTL = 24 * time.Hour

// MinPasswordMask is the shortest masked password shown on the profile.
const MinPasswordMask = 6

// Backend is the slice of the backend client this package needs.
type Backend interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResult, error)
	Register(ctx context.Context, req backend.RegisterRequest) error
	Me(ctx context.Context, token string) (*backend.User, error)
}

// User is the signed-in account as the gateway keeps it.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Profile is the display form of the signed-in account.
type Profile struct {
	DisplayName    string `json:"displayName"`
	Email          string `json:"email"`
	MaskedPassword string `json:"maskedPassword"`
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// record is what the store keeps under a session key.
type record struct {
	UserID string `json:"userId"`
}

// account is what the store keeps under a user key.
type account struct {
	User
	FullName       string `json:"fullName,omitempty"`
	Username       string `json:"username,omitempty"`
	PasswordLength int    `json:"passwordLength"`
}
