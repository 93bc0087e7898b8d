package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/api/response"
	"github.com/rotabus/rotabus/internal/backend"
	"github.com/rotabus/rotabus/internal/session"
)

// AuthHandler handles sign-in and registration.
type AuthHandler struct {
	sessions *session.Service
	logger   zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(sessions *session.Service, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		var verr *session.ValidationError
		switch {
		case errors.As(err, &verr):
			writeValidation(w, r, verr.Errors)
		case errors.Is(err, backend.ErrUnauthorized), errors.Is(err, backend.ErrNotFound):
			response.Unauthorized(w, r, "invalid email or password")
		case errors.Is(err, session.ErrNoToken):
			response.BadGateway(w, r, "the transit backend did not issue a token")
		default:
			writeUpstreamError(w, r, h.logger, err)
		}
		return
	}

	response.JSON(w, r, http.StatusOK, models.LoginResponse{
		Token: res.Token,
		User: models.User{
			ID:    res.User.ID,
			Name:  res.User.Name,
			Email: res.User.Email,
		},
	})
}

// Register handles POST /v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.sessions.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		var verr *session.ValidationError
		if errors.As(err, &verr) {
			writeValidation(w, r, verr.Errors)
			return
		}
		writeUpstreamError(w, r, h.logger, err)
		return
	}

	response.Created(w, r, "", models.MessageResponse{Message: "account created"})
}
