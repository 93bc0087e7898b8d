package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/api/response"
	"github.com/rotabus/rotabus/internal/destinations"
	"github.com/rotabus/rotabus/internal/search"
	"github.com/rotabus/rotabus/internal/session"
)

// MeHandler handles the signed-in user's account endpoints.
type MeHandler struct {
	sessions     *session.Service
	destinations *destinations.Service
	search       *search.Service
	logger       zerolog.Logger
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(sessions *session.Service, dest *destinations.Service, srch *search.Service, logger zerolog.Logger) *MeHandler {
	return &MeHandler{
		sessions:     sessions,
		destinations: dest,
		search:       srch,
		logger:       logger,
	}
}

// GetMe handles GET /v1/me.
func (h *MeHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	token, userID := caller(r.Context())

	u, err := h.sessions.Me(r.Context(), token, userID)
	if err != nil {
		writeUpstreamError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.User{ID: u.ID, Name: u.Name, Email: u.Email})
}

// GetProfile handles GET /v1/me/profile.
func (h *MeHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	token, userID := caller(r.Context())

	p, err := h.sessions.Profile(r.Context(), token, userID)
	if err != nil {
		writeUpstreamError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.ProfileResponse{
		Name:           p.DisplayName,
		Email:          p.Email,
		MaskedPassword: p.MaskedPassword,
	})
}

// Logout handles POST /v1/me/logout. Saved places are kept.
func (h *MeHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, userID := caller(r.Context())

	if err := h.sessions.Logout(r.Context(), token, userID); err != nil {
		writeUpstreamError(w, r, h.logger, err)
		return
	}

	response.NoContent(w, r)
}

// DeleteData handles DELETE /v1/me/data: it forgets the saved destination cards and
// both search lists kept by the gateway. The backend account is untouched.
func (h *MeHandler) DeleteData(w http.ResponseWriter, r *http.Request) {
	_, userID := caller(r.Context())

	err := errors.Join(
		h.destinations.Forget(r.Context(), userID),
		h.search.Forget(r.Context(), userID),
	)
	if err != nil {
		writeUpstreamError(w, r, h.logger, err)
		return
	}

	h.logger.Info().Str("user_id", userID).Msg("user data deleted")
	response.NoContent(w, r)
}
