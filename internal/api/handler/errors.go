package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/api/middleware"
	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/api/response"
	"github.com/rotabus/rotabus/internal/backend"
	"github.com/rotabus/rotabus/internal/session"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// decodeJSON reads a JSON body into dst. It writes a 400 and returns false when the
// body is missing or malformed.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		response.BadRequest(w, r, "request body is required", nil)
	case errors.As(err, &maxErr):
		response.BadRequest(w, r, "request body is too large", nil)
	default:
		response.BadRequest(w, r, "invalid JSON body", nil)
	}
	return false
}

// writeUpstreamError maps errors that reach a handler from the services and the
// backend client onto problem responses. Backend messages for rejected input are
// shown to the caller; everything else gets a generic detail.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	var backendErr *backend.Error
	isBackend := errors.As(err, &backendErr)

	switch {
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrTokenExpired):
		response.Unauthorized(w, r, "invalid access token")
	case errors.Is(err, backend.ErrUnauthorized):
		response.Unauthorized(w, r, "the transit backend rejected the credentials")
	case errors.Is(err, backend.ErrNotFound):
		response.NotFound(w, r, "not found")
	case errors.Is(err, backend.ErrInvalidRequest):
		detail := "the transit backend rejected the request"
		if isBackend {
			detail = backendErr.UserMessage(detail)
		}
		response.BadRequest(w, r, detail, nil)
	case errors.Is(err, backend.ErrUnavailable):
		logger.Warn().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("transit backend unavailable")
		response.ServiceUnavailable(w, r, "the transit backend is unavailable, try again shortly")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "request timed out")
	default:
		logger.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("unhandled error")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

// writeValidation writes field errors as a 400 problem.
func writeValidation(w http.ResponseWriter, r *http.Request, errs []models.FieldError) {
	response.BadRequest(w, r, "validation error", errs)
}
