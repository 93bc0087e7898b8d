package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/api/response"
	"github.com/rotabus/rotabus/internal/destinations"
)

// DirectionsHandler handles the saved home and work destinations.
type DirectionsHandler struct {
	destinations *destinations.Service
	logger       zerolog.Logger
}

// NewDirectionsHandler creates a new DirectionsHandler.
func NewDirectionsHandler(svc *destinations.Service, logger zerolog.Logger) *DirectionsHandler {
	return &DirectionsHandler{destinations: svc, logger: logger}
}

// GetDirections handles GET /v1/directions.
func (h *DirectionsHandler) GetDirections(w http.ResponseWriter, r *http.Request) {
	token, userID := caller(r.Context())

	d, err := h.destinations.Get(r.Context(), token, userID)
	if err != nil {
		writeUpstreamError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toDirections(*d))
}

// SetDestination handles PUT /v1/directions/{kind}.
func (h *DirectionsHandler) SetDestination(w http.ResponseWriter, r *http.Request) {
	kind := destinations.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		response.NotFound(w, r, destinations.ErrUnknownKind.Error())
		return
	}

	var req models.SetDestinationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, userID := caller(r.Context())
	res, err := h.destinations.Set(r.Context(), token, userID, kind, destinations.SetRequest{
		Name:   req.Name,
		Point1: req.Point1,
		Point2: req.Point2,
	})
	if err != nil {
		var verr *destinations.ValidationError
		if errors.As(err, &verr) {
			writeValidation(w, r, verr.Errors)
			return
		}
		writeUpstreamError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.SetDestinationResponse{
		Message:     res.Message,
		Kind:        string(res.Kind),
		Destination: toDestination(res.Info),
		Directions:  toDirections(res.Destinations),
	})
}

func toDirections(d destinations.Destinations) models.DirectionsResponse {
	return models.DirectionsResponse{
		Home: toDestination(d.Home),
		Work: toDestination(d.Work),
	}
}

func toDestination(i destinations.Info) models.Destination {
	return models.Destination{
		Name:       i.Name,
		Time:       i.Time,
		Distance:   i.Distance,
		Configured: i.Configured(),
	}
}
