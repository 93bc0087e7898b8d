package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/api/response"
	"github.com/rotabus/rotabus/internal/routing"
)

// viewportPadRatio is the margin added around a route's bounds for map fitting.
const viewportPadRatio = 0.1

// RoutesHandler serves route searches between two points.
type RoutesHandler struct {
	routes *routing.Service
	logger zerolog.Logger
}

// NewRoutesHandler creates a new RoutesHandler.
func NewRoutesHandler(svc *routing.Service, logger zerolog.Logger) *RoutesHandler {
	return &RoutesHandler{routes: svc, logger: logger}
}

// SearchRoutes handles GET /v1/routes?point1=lat,lng&point2=lat,lng.
func (h *RoutesHandler) SearchRoutes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var fieldErrors []models.FieldError
	from, err := routing.ParsePoint(query.Get("point1"))
	if err != nil {
		fieldErrors = append(fieldErrors, pointError("point1", query.Get("point1"), err))
	}
	to, err := routing.ParsePoint(query.Get("point2"))
	if err != nil {
		fieldErrors = append(fieldErrors, pointError("point2", query.Get("point2"), err))
	}
	if len(fieldErrors) > 0 {
		writeValidation(w, r, fieldErrors)
		return
	}

	res, err := h.routes.Search(r.Context(), GetToken(r.Context()), from, to)
	if err != nil {
		switch {
		case errors.Is(err, routing.ErrGeometryDecode):
			response.BadGateway(w, r, routing.ErrGeometryDecode.Error())
		case errors.Is(err, routing.ErrNoRouteFound):
			response.NotFound(w, r, routing.ErrNoRouteFound.Error())
		default:
			writeUpstreamError(w, r, h.logger, err)
		}
		return
	}

	out := models.RouteSearchResponse{
		From:      models.Point{Lat: res.From.Lat, Lng: res.From.Lon},
		To:        models.Point{Lat: res.To.Lat, Lng: res.To.Lon},
		Paths:     make([]models.RoutePath, 0, len(res.Paths)),
		FetchedAt: models.Timestamp(res.FetchedAt),
		Stale:     res.Stale,
	}
	for i := range res.Paths {
		out.Paths = append(out.Paths, h.toRoutePath(&res.Paths[i]))
	}

	response.JSON(w, r, http.StatusOK, out)
}

func (h *RoutesHandler) toRoutePath(p *routing.Path) models.RoutePath {
	s := routing.Summarize(p)
	out := models.RoutePath{
		DistanceMeters:    p.DistanceMeters,
		DurationMillis:    p.DurationMillis,
		Transfers:         p.Transfers,
		Summary:           models.RouteSummary{DistanceKm: s.DistanceKm, TimeMinutes: s.TimeMinutes},
		GeometryAvailable: p.GeometryAvailable(),
		Geometry:          make([]models.Point, 0, len(p.Geometry)),
	}

	for _, c := range p.Geometry {
		out.Geometry = append(out.Geometry, models.Point{Lat: c.Lat, Lng: c.Lon})
	}

	if p.BBox != nil {
		out.BBox = toGeoBox(*p.BBox)
		out.Viewport = toGeoBox(routing.Viewport(*p.BBox, viewportPadRatio))
	}

	if p.GeometryAvailable() {
		raw, err := json.Marshal(routing.Feature(p))
		if err != nil {
			h.logger.Warn().Err(err).Msg("encoding route feature")
		} else {
			out.GeoJSON = raw
		}
	}

	for _, in := range p.Instructions {
		out.Instructions = append(out.Instructions, models.RouteInstruction{
			Text:           in.Text,
			StreetName:     in.StreetName,
			DistanceMeters: in.DistanceMeters,
			DurationMillis: in.DurationMillis,
			Sign:           in.Sign,
			Interval:       [2]int{in.FirstPoint, in.LastPoint},
		})
	}
	return out
}

// toGeoBox converts an orb bound, which is (lng, lat), into the API box.
func toGeoBox(b orb.Bound) *models.GeoBox {
	return &models.GeoBox{
		MinLat: b.Min.Lat(),
		MinLng: b.Min.Lon(),
		MaxLat: b.Max.Lat(),
		MaxLng: b.Max.Lon(),
	}
}

func pointError(field, raw string, err error) models.FieldError {
	if raw == "" {
		return models.FieldError{Field: field, Message: "is required", Code: "REQUIRED"}
	}
	return models.FieldError{Field: field, Message: err.Error(), Code: "INVALID_POINT"}
}
