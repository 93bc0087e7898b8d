package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/api/response"
	"github.com/rotabus/rotabus/internal/lines"
)

// RefreshPublisher hands a positions refresh to the worker.
// *worker.Publisher implements it.
type RefreshPublisher interface {
	PublishPositionsRefresh(ctx context.Context, requestedBy string) (string, error)
}

// LinesHandler serves live bus-line positions.
type LinesHandler struct {
	lines     *lines.Service
	publisher RefreshPublisher
	logger    zerolog.Logger
}

// NewLinesHandler creates a new LinesHandler. A nil publisher makes refreshes run
// inline.
func NewLinesHandler(svc *lines.Service, publisher RefreshPublisher, logger zerolog.Logger) *LinesHandler {
	return &LinesHandler{lines: svc, publisher: publisher, logger: logger}
}

// ListLines handles GET /v1/lines?q=&page=&pageSize=.
func (h *LinesHandler) ListLines(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var fieldErrors []models.FieldError
	page, ok := intParam(query.Get("page"), 1)
	if !ok {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "page", Message: "must be an integer", Code: "INVALID_INTEGER"})
	}
	pageSize, ok := intParam(query.Get("pageSize"), lines.DefaultPageSize)
	if !ok {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "pageSize", Message: "must be an integer", Code: "INVALID_INTEGER"})
	}
	if len(fieldErrors) > 0 {
		writeValidation(w, r, fieldErrors)
		return
	}

	snap, err := h.lines.Snapshot(r.Context(), GetToken(r.Context()))
	if err != nil {
		writeUpstreamError(w, r, h.logger, err)
		return
	}

	q := query.Get("q")
	p := lines.Paginate(lines.Filter(snap.Vehicles, q), page, pageSize)

	items := make([]models.Vehicle, 0, len(p.Items))
	for _, v := range p.Items {
		items = append(items, toVehicle(v))
	}

	response.JSON(w, r, http.StatusOK, models.LinesPageResponse{
		Items:      items,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
		TotalItems: p.TotalItems,
		Query:      q,
		Hour:       snap.Hour,
		FetchedAt:  models.Timestamp(snap.FetchedAt),
		Stale:      snap.Stale,
	})
}

// RefreshLines handles POST /v1/lines:refresh. With a publisher the refresh is queued
// for the worker (202); otherwise it runs in the request (200).
func (h *LinesHandler) RefreshLines(w http.ResponseWriter, r *http.Request) {
	token, userID := caller(r.Context())

	if h.publisher != nil {
		id, err := h.publisher.PublishPositionsRefresh(r.Context(), userID)
		if err == nil {
			response.Accepted(w, r, "", models.LinesRefreshResponse{Mode: "queued", MessageID: id})
			return
		}
		h.logger.Warn().Err(err).Msg("publishing positions refresh failed, refreshing inline")
	}

	snap, err := h.lines.Refresh(r.Context(), token)
	if err != nil {
		writeUpstreamError(w, r, h.logger, err)
		return
	}

	n := len(snap.Vehicles)
	fetchedAt := models.Timestamp(snap.FetchedAt)
	response.JSON(w, r, http.StatusOK, models.LinesRefreshResponse{
		Mode:      "inline",
		Vehicles:  &n,
		FetchedAt: &fetchedAt,
	})
}

func toVehicle(v lines.Vehicle) models.Vehicle {
	out := models.Vehicle{
		Destination: v.Destination,
		Origin:      v.Origin,
		CapturedAt:  v.CapturedAt,
		Prefix:      v.Prefix,
		LineCode:    v.LineCode,
		Accessible:  v.Accessible,
	}
	if v.Lat != nil && v.Lng != nil {
		out.Position = &models.Point{Lat: *v.Lat, Lng: *v.Lng}
	}
	return out
}

// intParam parses an optional integer query parameter.
func intParam(raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
