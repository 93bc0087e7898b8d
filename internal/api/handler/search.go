package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/api/response"
	"github.com/rotabus/rotabus/internal/search"
)

// SearchHandler handles the recents and favorites lists.
type SearchHandler struct {
	search *search.Service
	logger zerolog.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(svc *search.Service, logger zerolog.Logger) *SearchHandler {
	return &SearchHandler{search: svc, logger: logger}
}

// ListRecents handles GET /v1/search/recents.
func (h *SearchHandler) ListRecents(w http.ResponseWriter, r *http.Request) {
	lists, ok := h.lists(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, toItems(lists.Recents))
}

// ListFavorites handles GET /v1/search/favorites.
func (h *SearchHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	lists, ok := h.lists(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, toItems(lists.Favorites))
}

// AddRecent handles POST /v1/search/recents.
func (h *SearchHandler) AddRecent(w http.ResponseWriter, r *http.Request) {
	var req models.AddRecentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.search.AddRecent(r.Context(), GetUserID(r.Context()), req.Title, req.Subtitle)
	if err != nil {
		if errors.Is(err, search.ErrEmptyTitle) {
			writeValidation(w, r, []models.FieldError{{Field: "title", Message: "is required", Code: "REQUIRED"}})
			return
		}
		writeUpstreamError(w, r, h.logger, err)
		return
	}

	response.Created(w, r, "", toItem(*item))
}

// ToggleRecent handles POST /v1/search/recents/{id}:toggle-favorite.
func (h *SearchHandler) ToggleRecent(w http.ResponseWriter, r *http.Request) {
	lists, err := h.search.ToggleFromRecents(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"))
	h.writeLists(w, r, lists, err)
}

// ToggleFavorite handles POST /v1/search/favorites/{id}:toggle.
func (h *SearchHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	lists, err := h.search.ToggleFromFavorites(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"))
	h.writeLists(w, r, lists, err)
}

func (h *SearchHandler) lists(w http.ResponseWriter, r *http.Request) (*search.Lists, bool) {
	lists, err := h.search.Lists(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeUpstreamError(w, r, h.logger, err)
		return nil, false
	}
	return lists, true
}

func (h *SearchHandler) writeLists(w http.ResponseWriter, r *http.Request, lists *search.Lists, err error) {
	if err != nil {
		if errors.Is(err, search.ErrItemNotFound) {
			response.NotFound(w, r, search.ErrItemNotFound.Error())
			return
		}
		writeUpstreamError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.SearchListsResponse{
		Recents:   toItems(lists.Recents),
		Favorites: toItems(lists.Favorites),
	})
}

func toItems(items []search.Item) []models.SearchItem {
	out := make([]models.SearchItem, 0, len(items))
	for _, it := range items {
		out = append(out, toItem(it))
	}
	return out
}

func toItem(it search.Item) models.SearchItem {
	return models.SearchItem{ID: it.ID, Title: it.Title, Subtitle: it.Subtitle, Favorite: it.Favorite}
}
