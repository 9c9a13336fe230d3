package handlers

import (
	"net/http"
	"strconv"

	"github.com/Nurbek02/brainduel/services"
)

type VideoHandler struct {
	trendService services.TrendService
}

func NewVideoHandler(trendService services.TrendService) *VideoHandler {
	return &VideoHandler{
		trendService: trendService,
	}
}

// ListVideos handles GET /videos.
func (h *VideoHandler) ListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.trendService.ListVideos(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err = writeJSON(w, http.StatusOK, videos, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListTrending handles GET /videos/trending?limit=N.
func (h *VideoHandler) ListTrending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			errorResponse(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	videos, err := h.trendService.Trending(r.Context(), limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err = writeJSON(w, http.StatusOK, videos, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
