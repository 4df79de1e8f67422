package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/focus-leaderboard/internal/domain"
)

var errMissingEstimate = fmt.Errorf("%w: estimatedTime is required", domain.ErrValidation)

// GetLeaderboard returns the top entries for a period with page ranks
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	period := domain.ParsePeriod(r.URL.Query().Get("period"))

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.ranking.GetLeaderboard(r.Context(), period, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, entries)
}

// GetMyRanking returns the caller's entry with a global rank
func (h *Handler) GetMyRanking(w http.ResponseWriter, r *http.Request) {
	period := domain.ParsePeriod(r.URL.Query().Get("period"))

	entry, err := h.ranking.GetUserRanking(r.Context(), userID(r), period)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, entry)
}

// UpdateTaskEstimate re-estimates one of the caller's tasks
func (h *Handler) UpdateTaskEstimate(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateEstimateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.EstimatedTime == nil {
		h.writeError(w, r, errMissingEstimate)
		return
	}

	task, err := h.tasks.Reestimate(r.Context(), userID(r), chi.URLParam(r, "taskID"), *req.EstimatedTime)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, task)
}
