package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/focus-leaderboard/internal/domain"
)

// StartSession starts a focus or break session for the caller
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req domain.StartSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	session, err := h.sessions.Start(r.Context(), userID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, session)
}

// CompleteSession completes one of the caller's in-progress sessions
func (h *Handler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	var req domain.CompleteSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	session, err := h.sessions.Complete(r.Context(), chi.URLParam(r, "sessionID"), userID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, session)
}

// CancelSession cancels one of the caller's in-progress sessions
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Cancel(r.Context(), chi.URLParam(r, "sessionID"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, session)
}

// ListSessions returns the caller's sessions, newest first
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	page, err := h.parsePage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sessions, err := h.sessions.List(r.Context(), userID(r), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, sessions)
}

// GetSessionStats summarises the caller's completed sessions
func (h *Handler) GetSessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sessions.Stats(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// parsePage reads optional limit and offset. No limit means the whole history.
func (h *Handler) parsePage(r *http.Request) (domain.Page, error) {
	var page domain.Page
	q := r.URL.Query()

	if s := q.Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l < 1 {
			return page, fmt.Errorf("%w: limit must be a positive integer", domain.ErrValidation)
		}
		if maxLimit := h.config.Leaderboard.MaxLimit; maxLimit > 0 && l > maxLimit {
			l = maxLimit
		}
		page.Limit = l
	}
	if s := q.Get("offset"); s != "" {
		o, err := strconv.Atoi(s)
		if err != nil || o < 0 {
			return page, fmt.Errorf("%w: offset must be a non-negative integer", domain.ErrValidation)
		}
		page.Offset = o
	}
	return page, nil
}
