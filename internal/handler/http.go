package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/focus-leaderboard/internal/auth"
	"github.com/focus-leaderboard/internal/config"
	"github.com/focus-leaderboard/internal/domain"
	"github.com/focus-leaderboard/internal/metrics"
	"github.com/focus-leaderboard/internal/websocket"
)

// SessionService is the session lifecycle used by the pomodoro routes
type SessionService interface {
	Start(ctx context.Context, userID string, req domain.StartSessionRequest) (*domain.Session, error)
	Complete(ctx context.Context, sessionID, userID string, req domain.CompleteSessionRequest) (*domain.Session, error)
	Cancel(ctx context.Context, sessionID, userID string) (*domain.Session, error)
	List(ctx context.Context, userID string, page domain.Page) ([]domain.Session, error)
	Stats(ctx context.Context, userID string) (domain.SessionStats, error)
}

// RankingReader answers leaderboard queries
type RankingReader interface {
	GetLeaderboard(ctx context.Context, period domain.Period, limit int) ([]domain.RankedEntry, error)
	GetUserRanking(ctx context.Context, userID string, period domain.Period) (*domain.RankedEntry, error)
}

// TaskEstimator applies task re-estimation
type TaskEstimator interface {
	Reestimate(ctx context.Context, userID, taskID string, newEstimate int) (*domain.Task, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the focus API
type Handler struct {
	sessions SessionService
	ranking  RankingReader
	tasks    TaskEstimator
	hub      *websocket.Hub
	checks   map[string]Pinger
	config   *config.Config
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler. checks are pinged by /ready.
func NewHandler(
	sessions SessionService,
	ranking RankingReader,
	tasks TaskEstimator,
	hub *websocket.Hub,
	checks map[string]Pinger,
	cfg *config.Config,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		sessions: sessions,
		ranking:  ranking,
		tasks:    tasks,
		hub:      hub,
		checks:   checks,
		config:   cfg,
		logger:   logger,
	}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(metrics.Middleware())
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireUser(h.config.Auth.UserHeader, h.unauthenticated))

		r.Route("/pomodoro", func(r chi.Router) {
			r.Post("/", h.StartSession)
			r.Get("/", h.ListSessions)
			r.Get("/stats", h.GetSessionStats)
			r.Put("/{sessionID}/complete", h.CompleteSession)
			r.Put("/{sessionID}/cancel", h.CancelSession)
			r.Delete("/{sessionID}", h.CancelSession)
		})

		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/", h.GetLeaderboard)
			r.Get("/me", h.GetMyRanking)
		})

		r.Patch("/tasks/{taskID}/estimate", h.UpdateTaskEstimate)

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-User-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeError maps err onto a status code. Unexpected errors are logged and
// answered with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: domain.ErrNotFound.Error()})
	case errors.Is(err, domain.ErrUnauthenticated):
		h.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: domain.ErrUnauthenticated.Error()})
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: domain.ErrInternalError.Error()})
	}
}

func (h *Handler) unauthenticated(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, domain.ErrUnauthenticated)
}

// userID returns the caller set by auth.RequireUser
func userID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// decodeJSON decodes an optional request body. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: malformed request body", domain.ErrValidation)
	}
	return nil
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyCheck pings every dependency and reports which are unavailable
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			failed[name] = "unavailable"
		}
	}

	if len(failed) > 0 {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":       "not ready",
			"dependencies": failed,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
