package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/focus-leaderboard/internal/domain"
)

const dispatchTimeout = 5 * time.Second

// PomodoroService owns the session state machine. Completion side effects
// are handed to the dispatcher after the terminal status is committed.
type PomodoroService struct {
	sessions   SessionRepository
	tasks      TaskRepository
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// NewPomodoroService creates a new pomodoro service
func NewPomodoroService(
	sessions SessionRepository,
	tasks TaskRepository,
	dispatcher Dispatcher,
	logger *slog.Logger,
) *PomodoroService {
	return &PomodoroService{
		sessions:   sessions,
		tasks:      tasks,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Start creates an in-progress session for the user
func (s *PomodoroService) Start(ctx context.Context, userID string, req domain.StartSessionRequest) (*domain.Session, error) {
	session, err := domain.NewSession(userID, req, s.now())
	if err != nil {
		return nil, err
	}

	if session.TaskID != nil {
		task, err := s.tasks.FindTask(ctx, *session.TaskID)
		if err != nil && !domain.IsNotFoundError(err) {
			return nil, fmt.Errorf("looking up linked task: %w", err)
		}
		if task == nil || task.UserID != userID {
			return nil, fmt.Errorf("%w: unknown task", domain.ErrValidation)
		}
	}

	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}

	s.logger.Debug("session started",
		"session_id", session.ID,
		"user_id", userID,
		"type", session.Type,
		"duration", session.Duration,
	)
	return session, nil
}

// Complete marks the user's in-progress session completed. Missing, foreign
// and already terminal sessions all yield ErrNotFound.
func (s *PomodoroService) Complete(ctx context.Context, sessionID, userID string, req domain.CompleteSessionRequest) (*domain.Session, error) {
	session, err := s.finish(ctx, sessionID, userID, func(session *domain.Session, at time.Time) error {
		return session.Complete(at, req.CompletedCycles)
	})
	if err != nil {
		return nil, err
	}

	if session.CountsTowardScore() {
		s.dispatch(ctx, domain.NewCompletionEvent(session))
	}
	return session, nil
}

// Cancel marks the user's in-progress session cancelled. No side effects run.
func (s *PomodoroService) Cancel(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	return s.finish(ctx, sessionID, userID, func(session *domain.Session, at time.Time) error {
		return session.Cancel(at)
	})
}

func (s *PomodoroService) finish(
	ctx context.Context,
	sessionID, userID string,
	transition func(*domain.Session, time.Time) error,
) (*domain.Session, error) {
	session, err := s.sessions.GetActiveSession(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("finding session %s: %w", sessionID, err)
	}

	if err := transition(session, s.now()); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if err := s.sessions.FinishSession(ctx, session); err != nil {
		return nil, fmt.Errorf("finishing session %s: %w", sessionID, err)
	}

	s.logger.Debug("session finished",
		"session_id", session.ID,
		"user_id", userID,
		"status", session.Status,
	)
	return session, nil
}

// dispatch submits the completion event detached from the request lifetime
func (s *PomodoroService) dispatch(ctx context.Context, event domain.CompletionEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		s.logger.Error("failed to dispatch completion event",
			"session_id", event.SessionID,
			"user_id", event.UserID,
			"error", err,
		)
	}
}

// List returns the user's sessions, newest first
func (s *PomodoroService) List(ctx context.Context, userID string, page domain.Page) ([]domain.Session, error) {
	sessions, err := s.sessions.ListSessions(ctx, userID, page)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// Stats summarises the user's completed sessions. An empty history yields zeros.
func (s *PomodoroService) Stats(ctx context.Context, userID string) (domain.SessionStats, error) {
	stats, err := s.sessions.GetSessionStats(ctx, userID)
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("getting session stats: %w", err)
	}
	return stats, nil
}
