package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/focus-leaderboard/internal/domain"
)

// TaskSynchronizer keeps a task's remaining-time budget in step with the
// focus sessions linked to it
type TaskSynchronizer struct {
	sessions SessionRepository
	tasks    TaskRepository
	logger   *slog.Logger
}

// NewTaskSynchronizer creates a new task synchronizer
func NewTaskSynchronizer(sessions SessionRepository, tasks TaskRepository, logger *slog.Logger) *TaskSynchronizer {
	return &TaskSynchronizer{
		sessions: sessions,
		tasks:    tasks,
		logger:   logger,
	}
}

// ApplyCompletion deducts a completed focus session's duration from its
// linked task. A task deleted in the meantime is logged and skipped.
func (s *TaskSynchronizer) ApplyCompletion(ctx context.Context, event domain.CompletionEvent) error {
	if event.TaskID == nil || event.Type != domain.SessionTypeFocus {
		return nil
	}
	taskID := *event.TaskID

	claimed, err := s.sessions.ClaimTaskSync(ctx, event.SessionID)
	if err != nil {
		return fmt.Errorf("claiming task sync for session %s: %w", event.SessionID, err)
	}
	if !claimed {
		s.logger.Debug("task sync already applied", "session_id", event.SessionID, "task_id", taskID)
		return nil
	}

	task, err := s.tasks.FindTask(ctx, taskID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			s.logger.Warn("linked task no longer exists, skipping time sync",
				"session_id", event.SessionID,
				"task_id", taskID,
			)
			return nil
		}
		return fmt.Errorf("loading task %s: %w", taskID, err)
	}

	remaining := task.ConsumeMinutes(event.Duration)
	if err := s.tasks.UpdateRemainingTime(ctx, taskID, remaining); err != nil {
		if domain.IsNotFoundError(err) {
			s.logger.Warn("linked task deleted during time sync", "task_id", taskID)
			return nil
		}
		return fmt.Errorf("updating task %s remaining time: %w", taskID, err)
	}

	s.logger.Debug("task time synced",
		"task_id", taskID,
		"session_id", event.SessionID,
		"remaining", remaining,
	)
	return nil
}

// Reestimate changes a task's estimate, rescaling its remaining time so the
// completed fraction is preserved
func (s *TaskSynchronizer) Reestimate(ctx context.Context, userID, taskID string, newEstimate int) (*domain.Task, error) {
	task, err := s.tasks.FindTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("finding task %s: %w", taskID, err)
	}
	if task.UserID != userID {
		return nil, domain.ErrNotFound
	}

	if err := task.Reestimate(newEstimate); err != nil {
		return nil, err
	}

	if err := s.tasks.UpdateTaskTimes(ctx, task); err != nil {
		return nil, fmt.Errorf("saving task %s estimate: %w", taskID, err)
	}
	return task, nil
}
