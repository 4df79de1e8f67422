package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/focus-leaderboard/internal/domain"
)

// FindTask retrieves a task by ID
func (r *Repository) FindTask(ctx context.Context, taskID string) (*domain.Task, error) {
	defer observe(ctx, "tasks.find")()

	query := `
		SELECT id, user_id, title, status, estimated_time, remaining_time
		FROM tasks
		WHERE id = $1
	`
	var t domain.Task
	err := r.pool.QueryRow(ctx, query, taskID).Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Status,
		&t.EstimatedTime,
		&t.RemainingTime,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("finding task: %w", err)
	}
	return &t, nil
}

// UpdateRemainingTime writes only the remaining time budget of a task
func (r *Repository) UpdateRemainingTime(ctx context.Context, taskID string, remaining int) error {
	defer observe(ctx, "tasks.update_remaining")()

	query := `UPDATE tasks SET remaining_time = $2, updated_at = $3 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, taskID, remaining, time.Now())
	if err != nil {
		return fmt.Errorf("updating remaining time: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateTaskTimes writes both the estimate and the remaining time of a task
func (r *Repository) UpdateTaskTimes(ctx context.Context, task *domain.Task) error {
	defer observe(ctx, "tasks.update_times")()

	query := `
		UPDATE tasks
		SET estimated_time = $3, remaining_time = $4, updated_at = $5
		WHERE id = $1 AND user_id = $2
	`
	result, err := r.pool.Exec(ctx, query, task.ID, task.UserID, task.EstimatedTime, task.RemainingTime, time.Now())
	if err != nil {
		return fmt.Errorf("updating task times: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountTasksByStatus counts a user's tasks in the given status
func (r *Repository) CountTasksByStatus(ctx context.Context, userID, status string) (int64, error) {
	defer observe(ctx, "tasks.count_by_status")()

	query := `SELECT COUNT(*) FROM tasks WHERE user_id = $1 AND status = $2`
	var count int64
	if err := r.pool.QueryRow(ctx, query, userID, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	return count, nil
}
