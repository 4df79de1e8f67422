package domain

import (
	"fmt"
	"math"
)

// TaskStatusCompleted is the task status counted on the leaderboard
const TaskStatusCompleted = "completed"

// Task is the subset of a task record the focus pipeline reads and writes.
// Times are in minutes.
type Task struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	EstimatedTime *int   `json:"estimatedTime,omitempty"`
	RemainingTime *int   `json:"remainingTime,omitempty"`
}

// UpdateEstimateRequest is the body of a task re-estimation call
type UpdateEstimateRequest struct {
	EstimatedTime *int `json:"estimatedTime"`
}

// CurrentBudget is the remaining time, falling back to the estimate, then 0
func (t *Task) CurrentBudget() int {
	if t.RemainingTime != nil {
		return *t.RemainingTime
	}
	if t.EstimatedTime != nil {
		return *t.EstimatedTime
	}
	return 0
}

// ConsumeMinutes deducts completed focus time from the budget, clamped at 0
func (t *Task) ConsumeMinutes(minutes int) int {
	remaining := t.CurrentBudget() - minutes
	if remaining < 0 {
		remaining = 0
	}
	t.RemainingTime = &remaining
	return remaining
}

// Reestimate sets a new estimate while keeping the fraction of work already done
func (t *Task) Reestimate(newEstimate int) error {
	if newEstimate < 0 {
		return fmt.Errorf("%w: estimatedTime must not be negative", ErrValidation)
	}

	if t.EstimatedTime == nil || t.RemainingTime == nil {
		est, rem := newEstimate, newEstimate
		t.EstimatedTime = &est
		t.RemainingTime = &rem
		return nil
	}

	ratio := 0.0
	if old := *t.EstimatedTime; old != 0 {
		ratio = math.Max(0, 1-float64(*t.RemainingTime)/float64(old))
	}
	remaining := int(math.Round(float64(newEstimate) * (1 - ratio)))

	est := newEstimate
	t.EstimatedTime = &est
	t.RemainingTime = &remaining
	return nil
}
