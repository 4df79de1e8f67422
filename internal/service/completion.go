package service

import (
	"context"
	"log/slog"

	"github.com/focus-leaderboard/internal/domain"
)

// CompletionProcessor runs the side effects of a completed focus session:
// task time sync, then the user's leaderboard recompute
type CompletionProcessor struct {
	tasks      *TaskSynchronizer
	aggregator *Aggregator
	logger     *slog.Logger
}

// NewCompletionProcessor creates a new completion processor
func NewCompletionProcessor(tasks *TaskSynchronizer, aggregator *Aggregator, logger *slog.Logger) *CompletionProcessor {
	return &CompletionProcessor{
		tasks:      tasks,
		aggregator: aggregator,
		logger:     logger,
	}
}

// Process handles one completion event. A task sync failure is logged and
// does not stop the recompute; a recompute failure is returned so the caller
// may retry. Both steps are safe to repeat.
func (p *CompletionProcessor) Process(ctx context.Context, event domain.CompletionEvent) error {
	if event.Type != domain.SessionTypeFocus {
		return nil
	}

	if err := p.tasks.ApplyCompletion(ctx, event); err != nil {
		p.logger.Error("task time sync failed",
			"session_id", event.SessionID,
			"user_id", event.UserID,
			"error", err,
		)
	}

	return p.aggregator.UpdateLeaderboardForUser(ctx, event.UserID)
}
