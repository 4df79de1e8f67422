package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/focus-leaderboard/internal/config"
	"github.com/focus-leaderboard/internal/domain"
	"github.com/focus-leaderboard/internal/metrics"
)

// Aggregator recomputes one user's leaderboard entry from the session and
// task stores
type Aggregator struct {
	sessions SessionRepository
	tasks    TaskRepository
	entries  LeaderboardRepository
	index    RankingIndex
	emitter  SnapshotEmitter
	config   *config.LeaderboardConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewAggregator creates a new leaderboard aggregator. A nil emitter disables
// the push after each recompute.
func NewAggregator(
	sessions SessionRepository,
	tasks TaskRepository,
	entries LeaderboardRepository,
	index RankingIndex,
	emitter SnapshotEmitter,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		sessions: sessions,
		tasks:    tasks,
		entries:  entries,
		index:    index,
		emitter:  emitter,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// UpdateLeaderboardForUser recomputes and upserts userID's entry, then pushes
// a fresh snapshot. A failed push is logged and does not fail the update.
func (a *Aggregator) UpdateLeaderboardForUser(ctx context.Context, userID string) error {
	defer metrics.ObserveRecompute(time.Now())

	entry, err := a.compute(ctx, userID)
	if err != nil {
		return err
	}

	if err := a.entries.UpsertEntry(ctx, entry); err != nil {
		return fmt.Errorf("saving leaderboard entry for %s: %w", userID, err)
	}
	if err := a.index.SetEntry(ctx, entry); err != nil {
		return fmt.Errorf("indexing leaderboard entry for %s: %w", userID, err)
	}

	a.logger.Debug("leaderboard entry updated",
		"user_id", userID,
		"total_focus_time", entry.TotalFocusTime,
		"completed_sessions", entry.CompletedSessions,
		"weekly_score", entry.WeeklyScore,
		"monthly_score", entry.MonthlyScore,
	)

	if a.emitter != nil {
		if err := a.emitter.EmitLeaderboardUpdate(ctx); err != nil {
			a.logger.Warn("failed to broadcast leaderboard update", "user_id", userID, "error", err)
		}
	}
	return nil
}

func (a *Aggregator) compute(ctx context.Context, userID string) (domain.LeaderboardEntry, error) {
	now := a.now()

	totals, err := a.sessions.GetFocusTotals(ctx, userID,
		now.Add(-a.config.WeeklyWindow),
		now.Add(-a.config.MonthlyWindow),
	)
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("aggregating sessions for %s: %w", userID, err)
	}

	completedTasks, err := a.tasks.CountTasksByStatus(ctx, userID, domain.TaskStatusCompleted)
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("counting completed tasks for %s: %w", userID, err)
	}

	return domain.LeaderboardEntry{
		UserID:            userID,
		TotalFocusTime:    nonNegative(totals.TotalMinutes),
		CompletedSessions: nonNegative(totals.SessionCount),
		CompletedTasks:    nonNegative(completedTasks),
		WeeklyScore:       nonNegative(totals.WeeklyMinutes),
		MonthlyScore:      nonNegative(totals.MonthlyMinutes),
		LastUpdated:       now,
	}, nil
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
