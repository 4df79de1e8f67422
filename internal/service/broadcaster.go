package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/focus-leaderboard/internal/domain"
	"github.com/focus-leaderboard/internal/metrics"
)

// Broadcaster pushes a full top-N snapshot of every period to all clients
type Broadcaster struct {
	ranking   *RankingService
	publisher Publisher
	limit     int
	logger    *slog.Logger
}

// NewBroadcaster creates a new leaderboard broadcaster
func NewBroadcaster(ranking *RankingService, publisher Publisher, limit int, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		ranking:   ranking,
		publisher: publisher,
		limit:     limit,
		logger:    logger,
	}
}

// EmitLeaderboardUpdate re-reads each period's top entries and publishes them
// as one event. There is no retry.
func (b *Broadcaster) EmitLeaderboardUpdate(ctx context.Context) error {
	snapshot, err := b.Snapshot(ctx)
	if err != nil {
		metrics.ObserveBroadcast(err)
		return err
	}

	err = b.publisher.BroadcastLeaderboardUpdate(snapshot)
	metrics.ObserveBroadcast(err)
	if err != nil {
		return fmt.Errorf("publishing leaderboard update: %w", err)
	}
	return nil
}

// Snapshot reads the current top entries of every period
func (b *Broadcaster) Snapshot(ctx context.Context) (domain.LeaderboardSnapshot, error) {
	var snapshot domain.LeaderboardSnapshot
	for _, p := range domain.Periods {
		entries, err := b.ranking.GetLeaderboard(ctx, p, b.limit)
		if err != nil {
			return domain.LeaderboardSnapshot{}, fmt.Errorf("building %s snapshot: %w", p, err)
		}
		snapshot.Set(p, entries)
	}
	return snapshot, nil
}
