package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/focus-leaderboard/internal/config"
	"github.com/focus-leaderboard/internal/domain"
)

// RankingService answers leaderboard reads. The index selects the page
// members; the page is ordered by the durable scores it shows. A single
// user's rank is global and computed independently.
type RankingService struct {
	entries LeaderboardRepository
	index   RankingIndex
	config  *config.LeaderboardConfig
	logger  *slog.Logger
}

// NewRankingService creates a new ranking service
func NewRankingService(
	entries LeaderboardRepository,
	index RankingIndex,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *RankingService {
	return &RankingService{
		entries: entries,
		index:   index,
		config:  cfg,
		logger:  logger,
	}
}

// GetLeaderboard returns the top limit entries for a period, highest first
func (s *RankingService) GetLeaderboard(ctx context.Context, period domain.Period, limit int) ([]domain.RankedEntry, error) {
	// Validate limit
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}

	top, err := s.index.TopN(ctx, period, limit)
	if err != nil {
		return nil, fmt.Errorf("reading %s ranking: %w", period, err)
	}
	if len(top) == 0 {
		return []domain.RankedEntry{}, nil
	}

	ids := make([]string, len(top))
	for i, t := range top {
		ids[i] = t.UserID
	}
	rows, err := s.entries.GetEntries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading leaderboard entries: %w", err)
	}
	byUser := make(map[string]domain.LeaderboardEntry, len(rows))
	for _, e := range rows {
		byUser[e.UserID] = e
	}

	ranked := make([]domain.RankedEntry, 0, len(top))
	for _, t := range top {
		e, ok := byUser[t.UserID]
		if !ok {
			s.logger.Warn("ranking index references missing entry", "user_id", t.UserID, "period", period)
			continue
		}
		if e.Score(period) != t.Score {
			s.logger.Debug("ranking index score is stale",
				"user_id", t.UserID,
				"period", period,
				"indexed", t.Score,
				"stored", e.Score(period),
			)
		}
		ranked = append(ranked, domain.RankedEntry{LeaderboardEntry: e})
	}

	// Index order breaks ties; stored scores decide everything else
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score(period) > ranked[j].Score(period)
	})
	for i := range ranked {
		ranked[i].Rank = int64(i + 1)
	}
	return ranked, nil
}

// GetUserRanking returns the user's entry with its global rank for a period:
// one more than the number of users scoring strictly higher
func (s *RankingService) GetUserRanking(ctx context.Context, userID string, period domain.Period) (*domain.RankedEntry, error) {
	entry, err := s.entries.GetEntry(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting entry for %s: %w", userID, err)
	}

	above, err := s.index.CountAbove(ctx, period, entry.Score(period))
	if err != nil {
		return nil, fmt.Errorf("counting %s ranks above %s: %w", period, userID, err)
	}

	return &domain.RankedEntry{
		LeaderboardEntry: *entry,
		Rank:             above + 1,
	}, nil
}
