package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/focus-leaderboard/internal/config"
	"github.com/focus-leaderboard/internal/domain"
)

// RankingIndex keeps one sorted set per leaderboard period, scored by the
// period's field of each user's entry
type RankingIndex struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRankingIndex creates a new Redis ranking index
func NewRankingIndex(cfg *config.RedisConfig, logger *slog.Logger) (*RankingIndex, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RankingIndex{
		client: client,
		prefix: cfg.KeyPrefix,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (idx *RankingIndex) Close() error {
	return idx.client.Close()
}

// Ping verifies Redis is reachable
func (idx *RankingIndex) Ping(ctx context.Context) error {
	return idx.client.Ping(ctx).Err()
}

// periodKey returns the Redis key for a period's sorted set
func (idx *RankingIndex) periodKey(p domain.Period) string {
	return fmt.Sprintf("%s:leaderboard:%s", idx.prefix, p)
}

// SetEntry writes a user's three period scores in one round trip
func (idx *RankingIndex) SetEntry(ctx context.Context, entry domain.LeaderboardEntry) error {
	pipe := idx.client.TxPipeline()
	for _, p := range domain.Periods {
		pipe.ZAdd(ctx, idx.periodKey(p), redis.Z{
			Score:  float64(entry.Score(p)),
			Member: entry.UserID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting ranking scores: %w", err)
	}
	return nil
}

// TopN returns the n highest scored users for a period, highest first
func (idx *RankingIndex) TopN(ctx context.Context, p domain.Period, n int) ([]domain.RankedScore, error) {
	if n <= 0 {
		return []domain.RankedScore{}, nil
	}
	results, err := idx.client.ZRevRangeWithScores(ctx, idx.periodKey(p), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	scores := make([]domain.RankedScore, len(results))
	for i, result := range results {
		scores[i] = domain.RankedScore{
			UserID: result.Member.(string),
			Score:  int64(result.Score),
		}
	}
	return scores, nil
}

// CountAbove returns how many users score strictly more than score for a period
func (idx *RankingIndex) CountAbove(ctx context.Context, p domain.Period, score int64) (int64, error) {
	count, err := idx.client.ZCount(ctx, idx.periodKey(p), "("+strconv.FormatInt(score, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("counting scores above: %w", err)
	}
	return count, nil
}

// ReplaceAll rebuilds every period set from the given entries atomically
func (idx *RankingIndex) ReplaceAll(ctx context.Context, entries []domain.LeaderboardEntry) error {
	pipe := idx.client.TxPipeline()
	for _, p := range domain.Periods {
		key := idx.periodKey(p)
		pipe.Del(ctx, key)
		if len(entries) == 0 {
			continue
		}
		members := make([]redis.Z, len(entries))
		for i, e := range entries {
			members[i] = redis.Z{Score: float64(e.Score(p)), Member: e.UserID}
		}
		pipe.ZAdd(ctx, key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding ranking index: %w", err)
	}
	idx.logger.Debug("ranking index rebuilt", "entries", len(entries))
	return nil
}
