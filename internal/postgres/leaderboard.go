package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/focus-leaderboard/internal/domain"
)

const entrySelect = `
	SELECT e.user_id, COALESCE(u.name, ''), COALESCE(u.email, ''),
	       e.total_focus_time, e.completed_sessions, e.completed_tasks,
	       e.weekly_score, e.monthly_score, e.last_updated
	FROM leaderboard_entries e
	LEFT JOIN users u ON u.id = e.user_id
`

func scanEntry(row pgx.Row) (*domain.LeaderboardEntry, error) {
	var (
		e    domain.LeaderboardEntry
		user domain.UserInfo
	)
	err := row.Scan(
		&e.UserID,
		&user.Name,
		&user.Email,
		&e.TotalFocusTime,
		&e.CompletedSessions,
		&e.CompletedTasks,
		&e.WeeklyScore,
		&e.MonthlyScore,
		&e.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	e.User = &user
	return &e, nil
}

// UpsertEntry replaces the whole aggregate row for a user
func (r *Repository) UpsertEntry(ctx context.Context, e domain.LeaderboardEntry) error {
	defer observe(ctx, "leaderboard.upsert")()

	query := `
		INSERT INTO leaderboard_entries
			(user_id, total_focus_time, completed_sessions, completed_tasks, weekly_score, monthly_score, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id)
		DO UPDATE SET
			total_focus_time = $2,
			completed_sessions = $3,
			completed_tasks = $4,
			weekly_score = $5,
			monthly_score = $6,
			last_updated = $7
	`
	_, err := r.pool.Exec(ctx, query,
		e.UserID,
		e.TotalFocusTime,
		e.CompletedSessions,
		e.CompletedTasks,
		e.WeeklyScore,
		e.MonthlyScore,
		e.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upserting leaderboard entry: %w", err)
	}
	return nil
}

// GetEntry retrieves one user's entry with display info
func (r *Repository) GetEntry(ctx context.Context, userID string) (*domain.LeaderboardEntry, error) {
	defer observe(ctx, "leaderboard.get")()

	e, err := scanEntry(r.pool.QueryRow(ctx, entrySelect+` WHERE e.user_id = $1`, userID))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("getting leaderboard entry: %w", err)
	}
	return e, nil
}

// GetEntries retrieves the entries for a set of users in no particular order
func (r *Repository) GetEntries(ctx context.Context, userIDs []string) ([]domain.LeaderboardEntry, error) {
	defer observe(ctx, "leaderboard.get_many")()

	if len(userIDs) == 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	return r.queryEntries(ctx, entrySelect+` WHERE e.user_id = ANY($1)`, userIDs)
}

// ListEntries retrieves every entry, used to rebuild the ranking index
func (r *Repository) ListEntries(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	defer observe(ctx, "leaderboard.list")()
	return r.queryEntries(ctx, entrySelect)
}

func (r *Repository) queryEntries(ctx context.Context, query string, args ...any) ([]domain.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning leaderboard entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leaderboard entries: %w", err)
	}
	return entries, nil
}
