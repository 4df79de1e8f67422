package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/focus-leaderboard/internal/domain"
)

const sessionColumns = `id, user_id, session_type, start_time, end_time, duration, status, completed_cycles, task_id`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Type,
		&s.StartTime,
		&s.EndTime,
		&s.Duration,
		&s.Status,
		&s.CompletedCycles,
		&s.TaskID,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession persists a new session
func (r *Repository) CreateSession(ctx context.Context, s *domain.Session) error {
	defer observe(ctx, "sessions.create")()

	query := `
		INSERT INTO pomodoro_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.UserID,
		string(s.Type),
		s.StartTime,
		s.EndTime,
		s.Duration,
		string(s.Status),
		s.CompletedCycles,
		s.TaskID,
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetActiveSession looks up an in-progress session owned by userID
func (r *Repository) GetActiveSession(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	defer observe(ctx, "sessions.get_active")()

	query := `
		SELECT ` + sessionColumns + `
		FROM pomodoro_sessions
		WHERE id = $1 AND user_id = $2 AND status = $3
	`
	s, err := scanSession(r.pool.QueryRow(ctx, query, sessionID, userID, string(domain.StatusInProgress)))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("getting active session: %w", err)
	}
	return s, nil
}

// FinishSession writes a terminal status. The update only applies while the
// row is still in progress, so a racing transition gets ErrNotFound.
func (r *Repository) FinishSession(ctx context.Context, s *domain.Session) error {
	defer observe(ctx, "sessions.finish")()

	query := `
		UPDATE pomodoro_sessions
		SET status = $4, end_time = $5, completed_cycles = $6
		WHERE id = $1 AND user_id = $2 AND status = $3
	`
	result, err := r.pool.Exec(ctx, query,
		s.ID,
		s.UserID,
		string(domain.StatusInProgress),
		string(s.Status),
		s.EndTime,
		s.CompletedCycles,
	)
	if err != nil {
		return fmt.Errorf("finishing session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListSessions returns a user's sessions, newest start time first
func (r *Repository) ListSessions(ctx context.Context, userID string, page domain.Page) ([]domain.Session, error) {
	defer observe(ctx, "sessions.list")()

	query := `
		SELECT ` + sessionColumns + `
		FROM pomodoro_sessions
		WHERE user_id = $1
		ORDER BY start_time DESC
		OFFSET $2
	`
	args := []any{userID, page.Offset}
	if page.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, page.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// GetSessionStats aggregates over all of a user's completed sessions
func (r *Repository) GetSessionStats(ctx context.Context, userID string) (domain.SessionStats, error) {
	defer observe(ctx, "sessions.stats")()

	query := `
		SELECT COUNT(*), COALESCE(SUM(duration), 0), COALESCE(SUM(completed_cycles), 0)
		FROM pomodoro_sessions
		WHERE user_id = $1 AND status = $2
	`
	var stats domain.SessionStats
	err := r.pool.QueryRow(ctx, query, userID, string(domain.StatusCompleted)).Scan(
		&stats.TotalCompletedSessions,
		&stats.TotalFocusTime,
		&stats.TotalCycles,
	)
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("getting session stats: %w", err)
	}
	return stats, nil
}

// GetFocusTotals aggregates a user's completed focus sessions. The trailing
// windows are matched against end_time, the moment of completion.
func (r *Repository) GetFocusTotals(ctx context.Context, userID string, weekStart, monthStart time.Time) (domain.FocusTotals, error) {
	defer observe(ctx, "sessions.focus_totals")()

	query := `
		SELECT
			COALESCE(SUM(duration), 0),
			COUNT(*),
			COALESCE(SUM(duration) FILTER (WHERE end_time >= $4), 0),
			COALESCE(SUM(duration) FILTER (WHERE end_time >= $5), 0)
		FROM pomodoro_sessions
		WHERE user_id = $1 AND status = $2 AND session_type = $3
	`
	var totals domain.FocusTotals
	err := r.pool.QueryRow(ctx, query,
		userID,
		string(domain.StatusCompleted),
		string(domain.SessionTypeFocus),
		weekStart,
		monthStart,
	).Scan(
		&totals.TotalMinutes,
		&totals.SessionCount,
		&totals.WeeklyMinutes,
		&totals.MonthlyMinutes,
	)
	if err != nil {
		return domain.FocusTotals{}, fmt.Errorf("getting focus totals: %w", err)
	}
	return totals, nil
}

// ClaimTaskSync flips the session's task_synced flag. It returns false when
// the flag was already set, so a redelivered event never decrements twice.
func (r *Repository) ClaimTaskSync(ctx context.Context, sessionID string) (bool, error) {
	defer observe(ctx, "sessions.claim_task_sync")()

	query := `
		UPDATE pomodoro_sessions
		SET task_synced = TRUE
		WHERE id = $1 AND status = $2 AND task_synced = FALSE
	`
	result, err := r.pool.Exec(ctx, query, sessionID, string(domain.StatusCompleted))
	if err != nil {
		return false, fmt.Errorf("claiming task sync: %w", err)
	}
	return result.RowsAffected() == 1, nil
}
